package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.DecodeAccess != nil
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Validate(ctx context.Context, tokenStr string) ValidateResult {
	return RunValidate(ctx, tokenStr, s.deps.Validate)
}

func (s Service) Logout(ctx context.Context, accessToken, refreshToken string) LogoutResult {
	return RunLogout(ctx, accessToken, refreshToken, s.deps.Logout)
}
