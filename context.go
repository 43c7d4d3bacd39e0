package lovelace

import "context"

type clientIPContextKey struct{}
type requestIDContextKey struct{}
type authResultContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The engine uses it for audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithRequestID attaches a request correlation id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// WithAuthResult stores the authenticated identity in ctx.
func WithAuthResult(ctx context.Context, res *AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// AuthResultFromContext returns the identity stored by WithAuthResult.
func AuthResultFromContext(ctx context.Context) (*AuthResult, bool) {
	if ctx == nil {
		return nil, false
	}
	res, ok := ctx.Value(authResultContextKey{}).(*AuthResult)
	return res, ok && res != nil
}

// ClientIPFromContext returns the IP stored by WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
