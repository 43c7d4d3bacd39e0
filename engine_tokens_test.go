package lovelace

import (
	"context"
	"errors"
	"testing"
	"time"
)

func loginAlice(t *testing.T, engine *Engine) *LoginResult {
	t.Helper()
	res, err := engine.Login(context.Background(), "alice", "correct-password-123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return res
}

func TestRefreshRotatesTokens(t *testing.T) {
	_, rdb := newTestRedis(t)
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice", "alice@example.com", "correct-password-123")
	clock := newTestClock()
	engine := newTestEngine(t, rdb, up, clock)

	login := loginAlice(t, engine)
	clock.Advance(time.Minute)

	res, err := engine.Refresh(context.Background(), login.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Tokens.RefreshToken == login.Tokens.RefreshToken || res.Tokens.AccessToken == login.Tokens.AccessToken {
		t.Fatal("refresh must issue a new pair")
	}
	if res.User.ID != "u1" || res.User.Username != "alice" || res.User.Email != "alice@example.com" {
		t.Fatalf("unexpected user %+v", res.User)
	}
	if res.User.Email != login.User.Email {
		t.Fatalf("refresh email %q, login email %q", res.User.Email, login.User.Email)
	}
	if want := clock.Now().Add(7 * 24 * time.Hour); !res.Tokens.RefreshExpiresAt.Equal(want) {
		t.Fatalf("refresh expiry %v, want %v", res.Tokens.RefreshExpiresAt, want)
	}

	if _, err := engine.Authenticate(context.Background(), res.Tokens.AccessToken); err != nil {
		t.Fatalf("rotated access token rejected: %v", err)
	}
	if _, err := engine.Refresh(context.Background(), res.Tokens.RefreshToken); err != nil {
		t.Fatalf("rotated refresh token rejected: %v", err)
	}
}

func TestRefreshReuseDetected(t *testing.T) {
	_, rdb := newTestRedis(t)
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice", "alice@example.com", "correct-password-123")
	engine := buildTestEngine(t, rdb, up, engineOptions{clock: newTestClock(), metrics: true})

	login := loginAlice(t, engine)
	if _, err := engine.Refresh(context.Background(), login.Tokens.RefreshToken); err != nil {
		t.Fatalf("first refresh: %v", err)
	}

	_, err := engine.Refresh(context.Background(), login.Tokens.RefreshToken)
	if !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse, got %v", err)
	}
	if CodeOf(err) != CodeTokenReused || KindOf(err) != KindAuthentication {
		t.Fatalf("unexpected classification %q/%v", CodeOf(err), KindOf(err))
	}
	if got := engine.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; got != 1 {
		t.Fatalf("expected 1 reuse detection, got %d", got)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	_, rdb := newTestRedis(t)
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice", "alice@example.com", "correct-password-123")
	engine := newTestEngine(t, rdb, up, newTestClock())

	login := loginAlice(t, engine)
	if _, err := engine.Refresh(context.Background(), login.Tokens.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if _, err := engine.Authenticate(context.Background(), login.Tokens.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for refresh token as bearer, got %v", err)
	}
}

func TestRefreshMissingAndGarbage(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine := newTestEngine(t, rdb, newMockUserProvider(), newTestClock())

	if _, err := engine.Refresh(context.Background(), ""); !errors.Is(err, ErrRefreshMissing) {
		t.Fatalf("expected ErrRefreshMissing, got %v", err)
	}
	if _, err := engine.Refresh(context.Background(), "not.a.jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRefreshExpired(t *testing.T) {
	_, rdb := newTestRedis(t)
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice", "alice@example.com", "correct-password-123")
	clock := newTestClock()
	engine := newTestEngine(t, rdb, up, clock)

	login := loginAlice(t, engine)
	clock.Advance(7*24*time.Hour + time.Minute)

	if _, err := engine.Refresh(context.Background(), login.Tokens.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRefreshDeletedUser(t *testing.T) {
	_, rdb := newTestRedis(t)
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice", "alice@example.com", "correct-password-123")
	engine := newTestEngine(t, rdb, up, newTestClock())

	login := loginAlice(t, engine)
	up.mu.Lock()
	delete(up.users, "u1")
	up.mu.Unlock()

	if _, err := engine.Refresh(context.Background(), login.Tokens.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for a vanished account, got %v", err)
	}
}

func TestRefreshFailsClosedWithoutRedis(t *testing.T) {
	mr, rdb := newTestRedis(t)
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice", "alice@example.com", "correct-password-123")
	engine := newTestEngine(t, rdb, up, newTestClock())

	login := loginAlice(t, engine)
	mr.Close()

	_, err := engine.Refresh(context.Background(), login.Tokens.RefreshToken)
	if !errors.Is(err, ErrRevocationUnavailable) {
		t.Fatalf("expected ErrRevocationUnavailable, got %v", err)
	}
	if CodeOf(err) != CodeServiceUnavailable {
		t.Fatalf("unexpected code %q", CodeOf(err))
	}
	if _, err := engine.Authenticate(context.Background(), login.Tokens.AccessToken); !errors.Is(err, ErrRevocationUnavailable) {
		t.Fatalf("expected authenticate to fail closed, got %v", err)
	}
}

func TestAuthenticateExpiredAccessToken(t *testing.T) {
	_, rdb := newTestRedis(t)
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice", "alice@example.com", "correct-password-123")
	clock := newTestClock()
	engine := newTestEngine(t, rdb, up, clock)

	login := loginAlice(t, engine)
	clock.Advance(16 * time.Minute)

	_, err := engine.Authenticate(context.Background(), login.Tokens.AccessToken)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if CodeOf(err) != CodeTokenExpired {
		t.Fatalf("unexpected code %q", CodeOf(err))
	}
}

func TestAuthenticateDisabledAfterIssue(t *testing.T) {
	_, rdb := newTestRedis(t)
	up := newMockUserProvider()
	u := seedUser(t, up, "u1", "alice", "alice@example.com", "correct-password-123")
	engine := newTestEngine(t, rdb, up, newTestClock())

	login := loginAlice(t, engine)
	u.Enabled = false
	up.put(u)

	if _, err := engine.Authenticate(context.Background(), login.Tokens.AccessToken); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
	if _, err := engine.Refresh(context.Background(), login.Tokens.RefreshToken); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled on refresh, got %v", err)
	}
}

func TestAuthenticateEmpty(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine := newTestEngine(t, rdb, newMockUserProvider(), newTestClock())

	if _, err := engine.Authenticate(context.Background(), ""); !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("expected ErrAuthenticationRequired, got %v", err)
	}
}

func TestValidateToken(t *testing.T) {
	_, rdb := newTestRedis(t)
	clock := newTestClock()
	engine := newTestEngine(t, rdb, newMockUserProvider(), clock)

	p := Principal{UserID: "u1", Username: "alice", Roles: []string{"ROLE_USER"}}
	access, err := engine.IssueAccessToken(p)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	refresh, err := engine.IssueRefreshToken(p)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	issuedAt := clock.Now()

	tests := []struct {
		name      string
		token     string
		principal Principal
		changedAt time.Time
		want      error
	}{
		{"access", access, p, time.Time{}, nil},
		{"refresh", refresh, p, time.Time{}, nil},
		{"changed same millisecond", access, p, issuedAt.Add(500 * time.Microsecond), nil},
		{"changed earlier", access, p, issuedAt.Add(-time.Hour), nil},
		{"changed after", access, p, issuedAt.Add(time.Millisecond), ErrTokenRevoked},
		{"other subject", access, Principal{UserID: "u1", Username: "bob"}, time.Time{}, ErrTokenInvalid},
		{"empty", "", p, time.Time{}, ErrAuthenticationRequired},
		{"garbage", "abc.def.ghi", p, time.Time{}, ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.ValidateToken(tt.token, tt.principal, tt.changedAt)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	clock.Advance(15 * time.Minute)
	if err := engine.ValidateToken(access, p, time.Time{}); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	_, rdb := newTestRedis(t)
	clock := newTestClock()
	engine := newTestEngine(t, rdb, newMockUserProvider(), clock)

	cfg := testConfig()
	cfg.JWT.Secret = []byte("ffffffffffffffffffffffffffffffff")
	other := buildTestEngine(t, rdb, newMockUserProvider(), engineOptions{config: &cfg, clock: clock})

	p := Principal{UserID: "u1", Username: "alice"}
	token, err := other.IssueAccessToken(p)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if err := engine.ValidateToken(token, p, time.Time{}); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if _, ok := engine.IdentifyToken(token); ok {
		t.Fatal("IdentifyToken must reject a foreign signature")
	}
}

func TestIdentifyTokenIgnoresExpiry(t *testing.T) {
	_, rdb := newTestRedis(t)
	clock := newTestClock()
	engine := newTestEngine(t, rdb, newMockUserProvider(), clock)

	token, err := engine.IssueAccessToken(Principal{UserID: "u1", Username: "alice"})
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	clock.Advance(time.Hour)

	id, ok := engine.IdentifyToken(token)
	if !ok || id != "u1" {
		t.Fatalf("expected u1, got %q ok=%v", id, ok)
	}
	if _, ok := engine.IdentifyToken("garbage"); ok {
		t.Fatal("garbage identified")
	}
}
