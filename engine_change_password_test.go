package lovelace

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aloneinabyss/lovelace/password"
	"github.com/redis/go-redis/v9"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type mockUserProvider struct {
	mu    sync.Mutex
	users map[string]UserRecord

	getErr    error
	saveErr   error
	createErr error

	saveCalls   int
	createCalls int
}

func newMockUserProvider() *mockUserProvider {
	return &mockUserProvider{users: make(map[string]UserRecord)}
}

func (m *mockUserProvider) find(match func(UserRecord) bool) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return UserRecord{}, m.getErr
	}
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

func (m *mockUserProvider) GetUserByID(_ context.Context, id string) (UserRecord, error) {
	return m.find(func(u UserRecord) bool { return u.ID == id })
}

func (m *mockUserProvider) GetUserByUsername(_ context.Context, username string) (UserRecord, error) {
	return m.find(func(u UserRecord) bool { return u.Username == username })
}

func (m *mockUserProvider) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	return m.find(func(u UserRecord) bool { return strings.EqualFold(u.Email, email) })
}

func (m *mockUserProvider) GetUserByVerificationToken(_ context.Context, tokenHash string) (UserRecord, error) {
	return m.find(func(u UserRecord) bool { return tokenHash != "" && u.VerificationTokenHash == tokenHash })
}

func (m *mockUserProvider) GetUserByResetToken(_ context.Context, tokenHash string) (UserRecord, error) {
	return m.find(func(u UserRecord) bool { return tokenHash != "" && u.ResetTokenHash == tokenHash })
}

func (m *mockUserProvider) CreateUser(_ context.Context, user UserRecord) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return UserRecord{}, m.createErr
	}
	for _, u := range m.users {
		if u.Username == user.Username || strings.EqualFold(u.Email, user.Email) {
			return UserRecord{}, ErrUserExists
		}
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *mockUserProvider) SaveUser(_ context.Context, user UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.users[user.ID]; !ok {
		return ErrUserNotFound
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserProvider) user(t *testing.T, id string) UserRecord {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		t.Fatalf("user %q not in provider", id)
	}
	return u
}

func (m *mockUserProvider) put(u UserRecord) {
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = append([]byte(nil), testSecret...)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Revocation.RedisTimeout = 200 * time.Millisecond
	cfg.RateLimit.RedisTimeout = 200 * time.Millisecond
	return cfg
}

func newTestHasher(t testing.TB) *password.Argon2 {
	t.Helper()
	h, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	return h
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

type engineOptions struct {
	config   *Config
	clock    *testClock
	sink     AuditSink
	notifier Notifier
	metrics  bool
}

func buildTestEngine(t testing.TB, rdb redis.UniversalClient, up UserProvider, opts engineOptions) *Engine {
	t.Helper()
	cfg := testConfig()
	if opts.config != nil {
		cfg = *opts.config
	}

	b := New().WithConfig(cfg).WithRedis(rdb).WithUserProvider(up)
	if opts.clock != nil {
		b = b.WithClock(opts.clock.Now)
	}
	if opts.sink != nil {
		b = b.WithAuditSink(opts.sink)
	}
	if opts.notifier != nil {
		b = b.WithNotifier(opts.notifier)
	}
	if opts.metrics {
		b = b.WithMetricsEnabled(true)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func newTestEngine(t testing.TB, rdb redis.UniversalClient, up UserProvider, clock *testClock) *Engine {
	t.Helper()
	return buildTestEngine(t, rdb, up, engineOptions{clock: clock})
}

// seedUser stores an active, verified account.
func seedUser(t testing.TB, up *mockUserProvider, id, username, email, plain string) UserRecord {
	t.Helper()
	hash, err := newTestHasher(t).Hash(plain)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := UserRecord{
		ID:            id,
		Username:      username,
		Email:         email,
		PasswordHash:  hash,
		EmailVerified: true,
		Enabled:       true,
		Roles:         []string{"ROLE_USER"},
	}
	up.put(u)
	return u
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []Notification
	ch   chan Notification
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{ch: make(chan Notification, 64)}
}

func (c *captureNotifier) Notify(_ context.Context, n Notification) error {
	c.mu.Lock()
	c.sent = append(c.sent, n)
	c.mu.Unlock()
	c.ch <- n
	return nil
}

// next waits for the next delivered notification with the given template.
func (c *captureNotifier) next(t *testing.T, template string) Notification {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case n := <-c.ch:
			if n.Template == template {
				return n
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q notification", template)
			return Notification{}
		}
	}
}

func TestChangePasswordSuccess(t *testing.T) {
	_, rdb := newTestRedis(t)
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice", "alice@example.com", "old-password-1")
	clock := newTestClock()
	notifier := newCaptureNotifier()
	engine := buildTestEngine(t, rdb, up, engineOptions{clock: clock, notifier: notifier})

	clock.Advance(time.Second)
	if err := engine.ChangePassword(context.Background(), "u1", "old-password-1", "new-password-2"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	u := up.user(t, "u1")
	if !u.PasswordChangedAt.Equal(clock.Now()) {
		t.Fatalf("expected password epoch %v, got %v", clock.Now(), u.PasswordChangedAt)
	}
	if _, err := engine.Login(context.Background(), "alice", "new-password-2"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := engine.Login(context.Background(), "alice", "old-password-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for old password, got %v", err)
	}

	n := notifier.next(t, TemplatePasswordChanged)
	if n.Recipient != "alice@example.com" || n.Params["username"] != "alice" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestChangePasswordInvalidatesEarlierTokens(t *testing.T) {
	_, rdb := newTestRedis(t)
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice", "alice@example.com", "old-password-1")
	clock := newTestClock()
	engine := newTestEngine(t, rdb, up, clock)

	login, err := engine.Login(context.Background(), "alice", "old-password-1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	clock.Advance(time.Second)
	if err := engine.ChangePassword(context.Background(), "u1", "old-password-1", "new-password-2"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := engine.Authenticate(context.Background(), login.Tokens.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked for old access token, got %v", err)
	}
	if _, err := engine.Refresh(context.Background(), login.Tokens.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked for old refresh token, got %v", err)
	}

	fresh, err := engine.Login(context.Background(), "alice", "new-password-2")
	if err != nil {
		t.Fatalf("login after change: %v", err)
	}
	if _, err := engine.Authenticate(context.Background(), fresh.Tokens.AccessToken); err != nil {
		t.Fatalf("new access token rejected: %v", err)
	}
}

func TestChangePasswordWrongCurrentPassword(t *testing.T) {
	_, rdb := newTestRedis(t)
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice", "alice@example.com", "old-password-1")
	engine := newTestEngine(t, rdb, up, newTestClock())

	before := up.user(t, "u1").PasswordHash
	err := engine.ChangePassword(context.Background(), "u1", "not-the-password", "new-password-2")
	if !errors.Is(err, ErrCurrentPasswordIncorrect) {
		t.Fatalf("expected ErrCurrentPasswordIncorrect, got %v", err)
	}
	if CodeOf(err) != CodePasswordCurrentIncorrect {
		t.Fatalf("unexpected code %q", CodeOf(err))
	}
	if up.user(t, "u1").PasswordHash != before {
		t.Fatal("password hash changed after failed verification")
	}
	if up.saveCalls != 0 {
		t.Fatalf("expected no saves, got %d", up.saveCalls)
	}
}

func TestChangePasswordRejectsSamePassword(t *testing.T) {
	_, rdb := newTestRedis(t)
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice", "alice@example.com", "old-password-1")
	engine := newTestEngine(t, rdb, up, newTestClock())

	err := engine.ChangePassword(context.Background(), "u1", "old-password-1", "old-password-1")
	if !errors.Is(err, ErrPasswordMustDiffer) {
		t.Fatalf("expected ErrPasswordMustDiffer, got %v", err)
	}
	if CodeOf(err) != CodePasswordMustBeDifferent {
		t.Fatalf("unexpected code %q", CodeOf(err))
	}
	if !up.user(t, "u1").PasswordChangedAt.IsZero() {
		t.Fatal("password epoch advanced on rejected change")
	}
}

func TestChangePasswordPolicy(t *testing.T) {
	_, rdb := newTestRedis(t)
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice", "alice@example.com", "old-password-1")
	engine := newTestEngine(t, rdb, up, newTestClock())

	err := engine.ChangePassword(context.Background(), "u1", "old-password-1", "abc")
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation kind, got %v", KindOf(err))
	}
}

func TestChangePasswordUnknownUser(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine := newTestEngine(t, rdb, newMockUserProvider(), newTestClock())

	err := engine.ChangePassword(context.Background(), "missing", "old-password-1", "new-password-2")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestChangePasswordProviderSaveFailure(t *testing.T) {
	_, rdb := newTestRedis(t)
	up := newMockUserProvider()
	seedUser(t, up, "u1", "alice", "alice@example.com", "old-password-1")
	engine := newTestEngine(t, rdb, up, newTestClock())

	up.saveErr = errors.New("disk full")
	err := engine.ChangePassword(context.Background(), "u1", "old-password-1", "new-password-2")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if KindOf(err) != KindInternal {
		t.Fatalf("expected internal kind, got %v", KindOf(err))
	}
}

func TestChangePasswordEpochNeverMovesBackwards(t *testing.T) {
	_, rdb := newTestRedis(t)
	up := newMockUserProvider()
	u := seedUser(t, up, "u1", "alice", "alice@example.com", "old-password-1")
	clock := newTestClock()

	future := clock.Now().Add(time.Hour)
	u.PasswordChangedAt = future
	up.put(u)
	engine := newTestEngine(t, rdb, up, clock)

	if err := engine.ChangePassword(context.Background(), "u1", "old-password-1", "new-password-2"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if got := up.user(t, "u1").PasswordChangedAt; !got.Equal(future) {
		t.Fatalf("expected epoch to stay at %v, got %v", future, got)
	}
}
