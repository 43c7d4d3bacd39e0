package jwt

import (
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	cfg := Config{Secret: testSecret, Issuer: "lovelace"}
	if clock != nil {
		cfg.Now = clock.Now
	}
	m, err := NewManager(cfg)
	require.NoError(t, err)
	return m
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	_, err := NewManager(Config{Secret: []byte("short")})
	assert.Error(t, err)
}

func TestIssueDecodeRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)

	token, err := m.Issue("alice", "u-1", []string{"ROLE_USER", "ROLE_ADMIN"}, TypeAccess, 15*time.Minute)
	require.NoError(t, err)

	claims, err := m.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, []string{"ROLE_USER", "ROLE_ADMIN"}, claims.Roles)
	assert.Equal(t, TypeAccess, claims.Type)
	assert.NotEmpty(t, claims.ID)
	assert.InDelta(t, (15 * time.Minute).Seconds(), claims.ExpiresAt.Sub(claims.IssuedAt).Seconds(), 1)
}

func TestIssueProducesDistinctTokensInSameInstant(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newTestManager(t, clock)

	a, err := m.Issue("alice", "u-1", nil, TypeRefresh, time.Hour)
	require.NoError(t, err)
	b, err := m.Issue("alice", "u-1", nil, TypeRefresh, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecodeKeepsMillisecondIssuedAt(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 750*int(time.Millisecond), time.UTC)
	clock := &fakeClock{now: issued}
	m := newTestManager(t, clock)

	token, err := m.Issue("alice", "u-1", nil, TypeAccess, time.Minute)
	require.NoError(t, err)
	claims, err := m.Decode(token)
	require.NoError(t, err)
	assert.True(t, claims.IssuedAt.Equal(issued), "got %v", claims.IssuedAt)
}

func TestDecodeExpired(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newTestManager(t, clock)

	token, err := m.Issue("alice", "u-1", nil, TypeAccess, time.Minute)
	require.NoError(t, err)

	clock.now = clock.now.Add(2 * time.Minute)
	_, err = m.Decode(token)
	require.Error(t, err)
	assert.Equal(t, KindExpired, KindOf(err))
}

func TestDecodeBadSignature(t *testing.T) {
	m := newTestManager(t, nil)
	other, err := NewManager(Config{Secret: []byte("ffffffffffffffffffffffffffffffff"), Issuer: "lovelace"})
	require.NoError(t, err)

	token, err := other.Issue("alice", "u-1", nil, TypeAccess, time.Minute)
	require.NoError(t, err)

	_, err = m.Decode(token)
	require.Error(t, err)
	assert.Equal(t, KindBadSignature, KindOf(err))
}

func TestDecodeMalformed(t *testing.T) {
	m := newTestManager(t, nil)
	for _, input := range []string{"", "not.a.jwt", "a.b", strings.Repeat("x", 64)} {
		_, err := m.Decode(input)
		require.Error(t, err, input)
		assert.Equal(t, KindMalformed, KindOf(err), input)
	}
}

func TestDecodeRejectsUnsignedToken(t *testing.T) {
	m := newTestManager(t, nil)
	claims := wireClaims{UID: "u-1", Type: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "alice",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.Decode(token)
	require.Error(t, err)
	assert.NotZero(t, KindOf(err))
}

func TestDecodeRejectsWrongIssuer(t *testing.T) {
	m := newTestManager(t, nil)
	other, err := NewManager(Config{Secret: testSecret, Issuer: "someone-else"})
	require.NoError(t, err)

	token, err := other.Issue("alice", "u-1", nil, TypeAccess, time.Minute)
	require.NoError(t, err)
	_, err = m.Decode(token)
	assert.Equal(t, KindMalformed, KindOf(err))
}

func TestDecodeAsRejectsCrossUse(t *testing.T) {
	m := newTestManager(t, nil)

	refresh, err := m.Issue("alice", "u-1", nil, TypeRefresh, time.Hour)
	require.NoError(t, err)

	_, err = m.DecodeAs(refresh, TypeAccess)
	require.Error(t, err)
	assert.Equal(t, KindWrongType, KindOf(err))

	claims, err := m.DecodeAs(refresh, TypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, TypeRefresh, claims.Type)
}

func TestIdentifyIgnoresExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newTestManager(t, clock)

	token, err := m.Issue("alice", "u-1", nil, TypeAccess, time.Minute)
	require.NoError(t, err)
	clock.now = clock.now.Add(time.Hour)

	claims, err := m.Identify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)

	_, err = m.Identify(token + "x")
	assert.Error(t, err)
}

func TestClaimsRemaining(t *testing.T) {
	now := time.Now()
	c := &Claims{ExpiresAt: now.Add(30 * time.Second)}
	assert.Equal(t, 30*time.Second, c.Remaining(now))
	assert.Zero(t, c.Remaining(now.Add(time.Minute)))
}
