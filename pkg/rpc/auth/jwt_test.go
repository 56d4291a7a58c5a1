package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() JWTConfig {
	return JWTConfig{
		Secret:  testSecret,
		Issuer:  "stagehand-test",
		Subject: "device-service",
		TTL:     time.Minute,
	}
}

func TestNewJWTSource_RejectsShortSecret(t *testing.T) {
	_, err := NewJWTSource(JWTConfig{Secret: "short"})
	assert.ErrorIs(t, err, ErrInvalidSecretLength)

	_, err = NewJWTVerifier(JWTConfig{Secret: "short"})
	assert.ErrorIs(t, err, ErrInvalidSecretLength)
}

func TestNewJWTSource_TTL(t *testing.T) {
	for _, ttl := range []time.Duration{time.Nanosecond, time.Millisecond, 999 * time.Millisecond, -time.Minute} {
		cfg := testConfig()
		cfg.TTL = ttl
		_, err := NewJWTSource(cfg)
		assert.ErrorIs(t, err, ErrInvalidTTL, "ttl %s", ttl)
	}

	cfg := testConfig()
	cfg.TTL = 0
	src, err := NewJWTSource(cfg)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, src.config.TTL)

	cfg.TTL = MinTTL
	_, err = NewJWTSource(cfg)
	assert.NoError(t, err)
}

func TestJWT_RoundTrip(t *testing.T) {
	src, err := NewJWTSource(testConfig())
	require.NoError(t, err)
	v, err := NewJWTVerifier(testConfig())
	require.NoError(t, err)

	token, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(token, ".")))

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "device-service", claims.Subject)
	assert.Equal(t, "stagehand-test", claims.Issuer)
}

func TestJWTSource_CachesPerSubject(t *testing.T) {
	src, err := NewJWTSource(testConfig())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := src.TokenFor(ctx, "a")
	require.NoError(t, err)

	// A later mint would carry a different iat; the cached token is returned instead.
	src.now = func() time.Time { return time.Now().Add(5 * time.Second) }
	again, err := src.TokenFor(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	other, err := src.TokenFor(ctx, "b")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	src.Invalidate("a")
	fresh, err := src.TokenFor(ctx, "a")
	require.NoError(t, err)
	assert.NotEqual(t, first, fresh)
}

func TestJWTSource_CanceledContext(t *testing.T) {
	src, err := NewJWTSource(testConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = src.Token(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v, err := NewJWTVerifier(testConfig())
	require.NoError(t, err)

	expiredSrc, err := NewJWTSource(testConfig())
	require.NoError(t, err)
	expiredSrc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := expiredSrc.Token(context.Background())
	require.NoError(t, err)

	otherCfg := testConfig()
	otherCfg.Secret = strings.Repeat("x", 32)
	otherSrc, err := NewJWTSource(otherCfg)
	require.NoError(t, err)
	wrongKey, err := otherSrc.Token(context.Background())
	require.NoError(t, err)

	issuerCfg := testConfig()
	issuerCfg.Issuer = "someone-else"
	issuerSrc, err := NewJWTSource(issuerCfg)
	require.NoError(t, err)
	wrongIssuer, err := issuerSrc.Token(context.Background())
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", expired, ErrExpiredToken},
		{"wrong secret", wrongKey, ErrInvalidToken},
		{"wrong issuer", wrongIssuer, ErrInvalidToken},
		{"garbage", "not-a-token", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = StaticToken("").Token(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}
