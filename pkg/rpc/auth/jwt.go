package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Common errors for JWT operations.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrTokenSigningFailed  = errors.New("failed to sign token")
	ErrInvalidSecretLength = errors.New("JWT secret must be at least 32 characters")
	ErrInvalidTTL          = errors.New("JWT TTL must be at least one second")
)

const tokenCacheSize = 128

// MinTTL is the shortest token lifetime. Expiry claims have second precision.
const MinTTL = time.Second

// JWTConfig holds configuration for minting and verifying tokens.
type JWTConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the token issuer claim. Default: "stagehand"
	Issuer string

	// Subject is the default subject for minted tokens.
	Subject string

	Audience []string

	// TTL is the lifetime of minted tokens. Default: 15 minutes.
	TTL time.Duration
}

func (c *JWTConfig) applyDefaults() error {
	if len(c.Secret) < 32 {
		return ErrInvalidSecretLength
	}
	if c.Issuer == "" {
		c.Issuer = "stagehand"
	}
	if c.TTL == 0 {
		c.TTL = 15 * time.Minute
	}
	if c.TTL < MinTTL {
		return fmt.Errorf("%w: got %s", ErrInvalidTTL, c.TTL)
	}
	return nil
}

// Claims is the payload of a stagehand token.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTSource is a TokenSource minting HS256 tokens. Tokens are reused for
// half their lifetime so a cached token is never close to expiry.
type JWTSource struct {
	config JWTConfig
	cache  *expirable.LRU[string, string]
	now    func() time.Time
}

// NewJWTSource creates a token source with the given configuration.
func NewJWTSource(config JWTConfig) (*JWTSource, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	return &JWTSource{
		config: config,
		cache:  expirable.NewLRU[string, string](tokenCacheSize, nil, config.TTL/2),
		now:    time.Now,
	}, nil
}

// Token returns a token for the configured subject.
func (s *JWTSource) Token(ctx context.Context) (string, error) {
	return s.TokenFor(ctx, s.config.Subject)
}

// TokenFor returns a token for subject, minting one if none is cached.
func (s *JWTSource) TokenFor(ctx context.Context, subject string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if token, ok := s.cache.Get(subject); ok {
		return token, nil
	}

	token, err := s.mint(subject)
	if err != nil {
		return "", err
	}
	s.cache.Add(subject, token)
	return token, nil
}

// Invalidate drops any cached token for subject.
func (s *JWTSource) Invalidate(subject string) {
	s.cache.Remove(subject)
}

func (s *JWTSource) mint(subject string) (string, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   subject,
			Audience:  s.config.Audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenSigningFailed, err)
	}
	return signed, nil
}

// JWTVerifier validates tokens minted with the same secret and issuer.
type JWTVerifier struct {
	config JWTConfig
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier. Audience, when set, must be present in every token.
func NewJWTVerifier(config JWTConfig) (*JWTVerifier, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(config.Issuer),
		jwt.WithExpirationRequired(),
	}
	for _, aud := range config.Audience {
		opts = append(opts, jwt.WithAudience(aud))
	}
	return &JWTVerifier{config: config, parser: jwt.NewParser(opts...)}, nil
}

// Verify validates a token and returns its claims.
func (v *JWTVerifier) Verify(tokenString string) (*Claims, error) {
	token, err := v.parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
