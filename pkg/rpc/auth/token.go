package auth

import (
	"context"
	"errors"
)

// ErrNoToken is returned by a TokenSource that has nothing to offer.
var ErrNoToken = errors.New("auth: no token available")

// TokenSource supplies the bearer credential for one outgoing call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken returns a source that always yields token.
func StaticToken(token string) TokenSource {
	return TokenSourceFunc(func(context.Context) (string, error) {
		if token == "" {
			return "", ErrNoToken
		}
		return token, nil
	})
}
