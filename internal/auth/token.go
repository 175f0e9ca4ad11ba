package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"multidrive/internal/api"
)

// TokenSource wraps oauth2 with automatic refresh. A refresh failure is
// reported as api.ErrReauthRequired so callers can flag the account for
// reconnection.
type TokenSource struct {
	config       *oauth2.Config
	refreshToken string
	currentToken *oauth2.Token
}

// NewTokenSource creates a TokenSource for an account's refresh token.
func NewTokenSource(config *oauth2.Config, refreshToken string) *TokenSource {
	return &TokenSource{
		config:       config,
		refreshToken: refreshToken,
	}
}

// Token returns a valid token, refreshing if necessary.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	if ts.currentToken != nil && ts.currentToken.Valid() {
		return ts.currentToken, nil
	}

	seed := &oauth2.Token{RefreshToken: ts.refreshToken}
	newToken, err := ts.config.TokenSource(context.Background(), seed).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrReauthRequired, err)
	}

	ts.currentToken = newToken
	return newToken, nil
}

// RefreshToken returns the most recent refresh token. Google occasionally
// rotates it on refresh.
func (ts *TokenSource) RefreshToken() string {
	if ts.currentToken != nil && ts.currentToken.RefreshToken != "" {
		return ts.currentToken.RefreshToken
	}
	return ts.refreshToken
}

// Validate checks that a refresh token can still mint access tokens.
func Validate(config *oauth2.Config, refreshToken string) error {
	_, err := NewTokenSource(config, refreshToken).Token()
	return err
}
