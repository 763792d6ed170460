package auth

import (
	"errors"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

var ErrMissingBearerToken = errors.New("auth: bearer token required")

// AccessVerifier resolves an access token into an identity.
type AccessVerifier interface {
	VerifyAccess(token string) (Identity, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	if r == nil {
		return "", ErrMissingBearerToken
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrMissingBearerToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return "", ErrMissingBearerToken
	}
	return token, nil
}

// AuthenticateRequest extracts the bearer token from r and verifies it.
func AuthenticateRequest(verifier AccessVerifier, r *http.Request) (Identity, error) {
	token, err := BearerToken(r)
	if err != nil {
		return Identity{}, err
	}
	return verifier.VerifyAccess(token)
}
