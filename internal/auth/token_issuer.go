package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTokenTTL  = time.Hour
	defaultRefreshTokenTTL = 7 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	ErrMissingAccessSecret  = errors.New("token issuer: access secret required")
	ErrMissingRefreshSecret = errors.New("token issuer: refresh secret required")
	ErrMissingIssuer        = errors.New("token issuer: issuer required")
	ErrMissingAudience      = errors.New("token issuer: audience required")
	ErrInvalidTokenTTL      = errors.New("token issuer: ttl must be positive")
	ErrMissingIdentity      = errors.New("token issuer: identity id required")
	ErrInvalidToken         = errors.New("token issuer: invalid token")
	ErrExpiredToken         = errors.New("token issuer: token expired")
)

// Identity is the public identity carried by an access token.
type Identity struct {
	ID    string
	Email string
	Name  string
}

// TokenPair bundles a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresIn  int64
	RefreshExpiresIn int64
}

type accessClaims struct {
	UserID    string `json:"id"`
	UserEmail string `json:"email"`
	UserName  string `json:"name"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	UserID    string `json:"id"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenIssuerConfig configures the JWT issuer.
type TokenIssuerConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Clock         func() time.Time
}

// TokenIssuer issues and verifies HS256 access and refresh tokens.
// Both token kinds are signed with separate secrets and carry a type claim.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	clock         func() time.Time
}

// NewTokenIssuer validates the configuration and applies default lifetimes.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, ErrMissingAccessSecret
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, ErrMissingRefreshSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		return nil, ErrMissingAudience
	}
	accessTTL := cfg.AccessTTL
	if accessTTL == 0 {
		accessTTL = defaultAccessTokenTTL
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL == 0 {
		refreshTTL = defaultRefreshTokenTTL
	}
	if accessTTL < 0 || refreshTTL < 0 {
		return nil, ErrInvalidTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		accessSecret:  append([]byte(nil), cfg.AccessSecret...),
		refreshSecret: append([]byte(nil), cfg.RefreshSecret...),
		issuer:        issuer,
		audience:      audience,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		clock:         clock,
	}, nil
}

// IssueTokens signs a new access/refresh pair for the identity.
func (i *TokenIssuer) IssueTokens(identity Identity) (TokenPair, error) {
	if strings.TrimSpace(identity.ID) == "" {
		return TokenPair{}, ErrMissingIdentity
	}

	now := i.clock().UTC()
	access := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		UserID:           identity.ID,
		UserEmail:        identity.Email,
		UserName:         identity.Name,
		TokenType:        tokenTypeAccess,
		RegisteredClaims: i.registeredClaims(identity.ID, now, i.accessTTL),
	})
	accessToken, err := access.SignedString(i.accessSecret)
	if err != nil {
		return TokenPair{}, err
	}

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims{
		UserID:           identity.ID,
		TokenType:        tokenTypeRefresh,
		RegisteredClaims: i.registeredClaims(identity.ID, now, i.refreshTTL),
	})
	refreshToken, err := refresh.SignedString(i.refreshSecret)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresIn:  int64(i.accessTTL.Seconds()),
		RefreshExpiresIn: int64(i.refreshTTL.Seconds()),
	}, nil
}

// VerifyAccess returns the identity of a valid access token.
func (i *TokenIssuer) VerifyAccess(tokenString string) (Identity, error) {
	claims := &accessClaims{}
	if err := i.parse(tokenString, claims, i.accessSecret); err != nil {
		return Identity{}, err
	}
	if claims.TokenType != tokenTypeAccess {
		return Identity{}, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.TokenType)
	}
	if strings.TrimSpace(claims.UserID) == "" || claims.UserID != claims.Subject {
		return Identity{}, fmt.Errorf("%w: subject mismatch", ErrInvalidToken)
	}
	return Identity{ID: claims.UserID, Email: claims.UserEmail, Name: claims.UserName}, nil
}

// VerifyRefresh returns the user id of a valid refresh token.
func (i *TokenIssuer) VerifyRefresh(tokenString string) (string, error) {
	claims := &refreshClaims{}
	if err := i.parse(tokenString, claims, i.refreshSecret); err != nil {
		return "", err
	}
	if claims.TokenType != tokenTypeRefresh {
		return "", fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.TokenType)
	}
	if strings.TrimSpace(claims.UserID) == "" || claims.UserID != claims.Subject {
		return "", fmt.Errorf("%w: subject mismatch", ErrInvalidToken)
	}
	return claims.UserID, nil
}

func (i *TokenIssuer) registeredClaims(subject string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    i.issuer,
		Audience:  []string{i.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (i *TokenIssuer) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm %s", t.Method.Alg())
			}
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
