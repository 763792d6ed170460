package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testAccessSecret  = "access-secret"
	testRefreshSecret = "refresh-secret"
	testIssuer        = "threadline-auth"
	testAudience      = "threadline-api"
	testUserID        = "user-123"
	testUserEmail     = "user@example.com"
	testUserName      = "Example User"
)

func newTestIssuer(t *testing.T, now time.Time) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		AccessSecret:  []byte(testAccessSecret),
		RefreshSecret: []byte(testRefreshSecret),
		Issuer:        testIssuer,
		Audience:      testAudience,
		Clock: func() time.Time {
			return now
		},
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return issuer
}

func TestTokenIssuerIssuesAccessTokens(t *testing.T) {
	issuer := newTestIssuer(t, time.Now())

	pair, err := issuer.IssueTokens(Identity{ID: testUserID, Email: testUserEmail, Name: testUserName})
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if pair.AccessExpiresIn != int64(time.Hour.Seconds()) {
		t.Fatalf("expected default access ttl of one hour, got %d", pair.AccessExpiresIn)
	}
	if pair.RefreshExpiresIn != int64((7 * 24 * time.Hour).Seconds()) {
		t.Fatalf("expected default refresh ttl of seven days, got %d", pair.RefreshExpiresIn)
	}

	claims := &accessClaims{}
	_, err = jwt.ParseWithClaims(pair.AccessToken, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(testAccessSecret), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}
	if claims.Subject != testUserID || claims.UserID != testUserID {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Issuer != testIssuer {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if len(claims.Audience) == 0 || claims.Audience[0] != testAudience {
		t.Fatalf("unexpected audience %#v", claims.Audience)
	}
	if claims.TokenType != tokenTypeAccess {
		t.Fatalf("unexpected token type %q", claims.TokenType)
	}
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t, time.Now())

	pair, err := issuer.IssueTokens(Identity{ID: testUserID, Email: testUserEmail, Name: testUserName})
	if err != nil {
		t.Fatalf("unexpected error issuing tokens: %v", err)
	}

	identity, err := issuer.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("expected access verification success: %v", err)
	}
	if identity.ID != testUserID || identity.Email != testUserEmail || identity.Name != testUserName {
		t.Fatalf("unexpected identity %#v", identity)
	}

	subject, err := issuer.VerifyRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("expected refresh verification success: %v", err)
	}
	if subject != testUserID {
		t.Fatalf("unexpected refresh subject %s", subject)
	}
}

func TestTokenIssuerRejectsSubstitutedTokenTypes(t *testing.T) {
	issuer := newTestIssuer(t, time.Now())
	pair, err := issuer.IssueTokens(Identity{ID: testUserID})
	if err != nil {
		t.Fatalf("unexpected error issuing tokens: %v", err)
	}

	if _, err := issuer.VerifyRefresh(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected access token to be rejected as refresh token, got %v", err)
	}
	if _, err := issuer.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected refresh token to be rejected as access token, got %v", err)
	}
}

func TestTokenIssuerRejectsTypeMismatchWithSharedSecret(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		AccessSecret:  []byte("shared"),
		RefreshSecret: []byte("shared"),
		Issuer:        testIssuer,
		Audience:      testAudience,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	pair, err := issuer.IssueTokens(Identity{ID: testUserID})
	if err != nil {
		t.Fatalf("unexpected error issuing tokens: %v", err)
	}

	if _, err := issuer.VerifyRefresh(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected type claim to reject access token, got %v", err)
	}
	if _, err := issuer.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected type claim to reject refresh token, got %v", err)
	}
}

func TestTokenIssuerRejectsExpiredTokens(t *testing.T) {
	issuedAt := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	current := issuedAt
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		AccessSecret:  []byte(testAccessSecret),
		RefreshSecret: []byte(testRefreshSecret),
		Issuer:        testIssuer,
		Audience:      testAudience,
		Clock: func() time.Time {
			return current
		},
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	pair, err := issuer.IssueTokens(Identity{ID: testUserID})
	if err != nil {
		t.Fatalf("unexpected error issuing tokens: %v", err)
	}

	current = issuedAt.Add(2 * time.Hour)
	if _, err := issuer.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expired access token, got %v", err)
	}
	if _, err := issuer.VerifyRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("expected refresh token to outlive access token: %v", err)
	}

	current = issuedAt.Add(8 * 24 * time.Hour)
	if _, err := issuer.VerifyRefresh(pair.RefreshToken); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expired refresh token, got %v", err)
	}
}

func TestTokenIssuerRejectsForeignSignatures(t *testing.T) {
	issuer := newTestIssuer(t, time.Now())
	other, err := NewTokenIssuer(TokenIssuerConfig{
		AccessSecret:  []byte("other-access"),
		RefreshSecret: []byte("other-refresh"),
		Issuer:        testIssuer,
		Audience:      testAudience,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	pair, err := other.IssueTokens(Identity{ID: testUserID})
	if err != nil {
		t.Fatalf("unexpected error issuing tokens: %v", err)
	}

	if _, err := issuer.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature mismatch to be rejected, got %v", err)
	}
	if _, err := issuer.VerifyAccess("invalid.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected malformed token to be rejected, got %v", err)
	}
}

func TestNewTokenIssuerValidatesConfig(t *testing.T) {
	testCases := []struct {
		name    string
		config  TokenIssuerConfig
		wantErr error
	}{
		{
			name:    "missing-access-secret",
			config:  TokenIssuerConfig{RefreshSecret: []byte("r"), Issuer: testIssuer, Audience: testAudience},
			wantErr: ErrMissingAccessSecret,
		},
		{
			name:    "missing-refresh-secret",
			config:  TokenIssuerConfig{AccessSecret: []byte("a"), Issuer: testIssuer, Audience: testAudience},
			wantErr: ErrMissingRefreshSecret,
		},
		{
			name:    "missing-issuer",
			config:  TokenIssuerConfig{AccessSecret: []byte("a"), RefreshSecret: []byte("r"), Audience: testAudience},
			wantErr: ErrMissingIssuer,
		},
		{
			name:    "blank-audience",
			config:  TokenIssuerConfig{AccessSecret: []byte("a"), RefreshSecret: []byte("r"), Issuer: testIssuer, Audience: " "},
			wantErr: ErrMissingAudience,
		},
		{
			name: "negative-ttl",
			config: TokenIssuerConfig{
				AccessSecret:  []byte("a"),
				RefreshSecret: []byte("r"),
				Issuer:        testIssuer,
				Audience:      testAudience,
				AccessTTL:     -time.Minute,
			},
			wantErr: ErrInvalidTokenTTL,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := NewTokenIssuer(testCase.config)
			if !errors.Is(err, testCase.wantErr) {
				t.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestIssueTokensRequiresIdentity(t *testing.T) {
	issuer := newTestIssuer(t, time.Now())
	if _, err := issuer.IssueTokens(Identity{}); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected missing identity error, got %v", err)
	}
}
