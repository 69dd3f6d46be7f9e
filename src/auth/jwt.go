package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/orchestra-mcp/listsync/src/clock"
)

type tokenClaims struct {
	Name       string   `json:"name,omitempty"`
	Households []string `json:"households,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens carrying sub (account), jti
// (credential id) and exp.
type JWTVerifier struct {
	secret      []byte
	issuer      string
	revocations RevocationChecker
	clock       clock.Clock
}

// NewJWTVerifier creates a verifier. revocations may be nil.
func NewJWTVerifier(secret []byte, issuer string, revocations RevocationChecker, c clock.Clock) *JWTVerifier {
	return &JWTVerifier{
		secret:      secret,
		issuer:      issuer,
		revocations: revocations,
		clock:       c,
	}
}

// Verify checks signature, expiry and revocation, in that order.
func (v *JWTVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock.Now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var tc tokenClaims
	_, err := jwt.ParseWithClaims(raw, &tc, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tc.Subject == "" || tc.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", ErrInvalidToken)
	}

	if v.revocations != nil && v.revocations.IsRevoked(ctx, tc.ID) {
		return nil, ErrTokenRevoked
	}

	return &Claims{
		AccountID:   tc.Subject,
		DisplayName: tc.Name,
		TokenID:     tc.ID,
		Households:  tc.Households,
		ExpiresAt:   tc.ExpiresAt.Time,
	}, nil
}

// Sign issues an HS256 token for c. Used by tooling and tests; production
// credentials come from the identity service.
func Sign(secret []byte, issuer string, c Claims) (string, error) {
	tc := tokenClaims{
		Name:       c.DisplayName,
		Households: c.Households,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.AccountID,
			ID:        c.TokenID,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(secret)
}

var _ Verifier = (*JWTVerifier)(nil)
