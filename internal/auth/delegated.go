package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// DelegatedVerifier validates identity-provider ID tokens and extracts
// the claims DelegatedLogin consumes. Tokens are verified for signature,
// expiry, issuer and audience before any claim is trusted.
type DelegatedVerifier struct {
	issuer   string
	audience string
	secret   []byte
	parser   *jwt.Parser
}

// NewDelegatedVerifier constructs a verifier bound to one provider.
func NewDelegatedVerifier(issuer, audience, secret string) (*DelegatedVerifier, error) {
	if issuer == "" || audience == "" || secret == "" {
		return nil, errors.New("auth: delegated verifier requires issuer, audience and secret")
	}
	return &DelegatedVerifier{
		issuer:   issuer,
		audience: audience,
		secret:   []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

type delegatedTokenClaims struct {
	Email     string `json:"email"`
	FirstName string `json:"given_name"`
	LastName  string `json:"family_name"`
	jwt.RegisteredClaims
}

// Verify parses and validates the raw ID token. Any failure maps to
// ErrInvalidToken; the caller never learns which check rejected it.
func (v *DelegatedVerifier) Verify(rawToken string) (DelegatedClaims, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return DelegatedClaims{}, ErrInvalidToken
	}
	var claims delegatedTokenClaims
	token, err := v.parser.ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return DelegatedClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.Email == "" {
		return DelegatedClaims{}, ErrInvalidToken
	}
	return DelegatedClaims{
		Subject:   claims.Subject,
		Email:     claims.Email,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
	}, nil
}
