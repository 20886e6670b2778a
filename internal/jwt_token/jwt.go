// Package jwttoken verifies the bearer tokens devices and operators present.
// Issuing tokens belongs to the identity provider; this service only checks
// the signature, expiry, issuer and audience, then reads the tenant scope.
package jwttoken

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	id "timekeep/pkg/domain"
	dErrors "timekeep/pkg/domain-errors"
)

// Claims represents the JWT claims carried by device and operator tokens.
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Principal is the verified result of a token.
type Principal struct {
	TenantID id.TenantID
	Actor    string
}

// Verifier validates HMAC-signed tokens.
type Verifier struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewVerifier(signingKey, issuer, audience string) *Verifier {
	return &Verifier{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// Verify checks tokenString and returns the principal it names.
func (v *Verifier) Verify(tokenString string) (*Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return v.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	tenantID, err := id.ParseTenantID(claims.TenantID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no valid tenant scope")
	}
	if claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}

	return &Principal{TenantID: tenantID, Actor: claims.Subject}, nil
}
