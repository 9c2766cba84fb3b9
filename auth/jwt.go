package auth

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// JWTValidator verifies signed HS256 bearer tokens when a signing secret
// is configured. This replaces PermissiveBearerValidator's "accept any
// non-empty token" behavior with real signature verification; callers
// without a secret should use PermissiveBearerValidator instead.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator creates a validator that verifies tokens signed with secret.
func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

// Validate reports whether r's Bearer token is a validly signed,
// unexpired JWT.
func (v *JWTValidator) Validate(r *http.Request) bool {
	token := bearerToken(r)
	if token == "" {
		return false
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err == nil && parsed.Valid
}
