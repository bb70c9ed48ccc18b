// Package fake provides in-memory implementations of the authkit collaborators for testing.
//
// Use fake.NewIdentityProvider, fake.NewBackend and fake.NewStore in unit tests to
// avoid network calls. Tokens issued by the fake provider are real HS256 JWTs whose
// claims the token package can decode.
package fake

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningKey signs every token minted by this package.
var SigningKey = []byte("authkit-fake-signing-key")

// Token mints an HS256 JWT carrying claims.
func Token(claims map[string]any) string {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims)).SignedString(SigningKey)
	if err != nil {
		panic("fake: sign token: " + err.Error())
	}
	return tok
}

// TokenExpiringAt mints a token for sub whose exp claim is at.
func TokenExpiringAt(sub string, at time.Time) string {
	return Token(map[string]any{
		"sub":       sub,
		"token_use": "access",
		"exp":       at.Unix(),
	})
}
