package token

import (
	"strings"

	authkit "github.com/chimerakang/authkit-go"
)

// Username claims in priority order.
var usernameClaims = []string{"cognito:username", "preferred_username"}

// UserFromClaims derives the authenticated user from ID token claims.
func UserFromClaims(claims ClaimSet) *authkit.User {
	u := &authkit.User{
		Attributes: make(map[string]any, len(claims)),
	}
	for k, v := range claims {
		u.Attributes[k] = v
	}

	u.ID, _ = claims["sub"].(string)
	u.Email, _ = claims["email"].(string)

	for _, name := range usernameClaims {
		if v, ok := claims[name].(string); ok && v != "" {
			u.Username = v
			break
		}
	}
	if u.Username == "" && u.Email != "" {
		u.Username, _, _ = strings.Cut(u.Email, "@")
	}

	if v, ok := claims["email_verified"].(bool); ok && v {
		u.EmailVerified = true
	}
	if v, ok := claims["phone_number"].(string); ok {
		phone := v
		u.PhoneNumber = &phone
	}
	return u
}

// DecodeUser decodes idToken and derives its user.
func DecodeUser(idToken string) (*authkit.User, error) {
	claims, err := DecodeClaims(idToken)
	if err != nil {
		return nil, err
	}
	return UserFromClaims(claims), nil
}
