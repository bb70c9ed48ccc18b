// Package token decodes the claims of signed JWTs for local expiry and identity
// inspection.
//
// Signatures are not verified here: tokens come straight from the identity
// provider over TLS, and authorization decisions are made server-side. Decoding
// uses a self-contained base64url decoder so behavior does not depend on the
// host's codec facilities.
package token

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	authkit "github.com/chimerakang/authkit-go"
	"github.com/golang-jwt/jwt/v5"
)

// ClaimSet is the decoded payload of a token.
type ClaimSet = jwt.MapClaims

// DecodeClaims returns the payload claims of tok.
// It fails with authkit.ErrMalformedToken unless tok has exactly three
// dot-separated segments and a payload that decodes to a JSON object.
func DecodeClaims(tok string) (ClaimSet, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", authkit.ErrMalformedToken, len(parts))
	}
	raw, err := decodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", authkit.ErrMalformedToken, err)
	}
	var claims map[string]any
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, fmt.Errorf("%w: payload json: %v", authkit.ErrMalformedToken, err)
	}
	if claims == nil {
		return nil, fmt.Errorf("%w: payload is null", authkit.ErrMalformedToken)
	}
	return ClaimSet(claims), nil
}

// IsExpired reports whether tok should be treated as expired now.
func IsExpired(tok string, buffer time.Duration) bool {
	return IsExpiredAt(tok, buffer, time.Now())
}

// IsExpiredAt reports whether tok is malformed, lacks a numeric exp claim, or
// expires before now+buffer. Comparison is in milliseconds.
func IsExpiredAt(tok string, buffer time.Duration, now time.Time) bool {
	claims, err := DecodeClaims(tok)
	if err != nil {
		return true
	}
	exp, ok := numericClaim(claims, "exp")
	if !ok || exp == 0 {
		return true
	}
	return exp*1000 < float64(now.UnixMilli()+buffer.Milliseconds())
}

// ExpiresAt returns the exp claim of tok as a time.
func ExpiresAt(tok string) (time.Time, bool) {
	claims, err := DecodeClaims(tok)
	if err != nil {
		return time.Time{}, false
	}
	exp, ok := numericClaim(claims, "exp")
	if !ok || exp == 0 {
		return time.Time{}, false
	}
	sec, frac := math.Modf(exp)
	return time.Unix(int64(sec), int64(frac*1e9)), true
}

func numericClaim(claims ClaimSet, name string) (float64, bool) {
	switch v := claims[name].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
