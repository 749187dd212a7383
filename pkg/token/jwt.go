package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Expiry returns the expiration time of a JWT access token without
// verifying its signature. The zero time means the token is not a parseable
// JWT or carries no exp claim; callers should treat such tokens as opaque
// and let the server judge them.
func Expiry(raw string) time.Time {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := tok.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Expired reports whether a JWT access token expires within leeway from
// now. Non-JWT tokens are never considered expired.
func Expired(raw string, leeway time.Duration) bool {
	exp := Expiry(raw)
	if exp.IsZero() {
		return false
	}
	return !exp.After(time.Now().Add(leeway))
}
