package security

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// testOBOSecret signs tokens for unit tests only. Nothing here verifies it.
var testOBOSecret = []byte("lakechat-test-obo-secret-32bytes")

// NewTestOBOToken returns a signed JWT for subject expiring at exp, shaped like the
// token the proxy forwards. For unit tests only.
func NewTestOBOToken(subject string, exp time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "https://proxy.test",
		IssuedAt:  jwt.NewNumericDate(exp.Add(-time.Hour)),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testOBOSecret)
}
