package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails parsing or verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the token payload: the user id and email, plus an optional expiry.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"id"`
	Email  string `json:"email"`
}

// TokenCodec signs and verifies bearer tokens.
type TokenCodec interface {
	Sign(claims Claims) (string, error)
	Verify(token string) (*Claims, error)
}

// JWTCodec is an HS256 TokenCodec.
type JWTCodec struct {
	secret []byte
	ttl    time.Duration
	clock  Clock
}

// NewJWTCodec creates a codec with the given HMAC secret. A zero ttl issues
// tokens without an expiry claim.
func NewJWTCodec(secret []byte, ttl time.Duration) *JWTCodec {
	return &JWTCodec{secret: secret, ttl: ttl, clock: realClock{}}
}

// SetClock replaces the clock used for iat/exp. Intended for testing.
func (c *JWTCodec) SetClock(clock Clock) {
	c.clock = clock
}

// Sign issues a token for the claims. IssuedAt and ExpiresAt are filled in
// from the codec's clock and ttl.
func (c *JWTCodec) Sign(claims Claims) (string, error) {
	now := c.clock.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	if c.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token. Tokens signed with anything other than
// HMAC are rejected.
func (c *JWTCodec) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.clock.Now), jwt.WithIssuedAt())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
