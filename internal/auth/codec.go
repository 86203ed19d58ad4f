// Package auth issues and verifies the signed credentials carried by game
// servers (bearer tokens) and dashboard operators (session cookies).
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformedToken is returned when a token is structurally invalid,
	// fails signature verification, or lacks a required claim.
	ErrMalformedToken = errors.New("malformed token")

	// ErrExpiredToken is returned by Verify for well-formed tokens whose
	// expiry has passed.
	ErrExpiredToken = errors.New("token is expired")
)

// Claims is the claim set carried by every credential. Payload holds the
// principal-specific data as raw JSON.
type Claims struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	jwt.RegisteredClaims
}

// Expired reports whether the credential is no longer valid at now.
// A credential is valid iff now < exp.
func (c *Claims) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt.Time)
}

// Bind decodes the payload into v.
func (c *Claims) Bind(v any) error {
	if len(c.Payload) == 0 {
		return fmt.Errorf("%w: missing payload", ErrMalformedToken)
	}
	if err := json.Unmarshal(c.Payload, v); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}
	return nil
}

// Codec signs and verifies HS256 credentials.
type Codec struct {
	secret []byte
	Now    func() time.Time
}

func NewCodec(secret string) *Codec {
	return &Codec{
		secret: []byte(secret),
		Now:    time.Now,
	}
}

// Encode signs a credential for subject that expires ttl from now.
func (c *Codec) Encode(subject string, payload any, ttl time.Duration) (string, error) {
	now := c.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("encode payload: %w", err)
		}
		claims.Payload = raw
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Decode verifies the signature and structure of a token. It does not
// reject expired tokens; callers check Claims.Expired so that the two
// failure kinds stay distinguishable.
func (c *Codec) Decode(token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrMalformedToken)
	}
	return &claims, nil
}

// Verify decodes the token and rejects it with ErrExpiredToken when it
// has expired.
func (c *Codec) Verify(token string) (*Claims, error) {
	claims, err := c.Decode(token)
	if err != nil {
		return nil, err
	}
	if claims.Expired(c.Now()) {
		return claims, ErrExpiredToken
	}
	return claims, nil
}
