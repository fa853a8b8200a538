// Package identity mints and verifies compact participant identity tokens.
//
// This is not user authentication (spec Non-goals exclude auth beyond
// cleartext password comparison) — it gives the coordinator a
// tamper-evident opaque participant identifier ("p_self" in the design
// notes) for data nodes and chat nodes that register with it, without a
// server-side session table. The coordinator is the sole signer and sole
// verifier, so there is no JWKS/remote-key-distribution need: unlike the
// teacher's auth.Validator, this package owns a single local HMAC key.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Surface names a remote surface a participant token is scoped to.
type Surface string

const (
	SurfaceDataParticipant Surface = "DataParticipant"
	SurfaceDataOps         Surface = "DataOps"
	SurfaceChatOps         Surface = "ChatOps"
	SurfaceChatUserOps     Surface = "ChatUserOps"
)

// Claims binds a participant's network address and surface to a signed
// token, with the standard registered claims for issuance/expiry.
type Claims struct {
	Host           string  `json:"host"`
	OpsPort        int     `json:"ops_port"`
	ParticipantPort int    `json:"part_port,omitempty"`
	Surface        Surface `json:"surface"`
	jwt.RegisteredClaims
}

// Signer mints and verifies participant identity tokens with a single
// local HMAC key owned by the coordinator.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner constructs a Signer. ttl bounds how long a minted token is
// considered valid before the holder must re-register.
func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// Mint signs a new participant identity token for a node that just
// registered on the given surface.
func (s *Signer) Mint(host string, opsPort, participantPort int, surface Surface) (string, error) {
	now := time.Now()
	claims := Claims{
		Host:            host,
		OpsPort:         opsPort,
		ParticipantPort: participantPort,
		Surface:         surface,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign participant token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a participant identity token, returning its
// claims. Expired or tampered tokens are rejected.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse participant token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("participant token is invalid")
	}
	return claims, nil
}
