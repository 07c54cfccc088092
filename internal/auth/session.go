// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidSeat = errors.New("invalid seat token")

// SeatClaims bind a player to one seat of one room. They let a dropped client take
// its seat back after reconnecting.
type SeatClaims struct {
	RoomCode    string `json:"room"`
	PlayerIndex int    `json:"idx"`
	PlayerName  string `json:"name"`
	jwt.RegisteredClaims
}

// PlayerID returns the subject as a uuid.
func (c SeatClaims) PlayerID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// SeatIssuer signs and verifies seat tokens with an ed25519 key pair.
type SeatIssuer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	ttl        time.Duration // 0 means tokens never expire
}

// NewSeatIssuer generates a fresh key pair. Tokens do not survive a relay restart,
// and neither do the rooms they point at.
func NewSeatIssuer(ttl time.Duration) (*SeatIssuer, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &SeatIssuer{privateKey: priv, publicKey: pub, ttl: ttl}, nil
}

// Issue signs a token for playerID sitting at idx in room code.
func (s *SeatIssuer) Issue(playerID uuid.UUID, code string, idx int, name string) (string, error) {
	now := time.Now()
	claims := SeatClaims{
		RoomCode:    code,
		PlayerIndex: idx,
		PlayerName:  name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  playerID.String(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.privateKey)
}

// Verify checks the signature and expiry of a seat token and returns its claims.
func (s *SeatIssuer) Verify(tokenString string) (SeatClaims, error) {
	var claims SeatClaims
	t, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	})
	if err != nil {
		return SeatClaims{}, fmt.Errorf("%w: %v", ErrInvalidSeat, err)
	}
	if !t.Valid {
		return SeatClaims{}, ErrInvalidSeat
	}
	if _, err := claims.PlayerID(); err != nil {
		return SeatClaims{}, fmt.Errorf("%w: bad subject", ErrInvalidSeat)
	}
	if claims.RoomCode == "" {
		return SeatClaims{}, fmt.Errorf("%w: missing room", ErrInvalidSeat)
	}
	return claims, nil
}
