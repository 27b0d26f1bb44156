package linking

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const markerPurpose = "hf_registration"

// Marker es el snapshot del registro en curso. Existe solo durante el
// round trip al proveedor que siguió al alta de la cuenta.
type Marker struct {
	Name      string
	Email     string
	UID       string
	CreatedAt time.Time
}

type markerClaims struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// MarkerCodec firma y verifica markers como JWT HS256 (valor de cookie).
type MarkerCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewMarkerCodec crea el codec. ttl acota la vida del marker aunque el browser conserve la cookie.
func NewMarkerCodec(secret []byte, ttl time.Duration) *MarkerCodec {
	return &MarkerCodec{secret: secret, ttl: ttl, now: time.Now}
}

// TTL es la vida del marker.
func (c *MarkerCodec) TTL() time.Duration { return c.ttl }

// Encode firma m.
func (c *MarkerCodec) Encode(m Marker) (string, error) {
	if len(c.secret) == 0 {
		return "", errors.New("linking: marker secret not configured")
	}
	now := c.now()
	claims := markerClaims{
		Name:    m.Name,
		Email:   m.Email,
		Purpose: markerPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   m.UID,
			IssuedAt:  jwt.NewNumericDate(m.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode verifica firma, propósito y expiración.
func (c *MarkerCodec) Decode(raw string) (*Marker, error) {
	var claims markerClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("linking: invalid marker: %w", err)
	}
	if claims.Purpose != markerPurpose || claims.Subject == "" {
		return nil, errors.New("linking: invalid marker: wrong purpose")
	}
	m := &Marker{Name: claims.Name, Email: claims.Email, UID: claims.Subject}
	if claims.IssuedAt != nil {
		m.CreatedAt = claims.IssuedAt.Time
	}
	return m, nil
}
