package jwt

import (
	"time"

	"github.com/golang-jwt/jwt"
)

// Payload defines the claims carried by an identity token.
type Payload struct {
	// StandardClaims embeds the registered fields (exp, iat, iss) checked on every parse.
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the user's UUID. Every authenticated request and websocket connection is keyed by it.
	ID string `json:"id"`
}

// ExpiresAt returns the token expiry as a time value.
func (p *Payload) ExpiresAt() time.Time {
	return time.Unix(p.StandardClaims.ExpiresAt, 0)
}
