package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// UserIdentityExpiration is the lifetime of tokens issued at signup, login and websocket refresh.
	UserIdentityExpiration = 24 * time.Hour

	// TokenIssuer is stamped into every token and required on parse.
	TokenIssuer = "DMChat-Server"
)

var (
	// ErrTokenExpired is returned for well-signed tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid covers every other rejection: bad signature, wrong issuer, missing user id.
	ErrTokenInvalid = errors.New("token invalid")
)

// GenerateToken signs payload as an HS256 token valid for duration.
func GenerateToken(payload *Payload, secretKey string, duration time.Duration) (string, error) {
	now := time.Now()

	payload.StandardClaims = jwt.StandardClaims{
		ExpiresAt: now.Add(duration).Unix(),
		IssuedAt:  now.Unix(),
		Issuer:    TokenIssuer,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString([]byte(secretKey))
}

// IssueIdentity returns a standard identity token for userID and its expiry.
func IssueIdentity(userID, secretKey string) (string, time.Time, error) {
	payload := &Payload{ID: userID}
	token, err := GenerateToken(payload, secretKey, UserIdentityExpiration)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign identity token: %w", err)
	}
	return token, payload.ExpiresAt(), nil
}

// ParseToken verifies tokenString and returns its identity. Failures wrap
// ErrTokenExpired or ErrTokenInvalid.
func ParseToken(tokenString string, secretKey string) (*Payload, error) {
	claims := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	switch {
	case !token.Valid:
		return nil, ErrTokenInvalid
	case claims.Issuer != TokenIssuer:
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrTokenInvalid, claims.Issuer)
	case claims.ID == "":
		return nil, fmt.Errorf("%w: no user id", ErrTokenInvalid)
	}

	return claims, nil
}
