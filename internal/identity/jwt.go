// Package identity is the adapter for the external identity collaborator.
// It verifies HS256 identity tokens and yields the authenticated acting user
// id. The subsystem trusts that id as given and performs only ownership
// checks on top of it.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for malformed, unsigned, or expired identity
// tokens.
var ErrInvalidToken = errors.New("invalid identity token")

// Claims carries the standard registered claims plus the acting user id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string
}

// GenerateToken mints an identity token for userID, valid for
// validityDuration. Used by tests and the development wiring; production
// tokens come from the platform's identity service.
func GenerateToken(userID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID: userID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetUserIDFromToken verifies tokenString and extracts the acting user id.
func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}

	return claims.UserID, nil
}
