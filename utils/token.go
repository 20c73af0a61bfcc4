package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const adminSubject = "fitcheckr-admin"

// GenerateAdminToken issues a token for the admin endpoints, signed with the admin secret.
func GenerateAdminToken(secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("ADMIN_SECRET is not set")
	}

	claims := jwt.RegisteredClaims{
		Subject:   adminSubject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateAdminToken parses and validates an admin token
func ValidateAdminToken(secret, tokenString string) error {
	if secret == "" {
		return fmt.Errorf("ADMIN_SECRET is not set")
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithSubject(adminSubject), jwt.WithExpirationRequired())
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid admin token")
	}
	return nil
}
