package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/syndromed/backend/internal/models"
)

var (
	jwtSecret            = []byte("change-me-in-production")
	jwtExpirationMinutes = 30
)

type Claims struct {
	PrincipalID uint                 `json:"principalID"`
	Kind        models.PrincipalKind `json:"kind"`
	Email       string               `json:"email"`
	jwt.RegisteredClaims
}

func ConfigureJWT(secret string, expirationMinutes int) {
	if secret != "" {
		jwtSecret = []byte(secret)
	}
	if expirationMinutes > 0 {
		jwtExpirationMinutes = expirationMinutes
	}
}

func GenerateToken(kind models.PrincipalKind, principalID uint, email string) (string, error) {
	expiresAt := time.Now().Add(time.Duration(jwtExpirationMinutes) * time.Minute)
	claims := Claims{
		PrincipalID: principalID,
		Kind:        kind,
		Email:       email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   email,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ValidateToken fails closed: decode errors, signature mismatches, expiry and
// missing identity claims all come back as an error.
func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	switch claims.Kind {
	case models.KindAdmin, models.KindDoctor, models.KindNormalUser:
	default:
		return nil, fmt.Errorf("unknown principal kind in token")
	}
	if claims.PrincipalID == 0 || claims.Email == "" {
		return nil, fmt.Errorf("incomplete token claims")
	}

	return claims, nil
}
