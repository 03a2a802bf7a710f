package utils

import (
	"fmt"
	"time"

	"nudfans-backend/models"

	"github.com/golang-jwt/jwt"
)

func GenerateJWT(user models.User, secret string, hours int) (string, error) {
	claims := jwt.MapClaims{
		"user_id":   user.ID,
		"role":      string(user.Role),
		"user_type": string(user.UserType),
		"exp":       time.Now().Add(time.Hour * time.Duration(hours)).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func DecodeJWT(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid signature method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid or expired token")
}
