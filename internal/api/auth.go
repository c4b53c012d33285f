package api

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt"
)

const (
	tokenCookieKey = "token"
	userIdClaim    = "user-id"
)

type contextKey string

const userIdKey contextKey = "user-id"

func WithUserId(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, userIdKey, userId)
}

// UserId returns the user proven by the request's token cookie.
func UserId(ctx context.Context) (string, bool) {
	userId, ok := ctx.Value(userIdKey).(string)
	return userId, ok && userId != ""
}

func (s *RelayApp) verifyToken(tokenString string) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return token, nil
}

func (s *RelayApp) extractUserIdFromToken(tokenString string) (string, error) {
	token, err := s.verifyToken(tokenString)
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return "", fmt.Errorf("invalid user id claim")
	}

	return userId, nil
}
