package api

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
)

var defaultJwtExpiration = time.Hour * 24

const expClaim = "exp"

func createJwtCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// createJwtForSession signs a token the way the account service does.
func (s *RelayApp) createJwtForSession(userId string, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(s.signingKey)
}
