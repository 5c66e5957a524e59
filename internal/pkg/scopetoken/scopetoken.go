// Package scopetoken issues and verifies the HS256 tokens that bind a caller
// to a retrieval scope.
package scopetoken

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/helmsan/kompass/internal/model"
)

type Claims struct {
	Org      string `json:"org"`
	Division string `json:"division,omitempty"`
	App      string `json:"app,omitempty"`
	jwtlib.RegisteredClaims
}

func (c *Claims) Scope() model.Scope {
	return model.Scope{Org: c.Org, Division: c.Division, App: c.App}
}

func GenerateToken(scope model.Scope, secret []byte, ttl time.Duration) (string, error) {
	claims := Claims{
		Org:      scope.Org,
		Division: scope.Division,
		App:      scope.App,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(time.Now()),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenString, &Claims{}, func(token *jwtlib.Token) (interface{}, error) {
		if token.Method.Alg() != jwtlib.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
