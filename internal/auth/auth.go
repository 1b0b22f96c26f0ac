package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/avello/storefront/internal/auth/config"
)

// The login handshake happens at an external identity provider. What
// arrives here is its signed token; the email and name claims are
// trusted as the customer/staff identity.

const (
	HeaderEmailKey = "X-Identity-Email"
	HeaderNameKey  = "X-Identity-Name"
)

var ErrInvalidToken = errors.New("invalid identity token")

type Auth interface {
	Middleware(h http.HandlerFunc) http.HandlerFunc
}

type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
}

type auth struct {
	secret []byte
}

func NewAuth(cfg config.Config) Auth {
	return &auth{secret: []byte(cfg.Secret)}
}

func (a *auth) Middleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.parse(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		r.Header.Set(HeaderEmailKey, claims.Email)
		r.Header.Set(HeaderNameKey, claims.Name)

		h.ServeHTTP(w, r)
	}
}

func (a *auth) parse(r *http.Request) (*Claims, error) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return a.secret, nil
		})
	if err != nil || !token.Valid || claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
