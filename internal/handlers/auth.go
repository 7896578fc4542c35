package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 24 * time.Hour

// Authenticator issues and checks HS256 session tokens. With an empty
// secret it is disabled and lets every request through.
type Authenticator struct {
	secret   []byte
	password string
	ttl      time.Duration
	now      func() time.Time
}

func NewAuthenticator(secret, password string) *Authenticator {
	return &Authenticator{
		secret:   []byte(secret),
		password: password,
		ttl:      tokenTTL,
		now:      time.Now,
	}
}

func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0
}

func (a *Authenticator) CheckPassword(password string) bool {
	return a.password != "" && password == a.password
}

func (a *Authenticator) IssueToken() (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"iss": "cineplex",
		"sub": "ui",
		"iat": now.Unix(),
		"exp": now.Add(a.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Authenticator) Verify(raw string) error {
	_, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer("cineplex"),
		jwt.WithTimeFunc(a.now),
	)
	return err
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		raw, err := bearerToken(r)
		if err == nil {
			err = a.Verify(raw)
		}
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken reads the Authorization header, or the token query parameter
// for websocket clients that cannot set headers.
func bearerToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return "", errors.New("malformed authorization header")
		}
		return raw, nil
	}
	if raw := r.URL.Query().Get("token"); raw != "" {
		return raw, nil
	}
	return "", errors.New("missing token")
}
