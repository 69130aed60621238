package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/davidahmann/proofofchoice/pkg/types"
)

var (
	ErrMissingBearer = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
)

type Claims struct {
	Actor types.Actor
	Token string
}

type Authenticator interface {
	Authenticate(r *http.Request) (Claims, error)
}

// TokenAuthenticator maps static bearer tokens to the actors they act as.
type TokenAuthenticator struct {
	tokens map[string]types.Actor
}

func NewTokenAuthenticator(tokens map[string]types.Actor) (*TokenAuthenticator, error) {
	out := make(map[string]types.Actor, len(tokens))
	for token, actor := range tokens {
		if strings.TrimSpace(token) == "" {
			return nil, errors.New("auth: empty token")
		}
		if actor.ID == "" {
			return nil, errors.New("auth: token without actor id")
		}
		if !actor.Role.Valid() {
			return nil, errors.New("auth: actor " + actor.ID + " has unknown role " + string(actor.Role))
		}
		out[token] = actor
	}
	return &TokenAuthenticator{tokens: out}, nil
}

// WithDevToken adds a token that acts as an admin. An empty token is ignored.
func (a *TokenAuthenticator) WithDevToken(token string) *TokenAuthenticator {
	if token != "" {
		a.tokens[token] = types.Actor{ID: "dev", Name: "Developer", Role: types.RoleAdmin}
	}
	return a
}

func (a *TokenAuthenticator) Authenticate(r *http.Request) (Claims, error) {
	bearer, err := extractBearer(r)
	if err != nil {
		return Claims{}, err
	}

	for token, actor := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(bearer)) == 1 {
			return Claims{Actor: actor, Token: bearer}, nil
		}
	}
	return Claims{}, ErrInvalidToken
}

func extractBearer(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingBearer
	}
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(auth[7:])
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
