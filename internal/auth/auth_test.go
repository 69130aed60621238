package auth

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/davidahmann/proofofchoice/pkg/types"
)

func newAuthenticator(t *testing.T) *TokenAuthenticator {
	t.Helper()
	a, err := NewTokenAuthenticator(map[string]types.Actor{
		"client-token": {ID: "u-1", Name: "J. Park", Role: types.RoleClient},
	})
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	return a
}

func TestAuthenticateKnownToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer client-token")
	claims, err := newAuthenticator(t).Authenticate(req)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if claims.Actor.ID != "u-1" || claims.Actor.Role != types.RoleClient {
		t.Fatalf("unexpected actor: %+v", claims.Actor)
	}
}

func TestAuthenticateLowercaseScheme(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "bearer client-token")
	if _, err := newAuthenticator(t).Authenticate(req); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	a := newAuthenticator(t)

	req := httptest.NewRequest("GET", "/", nil)
	if _, err := a.Authenticate(req); !errors.Is(err, ErrMissingBearer) {
		t.Fatalf("expected missing bearer, got %v", err)
	}

	for _, header := range []string{"Basic abc", "Bearer ", "Bearer nope"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", header)
		if _, err := a.Authenticate(req); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected invalid token for %q, got %v", header, err)
		}
	}
}

func TestDevToken(t *testing.T) {
	a := newAuthenticator(t).WithDevToken("dev-secret")
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer dev-secret")
	claims, err := a.Authenticate(req)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if claims.Actor.Role != types.RoleAdmin {
		t.Fatalf("expected admin dev actor, got %s", claims.Actor.Role)
	}
}

func TestNewTokenAuthenticatorRejectsBadActors(t *testing.T) {
	if _, err := NewTokenAuthenticator(map[string]types.Actor{"t": {ID: "u", Role: "owner"}}); err == nil {
		t.Fatalf("expected unknown role error")
	}
	if _, err := NewTokenAuthenticator(map[string]types.Actor{"t": {Role: types.RoleClient}}); err == nil {
		t.Fatalf("expected missing id error")
	}
	if _, err := NewTokenAuthenticator(map[string]types.Actor{" ": {ID: "u", Role: types.RoleClient}}); err == nil {
		t.Fatalf("expected empty token error")
	}
}
