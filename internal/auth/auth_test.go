package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestParseRoundTrip(t *testing.T) {
	v := &Verifier{Secret: []byte("s3cret")}
	tok, err := v.Issue(User{ID: "u1", Email: "a@b.c", Role: RoleAdmin}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	u, err := v.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.ID != "u1" || u.Email != "a@b.c" || !u.IsAdmin() {
		t.Errorf("Expected admin u1, got %+v", u)
	}
}

func TestParseRejects(t *testing.T) {
	v := &Verifier{Secret: []byte("s3cret")}
	other := &Verifier{Secret: []byte("other")}

	expired, _ := v.Issue(User{ID: "u1"}, -time.Minute)
	wrongKey, _ := other.Issue(User{ID: "u1"}, time.Minute)
	noSub, _ := v.Issue(User{}, time.Minute)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{
		"expired":   expired,
		"wrong key": wrongKey,
		"no sub":    noSub,
		"alg none":  none,
		"garbage":   "abc",
	} {
		if _, err := v.Parse(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestMiddleware(t *testing.T) {
	v := &Verifier{Secret: []byte("k")}
	user, _ := v.Issue(User{ID: "u1", Role: "customer"}, time.Minute)
	admin, _ := v.Issue(User{ID: "a1", Role: RoleAdmin}, time.Minute)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	tests := []struct {
		name    string
		handler http.Handler
		token   string
		want    int
	}{
		{"anonymous on require", v.Middleware(Require(ok)), "", http.StatusUnauthorized},
		{"user on require", v.Middleware(Require(ok)), user, http.StatusNoContent},
		{"bad token", v.Middleware(ok), "nope", http.StatusUnauthorized},
		{"user on admin", v.Middleware(RequireAdmin(ok)), user, http.StatusForbidden},
		{"admin on admin", v.Middleware(RequireAdmin(ok)), admin, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
