package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubVerifier struct {
	token *firebaseauth.Token
	err   error
	got   string
}

func (s *stubVerifier) VerifyIDToken(_ context.Context, raw string) (*firebaseauth.Token, error) {
	s.got = raw
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func serve(t *testing.T, a *Authenticator, header string, roles ...string) (*httptest.ResponseRecorder, *Identity) {
	t.Helper()
	var seen *Identity
	handler := a.RequireRoles(roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/status", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	code, _ := body["error"].(string)
	return code
}

func TestRequireRolesAcceptsEditor(t *testing.T) {
	verifier := &stubVerifier{token: &firebaseauth.Token{
		UID:    "editor-1",
		Claims: map[string]any{"role": "Editor", "email": "kim@example.com", "locale": "ko"},
	}}
	rec, identity := serve(t, NewAuthenticator(verifier), "Bearer abc", RoleAdmin, RoleEditor)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if verifier.got != "abc" {
		t.Fatalf("expected raw token to be forwarded, got %q", verifier.got)
	}
	if identity == nil || identity.UID != "editor-1" || identity.Email != "kim@example.com" {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if !identity.HasRole("EDITOR") || identity.HasRole(RoleAdmin) {
		t.Fatalf("unexpected roles %v", identity.Roles)
	}
}

func TestRequireRolesRejections(t *testing.T) {
	cases := []struct {
		name     string
		header   string
		verifier *stubVerifier
		status   int
		code     string
	}{
		{"missing header", "", &stubVerifier{}, http.StatusUnauthorized, "unauthenticated"},
		{"wrong scheme", "Basic abc", &stubVerifier{}, http.StatusUnauthorized, "unauthenticated"},
		{"expired", "Bearer abc", &stubVerifier{err: ErrTokenExpired}, http.StatusUnauthorized, "token_expired"},
		{"invalid", "Bearer abc", &stubVerifier{err: errors.New("boom")}, http.StatusUnauthorized, "invalid_token"},
		{"no role", "Bearer abc", &stubVerifier{token: &firebaseauth.Token{UID: "u", Claims: map[string]any{}}}, http.StatusForbidden, "missing_role"},
		{"reader role", "Bearer abc", &stubVerifier{token: &firebaseauth.Token{UID: "u", Claims: map[string]any{"role": "reader"}}}, http.StatusForbidden, "insufficient_role"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := serve(t, NewAuthenticator(tc.verifier), tc.header, RoleAdmin, RoleEditor)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if got := errorCode(t, rec); got != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, got)
			}
		})
	}
}

func TestRolesFromClaimsShapes(t *testing.T) {
	got := rolesFromClaims(map[string]any{
		"role":  "admin",
		"roles": []any{"Editor", "admin", 3},
	})
	if len(got) != 2 || got[0] != "admin" || got[1] != "editor" {
		t.Fatalf("unexpected roles %v", got)
	}
	got = rolesFromClaims(map[string]any{"roles": map[string]any{"editor": true, "admin": false}})
	if len(got) != 1 || got[0] != "editor" {
		t.Fatalf("unexpected roles from map %v", got)
	}
}

func TestSharedSecretVerifierRoundTrip(t *testing.T) {
	verifier, err := NewSharedSecretVerifier("0123456789abcdef0123456789abcdef", "manual")
	if err != nil {
		t.Fatalf("NewSharedSecretVerifier: %v", err)
	}
	raw, err := verifier.Sign("editor-7", []string{RoleEditor}, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	rec, identity := serve(t, NewAuthenticator(verifier), "Bearer "+raw, RoleEditor)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if identity.UID != "editor-7" || !identity.HasRole(RoleEditor) {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if identity.Token().Issuer != "manual" {
		t.Fatalf("expected issuer on token, got %q", identity.Token().Issuer)
	}
}

func TestSharedSecretVerifierRejects(t *testing.T) {
	verifier, _ := NewSharedSecretVerifier("0123456789abcdef0123456789abcdef", "manual")
	other, _ := NewSharedSecretVerifier("ffffffffffffffffffffffffffffffff", "manual")

	forged, _ := other.Sign("u", []string{RoleAdmin}, time.Hour)
	if _, err := verifier.VerifyIDToken(context.Background(), forged); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong secret, got %v", err)
	}

	past := time.Now().Add(-2 * time.Hour)
	verifier.now = func() time.Time { return past }
	expired, _ := verifier.Sign("u", []string{RoleAdmin}, time.Minute)
	verifier.now = time.Now
	if _, err := verifier.VerifyIDToken(context.Background(), expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	if _, err := NewSharedSecretVerifier("short", ""); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}
