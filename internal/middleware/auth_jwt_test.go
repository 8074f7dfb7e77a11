package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndVerifyJWT(t *testing.T) {
	token, err := SignJWT("secret", "u1", "u1@example.com", time.Hour)
	if err != nil {
		t.Fatalf("SignJWT() unexpected error: %v", err)
	}
	claims, err := VerifyJWT("secret", token)
	if err != nil {
		t.Fatalf("VerifyJWT() unexpected error: %v", err)
	}
	if claims.Subject != "u1" {
		t.Fatalf("subject = %q, want u1", claims.Subject)
	}
	if claims.Email != "u1@example.com" {
		t.Fatalf("email = %q, want u1@example.com", claims.Email)
	}
}

func TestVerifyJWTWrongSecret(t *testing.T) {
	token, err := SignJWT("secret", "u1", "", time.Hour)
	if err != nil {
		t.Fatalf("SignJWT() unexpected error: %v", err)
	}
	if _, err := VerifyJWT("other-secret", token); err == nil {
		t.Fatalf("VerifyJWT() accepted token signed with a different secret")
	}
}

func TestVerifyJWTExpired(t *testing.T) {
	token, err := SignJWT("secret", "u1", "", -time.Minute)
	if err != nil {
		t.Fatalf("SignJWT() unexpected error: %v", err)
	}
	if _, err := VerifyJWT("secret", token); err == nil {
		t.Fatalf("VerifyJWT() accepted an expired token")
	}
}

func TestAuthJWTMiddleware(t *testing.T) {
	var gotUserID string
	handler := AuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token, err := SignJWT("secret", "u1", "", time.Hour)
	if err != nil {
		t.Fatalf("SignJWT() unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUserID != "u1" {
		t.Fatalf("user id = %q, want u1", gotUserID)
	}
}

func TestAuthJWTMiddlewareRejects(t *testing.T) {
	handler := AuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler reached without valid token")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "garbage token", header: "Bearer not.a.jwt"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}
