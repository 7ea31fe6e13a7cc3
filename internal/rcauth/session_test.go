package rcauth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openclaw/ringcentral-bridge/internal/rcconfig"
)

func TestBearerTokenFetchesAndCachesToken(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer server.Close()

	sess := New(rcconfig.Credentials{ClientID: "cid", ClientSecret: "secret", JWT: "signing-key", Server: server.URL}, nil)

	tok, err := sess.BearerToken(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "tok-1" {
		t.Fatalf("token = %q, want tok-1", tok)
	}

	if _, err := sess.BearerToken(t.Context()); err != nil {
		t.Fatalf("unexpected error on cached call: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected token endpoint to be called once (cached thereafter), got %d calls", calls)
	}
}

func TestBearerTokenPassesThroughPreSignedJWT(t *testing.T) {
	var gotAssertion string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotAssertion = r.FormValue("assertion")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-2","expires_in":3600}`))
	}))
	defer server.Close()

	preSigned := "header.payload.signature"
	sess := New(rcconfig.Credentials{ClientID: "cid", ClientSecret: "secret", JWT: preSigned, Server: server.URL}, nil)
	if _, err := sess.BearerToken(t.Context()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAssertion != preSigned {
		t.Fatalf("assertion = %q, want the pre-signed JWT passed straight through", gotAssertion)
	}
}

func TestBearerTokenFailsFatallyOnInvalidGrant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Wrong Access Token"}`))
	}))
	defer server.Close()

	sess := New(rcconfig.Credentials{ClientID: "cid", ClientSecret: "secret", JWT: "key", Server: server.URL}, nil)
	_, err := sess.BearerToken(t.Context())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestInvalidateForcesRefreshOnNextCall(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","expires_in":3600}`))
	}))
	defer server.Close()

	sess := New(rcconfig.Credentials{ClientID: "cid", ClientSecret: "secret", JWT: "key", Server: server.URL}, nil)
	if _, err := sess.BearerToken(t.Context()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess.Invalidate()
	if _, err := sess.BearerToken(t.Context()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected a fresh fetch after Invalidate, got %d calls", calls)
	}
}
