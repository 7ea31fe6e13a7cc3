// Package rcauth implements Auth/Session (spec.md §4.2): given an Account's
// credentials, it exchanges the configured JWT assertion for a bearer
// access token via the RFC 7523 JWT-bearer grant, and refreshes it
// proactively before expiry. It follows the teacher's internal/auth
// convention of wrapping golang-jwt/v4 with small typed sentinel errors,
// adapted here to *sign* an assertion rather than validate an inbound one.
package rcauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/openclaw/ringcentral-bridge/internal/rcconfig"
	"github.com/openclaw/ringcentral-bridge/internal/rcerrors"
)

var (
	// ErrAuthentication marks a failure spec.md §7 classifies as fatal for
	// the subscription loop: 401 / invalid_grant. Callers should not retry.
	ErrAuthentication = errors.New("ringcentral: authentication failed")
)

// Session is a shared bearer-credential handle, safe for concurrent use by
// the platform client (C1) and the subscription manager (C3).
type Session struct {
	creds  rcconfig.Credentials
	client *http.Client

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// New creates a Session for the given credentials. httpClient may be nil,
// in which case a default client with a generous timeout is used.
func New(creds rcconfig.Credentials, httpClient *http.Client) *Session {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Session{creds: creds, client: httpClient}
}

// Server returns the platform base URL this session authenticates against.
func (s *Session) Server() string {
	return s.creds.Server
}

// BearerToken returns a valid access token, refreshing it if absent or
// within 60s of expiry.
func (s *Session) BearerToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && time.Now().Before(s.expiresAt.Add(-60*time.Second)) {
		return s.accessToken, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.accessToken, nil
}

// Invalidate discards the cached token, forcing the next BearerToken call
// to re-authenticate. Used when credentials change (§3 invariant).
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
	s.expiresAt = time.Time{}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

func (s *Session) refreshLocked(ctx context.Context) error {
	assertion, err := s.signAssertion()
	if err != nil {
		return fmt.Errorf("%w: building jwt assertion: %v", ErrAuthentication, err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)

	endpoint := strings.TrimRight(s.creds.Server, "/") + "/restapi/oauth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.creds.ClientID, s.creds.ClientSecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&tr); decErr != nil {
		return fmt.Errorf("decoding token response: %w", decErr)
	}

	if resp.StatusCode == http.StatusUnauthorized || tr.Error == "invalid_grant" {
		return fmt.Errorf("%w: %s %s", ErrAuthentication, tr.Error, tr.ErrorDesc)
	}
	if resp.StatusCode >= 400 {
		return rcerrors.Normalize(resp.StatusCode, flattenHeader(resp.Header), "", []byte(tr.ErrorDesc))
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("%w: empty access token in response", ErrAuthentication)
	}

	s.accessToken = tr.AccessToken
	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 35 * time.Minute
	}
	s.expiresAt = time.Now().Add(ttl)
	return nil
}

// signAssertion signs a short-lived JWT-bearer assertion. The configured
// `jwt` credential is itself a RingCentral-issued signed JWT (their JWT
// flow variant): when it already looks like a three-part JWT we pass it
// straight through as the assertion; otherwise we treat it as a raw HS256
// signing key and mint a RegisteredClaims assertion from it, mirroring how
// the teacher's StandardClaims embeds jwt.RegisteredClaims.
func (s *Session) signAssertion() (string, error) {
	if strings.Count(s.creds.JWT, ".") == 2 {
		return s.creds.JWT, nil
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.creds.ClientID,
		Subject:   s.creds.ClientID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.creds.JWT))
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[strings.ToLower(k)] = h.Get(k)
	}
	return out
}
