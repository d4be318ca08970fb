package oauth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, *Provider) {
	t.Helper()
	store := NewMemoryStore()
	t.Cleanup(store.Stop)
	p := NewProvider(store, "http://localhost:8000")
	return NewHandler(p, "http://localhost:8000"), p
}

func TestServeMetadata(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil)
	rec := httptest.NewRecorder()
	h.ServeMetadata(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, "http://localhost:8000", meta["issuer"])
	assert.Equal(t, "http://localhost:8000/oauth/token", meta["token_endpoint"])
	assert.Contains(t, meta["code_challenge_methods_supported"], "S256")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestServeRegister(t *testing.T) {
	h, p := newTestHandler(t)

	body := `{"redirect_uris": ["https://client/cb"], "client_name": "Test"}`
	req := httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeRegister(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	var client ClientData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &client))
	assert.NotEmpty(t, client.ClientID)
	assert.Equal(t, []string{"authorization_code", "refresh_token"}, client.GrantTypes)
	assert.Equal(t, "none", client.TokenEndpointAuthMethod)
	assert.NotNil(t, p.GetClient(client.ClientID))
}

func TestServeRegisterRejectsEmptyRedirectURIs(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(`{"client_name": "x"}`))
	rec := httptest.NewRecorder()
	h.ServeRegister(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrInvalidRedirectURI)
}

func TestServeAuthorizeRedirectsToLogin(t *testing.T) {
	h, p := newTestHandler(t)
	require.NoError(t, p.RegisterClient(&ClientData{
		ClientID:     "c1",
		RedirectURIs: []string{"https://client/cb"},
	}))

	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {"c1"},
		"redirect_uri":          {"https://client/cb"},
		"code_challenge":        {"challenge"},
		"code_challenge_method": {"S256"},
		"state":                 {"client-state"},
	}
	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	h.ServeAuthorize(rec, req)

	require.Equal(t, http.StatusFound, rec.Code, "body: %s", rec.Body.String())
	loc := rec.Header().Get("Location")
	assert.Contains(t, loc, "/auth/login?state=")
}

func TestServeAuthorizeValidation(t *testing.T) {
	h, p := newTestHandler(t)
	require.NoError(t, p.RegisterClient(&ClientData{
		ClientID:     "c1",
		RedirectURIs: []string{"https://client/cb"},
	}))

	cases := []struct {
		name  string
		query url.Values
	}{
		{"unknown client", url.Values{"response_type": {"code"}, "client_id": {"nope"}, "code_challenge": {"x"}}},
		{"bad response type", url.Values{"response_type": {"token"}, "client_id": {"c1"}, "code_challenge": {"x"}}},
		{"unregistered redirect", url.Values{"response_type": {"code"}, "client_id": {"c1"}, "redirect_uri": {"https://evil/cb"}, "code_challenge": {"x"}}},
		{"missing challenge", url.Values{"response_type": {"code"}, "client_id": {"c1"}, "redirect_uri": {"https://client/cb"}}},
		{"plain method", url.Values{"response_type": {"code"}, "client_id": {"c1"}, "redirect_uri": {"https://client/cb"}, "code_challenge": {"x"}, "code_challenge_method": {"plain"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+tc.query.Encode(), nil)
			rec := httptest.NewRecorder()
			h.ServeAuthorize(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestServeTokenFullExchange(t *testing.T) {
	h, p := newTestHandler(t)
	client := &ClientData{ClientID: "c1", RedirectURIs: []string{"https://client/cb"}}
	require.NoError(t, p.RegisterClient(client))

	redirect, verifier := authorizeAndIssue(t, p, client, "s")
	code := codeFromRedirect(t, redirect)

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"c1"},
		"code":          {code},
		"code_verifier": {verifier},
		"redirect_uri":  {"https://client/cb"},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeToken(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	var resp TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotEmpty(t, resp.AccessToken)

	// Refresh grant rotates the pair.
	form = url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {"c1"},
		"refresh_token": {resp.RefreshToken},
	}
	req = httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h.ServeToken(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	var refreshed TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refreshed))
	assert.NotEqual(t, resp.RefreshToken, refreshed.RefreshToken)
}

func TestServeTokenUnsupportedGrant(t *testing.T) {
	h, p := newTestHandler(t)
	require.NoError(t, p.RegisterClient(&ClientData{ClientID: "c1", RedirectURIs: []string{"https://client/cb"}}))

	form := url.Values{"grant_type": {"password"}, "client_id": {"c1"}}
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeToken(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrUnsupportedGrant)
}

func TestServeRevokeAlwaysSucceeds(t *testing.T) {
	h, p := newTestHandler(t)
	p.Store().StoreAccessToken(&AccessTokenData{
		Token:     "tok",
		ClientID:  "c1",
		ExpiresAt: time.Now().Add(time.Hour),
	})

	form := url.Values{"token": {"tok"}}
	req := httptest.NewRequest(http.MethodPost, "/oauth/revoke", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeRevoke(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, p.LoadAccessToken("tok"))

	// Unknown tokens still yield 200 per RFC 7009.
	form = url.Values{"token": {"unknown"}}
	req = httptest.NewRequest(http.MethodPost, "/oauth/revoke", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h.ServeRevoke(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireToken(t *testing.T) {
	h, p := newTestHandler(t)
	p.Store().StoreAccessToken(&AccessTokenData{
		Token:           "valid",
		ClientID:        "c1",
		ExpiresAt:       time.Now().Add(time.Hour),
		IdentityBinding: testBinding(),
	})

	var seen *AccessTokenData
	protected := h.RequireToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AccessTokenFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer valid")
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "TestBot", seen.AgentName)

	req = httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")

	req = httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
