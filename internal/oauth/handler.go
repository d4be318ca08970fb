package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"clawdchat-mcp/pkg/logging"
)

// contextKey is a private type for context values set by this package.
type contextKey struct{ name string }

var accessTokenKey = contextKey{"access-token"}

// AccessTokenFromContext returns the access token data attached by
// RequireToken, or nil for unauthenticated requests.
func AccessTokenFromContext(ctx context.Context) *AccessTokenData {
	data, _ := ctx.Value(accessTokenKey).(*AccessTokenData)
	return data
}

// ContextWithAccessToken attaches access token data to a context. Exposed
// for tests and for the stdio transport, which has no HTTP middleware.
func ContextWithAccessToken(ctx context.Context, data *AccessTokenData) context.Context {
	return context.WithValue(ctx, accessTokenKey, data)
}

// Handler exposes the OAuth 2.1 protocol endpoints over HTTP: authorization
// server metadata, dynamic client registration, authorize, token, and
// revocation.
type Handler struct {
	provider  *Provider
	serverURL string
}

// NewHandler creates an HTTP handler layer over the provider. serverURL is
// the issuer identifier published in the metadata document.
func NewHandler(provider *Provider, serverURL string) *Handler {
	return &Handler{
		provider:  provider,
		serverURL: strings.TrimRight(serverURL, "/"),
	}
}

// RegisterRoutes mounts the OAuth endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Authorization Server Metadata endpoint (RFC 8414)
	mux.HandleFunc("/.well-known/oauth-authorization-server", h.ServeMetadata)

	// Dynamic Client Registration endpoint (RFC 7591)
	mux.HandleFunc("/oauth/register", h.ServeRegister)

	// OAuth Authorization endpoint
	mux.HandleFunc("/oauth/authorize", h.ServeAuthorize)

	// OAuth Token endpoint
	mux.HandleFunc("/oauth/token", h.ServeToken)

	// Token Revocation endpoint (RFC 7009)
	mux.HandleFunc("/oauth/revoke", h.ServeRevoke)

	logging.Info("OAuth", "Registered OAuth 2.1 endpoints")
}

// setSecurityHeaders applies security headers to OAuth responses.
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOAuthError(w http.ResponseWriter, status int, err error) {
	if oerr, ok := err.(*Error); ok {
		writeJSON(w, status, oerr)
		return
	}
	writeJSON(w, status, &Error{Code: ErrServerError, Description: "internal error"})
}

// ServeMetadata serves the authorization server metadata document.
func (h *Handler) ServeMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                h.serverURL,
		"authorization_endpoint":                h.serverURL + "/oauth/authorize",
		"token_endpoint":                        h.serverURL + "/oauth/token",
		"registration_endpoint":                 h.serverURL + "/oauth/register",
		"revocation_endpoint":                   h.serverURL + "/oauth/revoke",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{"none"},
		"scopes_supported":                      defaultScopes,
	})
}

// registrationRequest is the RFC 7591 client metadata accepted at
// registration.
type registrationRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	Scope                   string   `json:"scope"`
}

// ServeRegister handles dynamic client registration.
func (h *Handler) ServeRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, &Error{Code: ErrInvalidRequest, Description: "POST required"})
		return
	}

	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, &Error{Code: ErrInvalidRequest, Description: "invalid request body"})
		return
	}

	client := &ClientData{
		ClientID:                uuid.NewString(),
		RedirectURIs:            req.RedirectURIs,
		ClientName:              req.ClientName,
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
		Scope:                   req.Scope,
	}
	if err := h.provider.RegisterClient(client); err != nil {
		writeOAuthError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusCreated, client)
}

// ServeAuthorize handles the authorization endpoint. On success the browser
// is redirected to the login page keyed by a fresh internal state.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if rt := q.Get("response_type"); rt != "code" {
		writeJSON(w, http.StatusBadRequest, &Error{Code: ErrInvalidRequest, Description: fmt.Sprintf("unsupported response_type %q", rt)})
		return
	}

	client := h.provider.GetClient(q.Get("client_id"))
	if client == nil {
		writeJSON(w, http.StatusBadRequest, &Error{Code: ErrInvalidClient, Description: "unknown client_id"})
		return
	}

	// A client with exactly one registered redirect URI may omit the
	// parameter. Anything else must match the registration.
	redirectURI := q.Get("redirect_uri")
	explicit := redirectURI != ""
	if redirectURI == "" {
		if len(client.RedirectURIs) != 1 {
			writeJSON(w, http.StatusBadRequest, &Error{Code: ErrInvalidRequest, Description: "redirect_uri is required"})
			return
		}
		redirectURI = client.RedirectURIs[0]
	} else if !client.HasRedirectURI(redirectURI) {
		writeJSON(w, http.StatusBadRequest, &Error{Code: ErrInvalidRedirectURI, Description: "redirect_uri is not registered for this client"})
		return
	}

	codeChallenge := q.Get("code_challenge")
	if codeChallenge == "" {
		writeJSON(w, http.StatusBadRequest, &Error{Code: ErrInvalidRequest, Description: "code_challenge is required"})
		return
	}
	if method := q.Get("code_challenge_method"); method != "" && method != "S256" {
		writeJSON(w, http.StatusBadRequest, &Error{Code: ErrInvalidRequest, Description: "only S256 code_challenge_method is supported"})
		return
	}

	var scopes []string
	if s := q.Get("scope"); s != "" {
		scopes = strings.Fields(s)
	}

	loginURL, err := h.provider.Authorize(client, AuthorizeParams{
		RedirectURI:                   redirectURI,
		RedirectURIProvidedExplicitly: explicit,
		CodeChallenge:                 codeChallenge,
		State:                         q.Get("state"),
		Scopes:                        scopes,
		Resource:                      q.Get("resource"),
	})
	if err != nil {
		logging.Error("OAuth", err, "Authorize failed")
		writeOAuthError(w, http.StatusInternalServerError, err)
		return
	}

	setSecurityHeaders(w)
	http.Redirect(w, r, loginURL, http.StatusFound)
}

// ServeToken handles the token endpoint for both supported grants.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, &Error{Code: ErrInvalidRequest, Description: "POST required"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, &Error{Code: ErrInvalidRequest, Description: "invalid form body"})
		return
	}

	client := h.provider.GetClient(r.PostFormValue("client_id"))
	if client == nil {
		writeJSON(w, http.StatusBadRequest, &Error{Code: ErrInvalidClient, Description: "unknown client_id"})
		return
	}

	var resp *TokenResponse
	var err error
	switch grant := r.PostFormValue("grant_type"); grant {
	case "authorization_code":
		resp, err = h.provider.ExchangeAuthorizationCode(
			client,
			r.PostFormValue("code"),
			r.PostFormValue("code_verifier"),
			r.PostFormValue("redirect_uri"),
		)
	case "refresh_token":
		var scopes []string
		if s := r.PostFormValue("scope"); s != "" {
			scopes = strings.Fields(s)
		}
		resp, err = h.provider.ExchangeRefreshToken(client, r.PostFormValue("refresh_token"), scopes)
	default:
		err = newError(ErrUnsupportedGrant, fmt.Sprintf("unsupported grant_type %q", grant))
	}

	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ServeRevoke handles token revocation. Per RFC 7009 the endpoint returns
// 200 even for unknown tokens.
func (h *Handler) ServeRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, &Error{Code: ErrInvalidRequest, Description: "POST required"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, &Error{Code: ErrInvalidRequest, Description: "invalid form body"})
		return
	}

	token := r.PostFormValue("token")
	switch r.PostFormValue("token_type_hint") {
	case "refresh_token":
		h.provider.RevokeToken(KindRefreshToken, token)
	case "access_token":
		h.provider.RevokeToken(KindAccessToken, token)
	default:
		// No usable hint. Try both tables.
		h.provider.RevokeToken(KindAccessToken, token)
		h.provider.RevokeToken(KindRefreshToken, token)
	}

	setSecurityHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// RequireToken wraps next with bearer token validation. Valid requests get
// the access token data attached to their context; everything else receives
// 401 with a WWW-Authenticate challenge pointing at the metadata document.
func (h *Handler) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			h.unauthorized(w, "missing bearer token")
			return
		}

		data := h.provider.LoadAccessToken(token)
		if data == nil {
			h.unauthorized(w, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithAccessToken(r.Context(), data)))
	})
}

func (h *Handler) unauthorized(w http.ResponseWriter, description string) {
	setSecurityHeaders(w)
	w.Header().Set("WWW-Authenticate",
		fmt.Sprintf(`Bearer resource_metadata=%q, error="invalid_token", error_description=%q`,
			h.serverURL+"/.well-known/oauth-authorization-server", description))
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "invalid_token",
		"error_description": description,
	})
}
