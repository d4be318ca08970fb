package oauth

import "time"

// Token lifetimes.
const (
	// AccessTokenTTL is the lifetime of issued access tokens.
	AccessTokenTTL = time.Hour
	// RefreshTokenTTL is the lifetime of issued refresh tokens.
	RefreshTokenTTL = 7 * 24 * time.Hour
	// AuthCodeTTL is the lifetime of authorization codes.
	AuthCodeTTL = 5 * time.Minute
	// PendingLoginTTL bounds how long a login attempt may stay in flight.
	PendingLoginTTL = 10 * time.Minute
)

// IdentityBinding is the resolved agent identity carried by every
// authorization code and token. It is decided once, at code-issuance time,
// and propagated through exchange and refresh unchanged. Only the explicit
// agent-switch operation rewrites it.
type IdentityBinding struct {
	AgentAPIKey string `json:"agent_api_key"`
	AgentID     string `json:"agent_id"`
	AgentName   string `json:"agent_name"`
	UserJWT     string `json:"user_jwt"`
}

// ClientData is a dynamically registered OAuth client.
type ClientData struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt   int64    `json:"client_secret_expires_at,omitempty"`
}

// HasRedirectURI reports whether uri is one of the client's registered
// redirect URIs.
func (c *ClientData) HasRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// PendingLogin is an in-flight authorization attempt, keyed by the internal
// state token. OAuthState is the client's own state parameter and must be
// echoed back untouched in the final redirect.
type PendingLogin struct {
	State                         string
	OAuthState                    string
	ClientID                      string
	RedirectURI                   string
	RedirectURIProvidedExplicitly bool
	CodeChallenge                 string
	Scopes                        []string
	Resource                      string

	// Set once backend authentication succeeds.
	UserJWT  string
	UserInfo map[string]any

	CreatedAt time.Time
}

// AuthCodeData is a one-time authorization code. Codes are short-lived and
// never persisted to disk.
type AuthCodeData struct {
	Code                          string
	ClientID                      string
	RedirectURI                   string
	RedirectURIProvidedExplicitly bool
	CodeChallenge                 string
	Scopes                        []string
	ExpiresAt                     time.Time
	Resource                      string

	IdentityBinding
}

// AccessTokenData is an issued bearer access token with its agent binding.
type AccessTokenData struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expires_at"`
	Resource  string    `json:"resource,omitempty"`

	IdentityBinding
}

// RefreshTokenData is an issued refresh token. Single use: exchanging it
// revokes it and mints a fresh pair.
type RefreshTokenData struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expires_at"`

	IdentityBinding
}

// TokenKind discriminates revocable token types.
type TokenKind int

const (
	// KindAccessToken identifies an access token.
	KindAccessToken TokenKind = iota
	// KindRefreshToken identifies a refresh token.
	KindRefreshToken
)

func (k TokenKind) String() string {
	switch k {
	case KindAccessToken:
		return "access_token"
	case KindRefreshToken:
		return "refresh_token"
	default:
		return "unknown"
	}
}

// TokenResponse is the token endpoint's success payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Error is an OAuth protocol error with a standard error identifier.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// Standard OAuth error identifiers used by this server.
const (
	ErrInvalidRequest     = "invalid_request"
	ErrInvalidClient      = "invalid_client"
	ErrInvalidGrant       = "invalid_grant"
	ErrInvalidRedirectURI = "invalid_redirect_uri"
	ErrUnsupportedGrant   = "unsupported_grant_type"
	ErrServerError        = "server_error"
)

func newError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}
