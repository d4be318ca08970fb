package oauth

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"clawdchat-mcp/pkg/logging"
	pkceutil "clawdchat-mcp/pkg/oauth"
)

// defaultScopes is applied when an authorization request names none.
var defaultScopes = []string{"agent"}

// AuthorizeParams captures the validated parameters of an authorization
// request.
type AuthorizeParams struct {
	RedirectURI                   string
	RedirectURIProvidedExplicitly bool
	CodeChallenge                 string
	State                         string
	Scopes                        []string
	Resource                      string
}

// Provider implements the authorization server side of the OAuth 2.1
// authorization-code + PKCE + refresh flow. User authentication itself is
// delegated to the login flow, which resolves an agent identity and calls
// IssueAuthCode.
type Provider struct {
	store     *Store
	serverURL string
}

// NewProvider creates a provider over the given store. serverURL is this
// server's externally reachable base URL, used to build the login redirect.
func NewProvider(store *Store, serverURL string) *Provider {
	return &Provider{
		store:     store,
		serverURL: strings.TrimRight(serverURL, "/"),
	}
}

// Store returns the underlying token store.
func (p *Provider) Store() *Store {
	return p.store
}

// GetClient returns the registered client or nil.
func (p *Provider) GetClient(clientID string) *ClientData {
	return p.store.GetClient(clientID)
}

// RegisterClient validates and stores a dynamic client registration,
// filling in protocol defaults.
func (p *Provider) RegisterClient(data *ClientData) error {
	if len(data.GrantTypes) == 0 {
		data.GrantTypes = []string{"authorization_code", "refresh_token"}
	}
	if len(data.ResponseTypes) == 0 {
		data.ResponseTypes = []string{"code"}
	}
	if data.TokenEndpointAuthMethod == "" {
		data.TokenEndpointAuthMethod = "none"
	}
	if data.ClientIDIssuedAt == 0 {
		data.ClientIDIssuedAt = time.Now().Unix()
	}
	return p.store.RegisterClient(data)
}

// Authorize starts an authorization attempt: it records a PendingLogin
// keyed by a fresh internal state and returns the login page URL to
// redirect the user to. The client's own state parameter is preserved on
// the PendingLogin and echoed back only in the final redirect.
func (p *Provider) Authorize(client *ClientData, params AuthorizeParams) (string, error) {
	state, err := pkceutil.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate login state: %w", err)
	}

	scopes := params.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}

	p.store.StorePendingLogin(&PendingLogin{
		State:                         state,
		OAuthState:                    params.State,
		ClientID:                      client.ClientID,
		RedirectURI:                   params.RedirectURI,
		RedirectURIProvidedExplicitly: params.RedirectURIProvidedExplicitly,
		CodeChallenge:                 params.CodeChallenge,
		Scopes:                        scopes,
		Resource:                      params.Resource,
		CreatedAt:                     time.Now(),
	})

	logging.Debug("OAuth", "Created pending login for client %s", client.ClientID)
	return fmt.Sprintf("%s/auth/login?state=%s", p.serverURL, state), nil
}

// IssueAuthCode mints a one-time authorization code carrying the resolved
// identity binding and consumes the pending login. It returns the full
// redirect URI for the client, embedding the code and the client's
// original OAuth state.
func (p *Provider) IssueAuthCode(pending *PendingLogin, binding IdentityBinding) (string, error) {
	code, err := pkceutil.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}

	p.store.StoreAuthCode(&AuthCodeData{
		Code:                          code,
		ClientID:                      pending.ClientID,
		RedirectURI:                   pending.RedirectURI,
		RedirectURIProvidedExplicitly: pending.RedirectURIProvidedExplicitly,
		CodeChallenge:                 pending.CodeChallenge,
		Scopes:                        pending.Scopes,
		ExpiresAt:                     time.Now().Add(AuthCodeTTL),
		Resource:                      pending.Resource,
		IdentityBinding:               binding,
	})

	p.store.ConsumePendingLogin(pending.State)

	redirect := constructRedirectURI(pending.RedirectURI, code, pending.OAuthState)
	logging.Info("OAuth", "Issued authorization code for agent %s (client %s)", binding.AgentName, pending.ClientID)
	return redirect, nil
}

// ExchangeAuthorizationCode consumes an authorization code and mints an
// access/refresh token pair bound to the identity resolved during login.
// The code is burned even when a later check fails, so a failed exchange
// cannot be retried with corrected parameters.
func (p *Provider) ExchangeAuthorizationCode(client *ClientData, code, codeVerifier, redirectURI string) (*TokenResponse, error) {
	data := p.store.ConsumeAuthCode(code)
	if data == nil {
		return nil, newError(ErrInvalidGrant, "authorization code not found or expired")
	}
	if data.ClientID != client.ClientID {
		return nil, newError(ErrInvalidGrant, "authorization code was issued to a different client")
	}
	if data.RedirectURIProvidedExplicitly && redirectURI != data.RedirectURI {
		return nil, newError(ErrInvalidGrant, "redirect_uri does not match the authorization request")
	}
	if !pkceutil.VerifyS256(codeVerifier, data.CodeChallenge) {
		return nil, newError(ErrInvalidGrant, "PKCE verification failed")
	}

	return p.mintTokenPair(client.ClientID, data.Scopes, data.Resource, data.IdentityBinding)
}

// LoadAuthorizationCode returns the live authorization code data, or nil
// when the code is unknown, expired, or owned by a different client. The
// code is not consumed.
func (p *Provider) LoadAuthorizationCode(client *ClientData, code string) *AuthCodeData {
	data := p.store.GetAuthCode(code)
	if data == nil || data.ClientID != client.ClientID {
		return nil
	}
	return data
}

// LoadRefreshToken returns the live refresh token data, or nil when the
// token is unknown, expired, or owned by a different client.
func (p *Provider) LoadRefreshToken(client *ClientData, token string) *RefreshTokenData {
	data := p.store.GetRefreshToken(token)
	if data == nil || data.ClientID != client.ClientID {
		return nil
	}
	return data
}

// ExchangeRefreshToken rotates a refresh token: the old token is revoked
// before the new pair is stored, so a replayed token is always rejected.
// Caller-supplied scopes override the stored ones; otherwise the original
// scopes persist.
func (p *Provider) ExchangeRefreshToken(client *ClientData, refreshToken string, scopes []string) (*TokenResponse, error) {
	old := p.LoadRefreshToken(client, refreshToken)
	if old == nil {
		return nil, newError(ErrInvalidGrant, "refresh token not found, expired, or issued to a different client")
	}

	p.store.RevokeRefreshToken(refreshToken)

	useScopes := scopes
	if len(useScopes) == 0 {
		useScopes = old.Scopes
	}

	return p.mintTokenPair(client.ClientID, useScopes, "", old.IdentityBinding)
}

func (p *Provider) mintTokenPair(clientID string, scopes []string, resource string, binding IdentityBinding) (*TokenResponse, error) {
	accessToken, err := pkceutil.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := pkceutil.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	now := time.Now()

	p.store.StoreAccessToken(&AccessTokenData{
		Token:           accessToken,
		ClientID:        clientID,
		Scopes:          scopes,
		ExpiresAt:       now.Add(AccessTokenTTL),
		Resource:        resource,
		IdentityBinding: binding,
	})
	p.store.StoreRefreshToken(&RefreshTokenData{
		Token:           refreshToken,
		ClientID:        clientID,
		Scopes:          scopes,
		ExpiresAt:       now.Add(RefreshTokenTTL),
		IdentityBinding: binding,
	})

	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(AccessTokenTTL.Seconds()),
		RefreshToken: refreshToken,
		Scope:        strings.Join(scopes, " "),
	}, nil
}

// LoadAccessToken returns the live access token data, or nil when the
// token is unknown or expired.
func (p *Provider) LoadAccessToken(token string) *AccessTokenData {
	return p.store.GetAccessToken(token)
}

// RevokeToken revokes a token by its discriminated kind.
func (p *Provider) RevokeToken(kind TokenKind, token string) {
	switch kind {
	case KindAccessToken:
		p.store.RevokeAccessToken(token)
	case KindRefreshToken:
		p.store.RevokeRefreshToken(token)
	}
}

// constructRedirectURI appends the code and optional state to the client's
// redirect URI, preserving any existing query parameters.
func constructRedirectURI(redirectURI, code, state string) string {
	sep := "?"
	if strings.Contains(redirectURI, "?") {
		sep = "&"
	}
	uri := fmt.Sprintf("%s%scode=%s", redirectURI, sep, url.QueryEscape(code))
	if state != "" {
		uri += "&state=" + url.QueryEscape(state)
	}
	return uri
}
