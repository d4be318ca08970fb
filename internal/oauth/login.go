package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"clawdchat-mcp/internal/clawdchat"
	"clawdchat-mcp/pkg/logging"
)

// googleAuthURL is Google's OAuth 2.0 authorization endpoint.
const googleAuthURL = "https://accounts.google.com/o/oauth2/v2/auth"

// userAPI is the slice of the backend identity API the login flow needs.
// Satisfied by *clawdchat.UserClient; tests substitute a fake.
type userAPI interface {
	PhoneLogin(ctx context.Context, phone string) (map[string]any, string, error)
	GoogleAPILogin(ctx context.Context, code, redirectURI string) (map[string]any, string, error)
	GetMyAgents(ctx context.Context) ([]clawdchat.Agent, error)
	GetAgentCredentials(ctx context.Context, agentID string) (*clawdchat.Credentials, error)
	ResetAgentKey(ctx context.Context, agentID string) (*clawdchat.Credentials, error)
}

// GoogleSettings configures the optional federated login via Google.
type GoogleSettings struct {
	ClientID    string
	RedirectURI string
}

// Enabled reports whether the Google login option should be offered.
func (g GoogleSettings) Enabled() bool {
	return g.ClientID != "" && g.RedirectURI != ""
}

// LoginFlow drives the user through phone or Google login and agent
// selection to authorization completion. It owns the HTML-facing routes
// under /auth/.
type LoginFlow struct {
	provider  *Provider
	store     *Store
	serverURL string
	google    GoogleSettings

	// newUserClient builds a backend client bound to a session JWT.
	// Replaceable in tests.
	newUserClient func(jwt string) userAPI
}

// NewLoginFlow creates the login flow. apiURL is the ClawdChat backend base
// URL and serverURL this server's public base URL.
func NewLoginFlow(provider *Provider, apiURL, serverURL string, google GoogleSettings) *LoginFlow {
	return &LoginFlow{
		provider:  provider,
		store:     provider.Store(),
		serverURL: strings.TrimRight(serverURL, "/"),
		google:    google,
		newUserClient: func(jwt string) userAPI {
			return clawdchat.NewUserClient(apiURL, jwt)
		},
	}
}

// RegisterRoutes mounts the login flow endpoints on mux.
func (f *LoginFlow) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/auth/login", f.ServeLoginPage)
	mux.HandleFunc("/auth/login/callback", f.ServeLoginCallback)
	mux.HandleFunc("/auth/select-agent", f.ServeSelectAgent)
	mux.HandleFunc("/auth/google/callback", f.ServeGoogleCallback)
}

// ServeLoginPage renders the login UI for a pending authorization attempt.
func (f *LoginFlow) ServeLoginPage(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" || f.store.GetPendingLogin(state) == nil {
		renderErrorPage(w, http.StatusBadRequest, "Session expired",
			"This login session is invalid or has expired. Please restart the authorization from your MCP client.")
		return
	}

	googleURL := ""
	if f.google.Enabled() {
		googleURL = f.buildGoogleAuthURL(state)
	}
	renderLoginPage(w, state, googleURL)
}

// loginCallbackRequest is the JSON body of the phone login callback.
type loginCallbackRequest struct {
	Phone string `json:"phone"`
	State string `json:"state"`
}

// ServeLoginCallback handles phone-based login. The response is JSON:
// {"redirect": url} to continue, {"error": msg} on failure, or a
// needs_reset payload when the selected agent has no stored key.
func (f *LoginFlow) ServeLoginCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeFlowError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req loginCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFlowError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Phone == "" || req.State == "" {
		writeFlowError(w, http.StatusBadRequest, "phone number and state are required")
		return
	}

	pending := f.store.GetPendingLogin(req.State)
	if pending == nil {
		writeFlowError(w, http.StatusBadRequest, "login session expired, please restart")
		return
	}

	ctx := r.Context()
	loginResult, jwt, err := f.newUserClient("").PhoneLogin(ctx, req.Phone)
	if err != nil {
		status, detail := backendErrorDetail(err)
		logging.Warn("OAuth", "Phone login failed: %v", err)
		writeFlowError(w, status, "login failed: "+detail)
		return
	}
	if jwt == "" {
		writeFlowError(w, http.StatusBadRequest, "login failed: no session credential returned")
		return
	}

	userInfo, _ := loginResult["user"].(map[string]any)
	f.store.SetPendingLoginUser(req.State, jwt, userInfo)
	pending = f.store.GetPendingLogin(req.State)
	if pending == nil {
		writeFlowError(w, http.StatusBadRequest, "login session expired, please restart")
		return
	}

	f.resolveAgentsJSON(w, r, req.State, pending)
}

// resolveAgentsJSON fetches the user's agents after a successful login and
// either completes authorization (one agent), asks for selection (many), or
// errors (none). Responses are JSON for the login page's script.
func (f *LoginFlow) resolveAgentsJSON(w http.ResponseWriter, r *http.Request, state string, pending *PendingLogin) {
	agents, err := f.newUserClient(pending.UserJWT).GetMyAgents(r.Context())
	if err != nil {
		status, detail := backendErrorDetail(err)
		writeFlowError(w, status, "failed to fetch agent list: "+detail)
		return
	}

	switch len(agents) {
	case 0:
		writeFlowError(w, http.StatusBadRequest,
			"you have not claimed any agent yet; claim one on ClawdChat first")
	case 1:
		f.completeAuthorizationJSON(w, r, pending, agents[0].ID, agents[0].Name, false)
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"redirect": "/auth/select-agent?state=" + url.QueryEscape(state),
		})
	}
}

// selectAgentRequest is the JSON body of the agent selection callback.
type selectAgentRequest struct {
	State        string `json:"state"`
	AgentID      string `json:"agent_id"`
	AgentName    string `json:"agent_name"`
	ConfirmReset bool   `json:"confirm_reset"`
}

// ServeSelectAgent renders the agent picker on GET and accepts the choice
// on POST.
func (f *LoginFlow) ServeSelectAgent(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		f.serveSelectAgentPage(w, r)
	case http.MethodPost:
		f.serveSelectAgentCallback(w, r)
	default:
		writeFlowError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (f *LoginFlow) serveSelectAgentPage(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	pending := f.store.GetPendingLogin(state)
	if pending == nil || pending.UserJWT == "" {
		renderErrorPage(w, http.StatusBadRequest, "Session expired",
			"This login session is invalid or has expired. Please restart the authorization from your MCP client.")
		return
	}

	agents, err := f.newUserClient(pending.UserJWT).GetMyAgents(r.Context())
	if err != nil {
		logging.Warn("OAuth", "Failed to fetch agents for selection page: %v", err)
		agents = nil
	}
	renderSelectAgentPage(w, state, agents)
}

func (f *LoginFlow) serveSelectAgentCallback(w http.ResponseWriter, r *http.Request) {
	var req selectAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFlowError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.State == "" || req.AgentID == "" {
		writeFlowError(w, http.StatusBadRequest, "state and agent_id are required")
		return
	}

	pending := f.store.GetPendingLogin(req.State)
	if pending == nil || pending.UserJWT == "" {
		writeFlowError(w, http.StatusBadRequest, "login session expired, please restart")
		return
	}

	f.completeAuthorizationJSON(w, r, pending, req.AgentID, req.AgentName, req.ConfirmReset)
}

// CompletionResult is the outcome of the authorization completion step.
// Exactly one of Redirect or NeedsReset is set.
type CompletionResult struct {
	// Redirect is the client redirect URI embedding the new code and the
	// client's original OAuth state.
	Redirect string

	// NeedsReset signals that the chosen agent has no stored API key and
	// the user must confirm the destructive reset before proceeding.
	NeedsReset bool
	AgentID    string
	AgentName  string
	Message    string
}

// CompleteAuthorization fetches the chosen agent's API key and mints the
// authorization code. An agent without a stored key triggers the
// confirmation gate: without confirmReset no reset is performed and a
// NeedsReset result is returned, since resetting invalidates the old key
// for any other integration using it.
func (f *LoginFlow) CompleteAuthorization(ctx context.Context, pending *PendingLogin, agentID, agentName string, confirmReset bool) (*CompletionResult, error) {
	client := f.newUserClient(pending.UserJWT)

	creds, err := client.GetAgentCredentials(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch agent credentials: %w", err)
	}
	apiKey := creds.APIKey

	if apiKey == "" {
		if !confirmReset {
			logging.Info("OAuth", "Agent %s has no stored key, asking user to confirm reset", agentName)
			return &CompletionResult{
				NeedsReset: true,
				AgentID:    agentID,
				AgentName:  agentName,
				Message: fmt.Sprintf(
					"Agent %q was registered before API keys were stored. A new key must be generated before it can be used here. Resetting invalidates the previous key.",
					agentName),
			}, nil
		}

		logging.Info("OAuth", "User confirmed reset for agent %s, resetting key", agentName)
		reset, err := client.ResetAgentKey(ctx, agentID)
		if err != nil {
			return nil, fmt.Errorf("failed to reset agent key: %w", err)
		}
		if reset.APIKey == "" {
			return nil, errors.New("agent key reset returned no key")
		}
		apiKey = reset.APIKey
	}

	redirect, err := f.provider.IssueAuthCode(pending, IdentityBinding{
		AgentAPIKey: apiKey,
		AgentID:     agentID,
		AgentName:   agentName,
		UserJWT:     pending.UserJWT,
	})
	if err != nil {
		return nil, err
	}
	return &CompletionResult{Redirect: redirect}, nil
}

func (f *LoginFlow) completeAuthorizationJSON(w http.ResponseWriter, r *http.Request, pending *PendingLogin, agentID, agentName string, confirmReset bool) {
	result, err := f.CompleteAuthorization(r.Context(), pending, agentID, agentName, confirmReset)
	if err != nil {
		status, detail := backendErrorDetail(err)
		logging.Error("OAuth", err, "Authorization completion failed")
		writeFlowError(w, status, detail)
		return
	}
	if result.NeedsReset {
		writeJSON(w, http.StatusOK, map[string]any{
			"needs_reset": true,
			"agent_id":    result.AgentID,
			"agent_name":  result.AgentName,
			"message":     result.Message,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"redirect": result.Redirect})
}

// buildGoogleAuthURL builds the Google authorization URL for a login
// attempt, threading the internal state through Google's state parameter.
func (f *LoginFlow) buildGoogleAuthURL(state string) string {
	cfg := &oauth2.Config{
		ClientID:    f.google.ClientID,
		RedirectURL: f.google.RedirectURI,
		Scopes:      []string{"email", "profile"},
		Endpoint:    oauth2.Endpoint{AuthURL: googleAuthURL},
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// ServeGoogleCallback is the browser redirect target from Google. The code
// is exchanged for a ClawdChat session via the backend, then the flow joins
// the same agent-resolution path as phone login.
func (f *LoginFlow) ServeGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		renderErrorPage(w, http.StatusBadRequest, "Google login failed", errParam)
		return
	}
	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		renderErrorPage(w, http.StatusBadRequest, "Missing parameters",
			"The Google callback is missing the code or state parameter.")
		return
	}

	pending := f.store.GetPendingLogin(state)
	if pending == nil {
		renderErrorPage(w, http.StatusBadRequest, "Session expired",
			"This login session is invalid or has expired. Please restart the authorization from your MCP client.")
		return
	}

	ctx := r.Context()
	loginResult, jwt, err := f.newUserClient("").GoogleAPILogin(ctx, code, f.google.RedirectURI)
	if err != nil {
		_, detail := backendErrorDetail(err)
		logging.Error("OAuth", err, "Google login via backend failed")
		renderErrorPage(w, http.StatusBadRequest, "Google login failed", detail)
		return
	}
	if jwt == "" {
		renderErrorPage(w, http.StatusBadRequest, "Google login failed", "No session credential returned.")
		return
	}

	userInfo, _ := loginResult["user"].(map[string]any)
	f.store.SetPendingLoginUser(state, jwt, userInfo)
	pending = f.store.GetPendingLogin(state)
	if pending == nil {
		renderErrorPage(w, http.StatusBadRequest, "Session expired",
			"This login session is invalid or has expired. Please restart the authorization from your MCP client.")
		return
	}

	agents, err := f.newUserClient(jwt).GetMyAgents(ctx)
	if err != nil {
		_, detail := backendErrorDetail(err)
		renderErrorPage(w, http.StatusBadRequest, "Failed to fetch agents", detail)
		return
	}

	selectURL := f.serverURL + "/auth/select-agent?state=" + url.QueryEscape(state)

	switch len(agents) {
	case 0:
		renderErrorPage(w, http.StatusBadRequest, "No agents claimed",
			"You have not claimed any agent yet. Claim one on ClawdChat first.")
	case 1:
		result, err := f.CompleteAuthorization(ctx, pending, agents[0].ID, agents[0].Name, false)
		if err != nil {
			_, detail := backendErrorDetail(err)
			renderErrorPage(w, http.StatusBadRequest, "Authorization failed", detail)
			return
		}
		if result.NeedsReset {
			// The picker page carries the reset confirmation UI.
			http.Redirect(w, r, selectURL, http.StatusFound)
			return
		}
		renderRedirectPage(w, result.Redirect)
	default:
		http.Redirect(w, r, selectURL, http.StatusFound)
	}
}

// backendErrorDetail maps an error to an HTTP status and user-facing
// detail. Backend API errors surface their own status and detail; anything
// else is a generic 500.
func backendErrorDetail(err error) (int, string) {
	var apiErr *clawdchat.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadRequest
		}
		return status, apiErr.Detail
	}
	return http.StatusInternalServerError, "internal error"
}

func writeFlowError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
