package stdioauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"clawdchat-mcp/internal/clawdchat"
	"clawdchat-mcp/pkg/logging"
	pkceutil "clawdchat-mcp/pkg/oauth"
)

// authTimeout bounds one browser login attempt. The callback listener is
// torn down when a key is obtained or this elapses, whichever comes first.
const authTimeout = 5 * time.Minute

// Phase is the coarse authentication state exposed to the tool layer.
type Phase string

const (
	PhaseNotAuthenticated Phase = "not_authenticated"
	PhaseNeedsSelection   Phase = "needs_selection"
	PhaseAuthenticated    Phase = "authenticated"
	PhaseError            Phase = "error"
)

// Status is a snapshot of the manager state for the tool layer.
type Status struct {
	Phase     Phase             `json:"status"`
	AgentID   string            `json:"agent_id,omitempty"`
	AgentName string            `json:"agent_name,omitempty"`
	Message   string            `json:"message,omitempty"`
	Error     string            `json:"error,omitempty"`
	Agents    []clawdchat.Agent `json:"agents,omitempty"`
}

// backendAPI is the slice of the backend identity API the manager needs.
type backendAPI interface {
	ExchangeExternalCode(ctx context.Context, code string) (map[string]any, error)
	GetMyAgents(ctx context.Context) ([]clawdchat.Agent, error)
	GetAgentCredentials(ctx context.Context, agentID string) (*clawdchat.Credentials, error)
	ResetAgentKey(ctx context.Context, agentID string) (*clawdchat.Credentials, error)
}

// Manager reproduces the HTTP-mode authorization outcome for the stdio
// transport: it runs a throwaway loopback HTTP listener for the duration of
// one browser login attempt and ends up holding an agent-bound API key.
//
// A stdio MCP server instance serves exactly one user session for its whole
// lifetime, so one Manager per process is sufficient. State is not
// persisted; each process run re-authenticates.
type Manager struct {
	apiURL string

	mu        sync.Mutex
	jwt       string
	apiKey    string
	agentID   string
	agentName string
	agents    []clawdchat.Agent
	errMsg    string
	completed bool

	server   *http.Server
	listener net.Listener

	// newClient builds a backend client bound to a session JWT.
	// Replaceable in tests.
	newClient func(jwt string) backendAPI
}

// NewManager creates a manager talking to the backend at apiURL.
func NewManager(apiURL string) *Manager {
	return &Manager{
		apiURL: strings.TrimRight(apiURL, "/"),
		newClient: func(jwt string) backendAPI {
			return clawdchat.NewUserClient(apiURL, jwt)
		},
	}
}

// IsAuthenticated reports whether an agent API key is in hand.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apiKey != ""
}

// Credentials returns the resolved agent identity. The key is empty until
// the flow completes.
func (m *Manager) Credentials() (apiKey, agentID, agentName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apiKey, m.agentID, m.agentName
}

// StartAuthFlow binds a fresh loopback listener, discards any previous one,
// and returns the backend authorization URL for the user to open in a
// browser. The listener serves the OAuth callback and, for multi-agent
// accounts, an agent picker. It shuts down once a key is obtained or after
// authTimeout.
func (m *Manager) StartAuthFlow() (string, error) {
	m.shutdownServer()

	m.mu.Lock()
	m.jwt = ""
	m.apiKey = ""
	m.agentID = ""
	m.agentName = ""
	m.agents = nil
	m.errMsg = ""
	m.completed = false
	m.mu.Unlock()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to bind callback listener: %w", err)
	}

	state, err := pkceutil.GenerateState()
	if err != nil {
		listener.Close()
		return "", err
	}

	callbackURL := fmt.Sprintf("http://%s/callback", listener.Addr())
	authURL := fmt.Sprintf("%s/api/v1/auth/external/authorize?%s", m.apiURL, url.Values{
		"callback_url": {callbackURL},
		"state":        {state},
	}.Encode())

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", m.handleCallback)
	mux.HandleFunc("/select", m.handleSelect)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	m.mu.Lock()
	m.server = server
	m.listener = listener
	m.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logging.Warn("StdioAuth", "Callback server error: %v", err)
		}
	}()

	// Tear the listener down after the timeout even if the user never
	// finishes the flow in the browser.
	go func() {
		timer := time.NewTimer(authTimeout)
		defer timer.Stop()
		<-timer.C
		m.mu.Lock()
		stale := m.server == server
		m.mu.Unlock()
		if stale {
			logging.Info("StdioAuth", "Auth flow timed out, closing callback listener")
			m.shutdownServer()
		}
	}()

	logging.Info("StdioAuth", "Callback listener on %s", listener.Addr())
	return authURL, nil
}

// handleCallback receives the backend redirect, exchanges the code for a
// session JWT, fetches agents, and either auto-selects a single agent or
// renders the picker.
func (m *Manager) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		m.failFlow("callback is missing the code parameter")
		renderResultPage(w, "Authentication failed", "The callback is missing the code parameter.", true)
		return
	}

	if err := m.exchangeAndResolve(r.Context(), code); err != nil {
		logging.Error("StdioAuth", err, "Auth exchange failed")
		m.failFlow(err.Error())
		renderResultPage(w, "Authentication failed", err.Error(), true)
		return
	}

	m.mu.Lock()
	authenticated := m.apiKey != ""
	agentName := m.agentName
	agents := m.agents
	m.mu.Unlock()

	if authenticated {
		renderResultPage(w, "Authentication successful",
			fmt.Sprintf("Agent %q is now active. You can close this window and return to your MCP client.", agentName), false)
		m.finishFlow()
		return
	}

	// Multiple agents: keep the listener alive until the user picks one
	// or the timeout closes it.
	renderAgentPickerPage(w, agents)
}

// handleSelect renders the picker on GET and accepts the choice on POST.
func (m *Manager) handleSelect(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		m.mu.Lock()
		agents := m.agents
		m.mu.Unlock()
		if len(agents) == 0 {
			renderResultPage(w, "Error", "The agent list is empty.", true)
			return
		}
		renderAgentPickerPage(w, agents)

	case http.MethodPost:
		var req struct {
			AgentID   string `json:"agent_id"`
			AgentName string `json:"agent_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.AgentID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "agent_id is required"})
			return
		}

		result := m.SelectAgent(r.Context(), req.AgentID)
		if result.Phase != PhaseAuthenticated {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": result.Error})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"agent_name": result.AgentName,
		})
		m.finishFlow()

	default:
		http.NotFound(w, r)
	}
}

// exchangeAndResolve exchanges the callback code for a session JWT, loads
// the agent list, and auto-selects when there is exactly one agent.
func (m *Manager) exchangeAndResolve(ctx context.Context, code string) error {
	result, err := m.newClient("").ExchangeExternalCode(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	jwt, _ := result["jwt"].(string)
	if jwt == "" {
		return fmt.Errorf("backend returned no session credential")
	}

	agents, err := m.newClient(jwt).GetMyAgents(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch agent list: %w", err)
	}
	if len(agents) == 0 {
		return fmt.Errorf("you have not claimed any agent yet; claim one on ClawdChat first")
	}

	m.mu.Lock()
	m.jwt = jwt
	m.agents = agents
	m.mu.Unlock()

	if len(agents) == 1 {
		if err := m.resolveAgent(ctx, agents[0].ID, agents[0].Name); err != nil {
			return err
		}
	}

	logging.Info("StdioAuth", "Login ok, %d agent(s)", len(agents))
	return nil
}

// resolveAgent fetches the agent's stored API key, resetting it when
// absent, and records the resulting identity.
//
// Unlike the HTTP flow there is no confirmation gate here: the user just
// authorized this exact agent in the browser, so the reset is expected.
func (m *Manager) resolveAgent(ctx context.Context, agentID, agentName string) error {
	m.mu.Lock()
	jwt := m.jwt
	m.mu.Unlock()

	client := m.newClient(jwt)

	creds, err := client.GetAgentCredentials(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to fetch agent credentials: %w", err)
	}
	apiKey := creds.APIKey

	if apiKey == "" {
		reset, err := client.ResetAgentKey(ctx, agentID)
		if err != nil {
			return fmt.Errorf("failed to reset agent key: %w", err)
		}
		apiKey = reset.APIKey
	}
	if apiKey == "" {
		return fmt.Errorf("could not obtain an API key for agent %q", agentName)
	}

	m.mu.Lock()
	m.apiKey = apiKey
	m.agentID = agentID
	m.agentName = agentName
	m.mu.Unlock()

	logging.Info("StdioAuth", "Selected agent %s (%s)", agentName, agentID)
	return nil
}

// SelectAgent resolves one of the listed agents by ID. Called from the
// picker page and from the authenticate tool.
func (m *Manager) SelectAgent(ctx context.Context, agentID string) Status {
	m.mu.Lock()
	var chosen *clawdchat.Agent
	for i := range m.agents {
		if m.agents[i].ID == agentID {
			chosen = &m.agents[i]
			break
		}
	}
	m.mu.Unlock()

	if chosen == nil {
		return Status{Phase: PhaseError, Error: fmt.Sprintf("agent %q is not in your agent list", agentID)}
	}

	if err := m.resolveAgent(ctx, chosen.ID, chosen.Name); err != nil {
		return Status{Phase: PhaseError, Error: err.Error()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Phase:     PhaseAuthenticated,
		AgentID:   m.agentID,
		AgentName: m.agentName,
		Message:   fmt.Sprintf("Agent %q selected, the other tools are available now", m.agentName),
	}
}

// Status returns the current phase for the tool layer.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.apiKey != "":
		return Status{Phase: PhaseAuthenticated, AgentID: m.agentID, AgentName: m.agentName}
	case m.jwt != "" && len(m.agents) > 1:
		return Status{
			Phase:   PhaseNeedsSelection,
			Message: "login succeeded; pick which agent to use",
			Agents:  m.agents,
		}
	case m.errMsg != "":
		return Status{Phase: PhaseError, Error: m.errMsg}
	case m.completed:
		return Status{Phase: PhaseError, Error: "authentication did not complete, call authenticate again"}
	default:
		return Status{Phase: PhaseNotAuthenticated}
	}
}

// failFlow records an error and releases anything waiting on completion.
func (m *Manager) failFlow(msg string) {
	m.mu.Lock()
	m.errMsg = msg
	m.completed = true
	m.mu.Unlock()
}

// finishFlow marks the attempt complete and tears down the listener.
func (m *Manager) finishFlow() {
	m.mu.Lock()
	m.completed = true
	m.mu.Unlock()
	m.shutdownServer()
}

// shutdownServer stops the callback listener, if any. Shutdown runs in the
// background so it can be called from a request handler without
// deadlocking on the in-flight request.
func (m *Manager) shutdownServer() {
	m.mu.Lock()
	server := m.server
	m.server = nil
	m.listener = nil
	m.mu.Unlock()

	if server == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()
}

// Close tears down any active listener. Used on server shutdown.
func (m *Manager) Close() {
	m.shutdownServer()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
