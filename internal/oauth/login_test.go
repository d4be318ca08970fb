package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawdchat-mcp/internal/clawdchat"
)

// fakeUserAPI implements userAPI against canned data.
type fakeUserAPI struct {
	jwt        string
	agents     []clawdchat.Agent
	keys       map[string]string // agentID -> stored key, "" means absent
	resetKey   string
	resetCalls int
}

func (f *fakeUserAPI) PhoneLogin(ctx context.Context, phone string) (map[string]any, string, error) {
	return map[string]any{"user": map[string]any{"phone": phone}}, f.jwt, nil
}

func (f *fakeUserAPI) GoogleAPILogin(ctx context.Context, code, redirectURI string) (map[string]any, string, error) {
	return map[string]any{"user": map[string]any{}}, f.jwt, nil
}

func (f *fakeUserAPI) GetMyAgents(ctx context.Context) ([]clawdchat.Agent, error) {
	return f.agents, nil
}

func (f *fakeUserAPI) GetAgentCredentials(ctx context.Context, agentID string) (*clawdchat.Credentials, error) {
	return &clawdchat.Credentials{APIKey: f.keys[agentID]}, nil
}

func (f *fakeUserAPI) ResetAgentKey(ctx context.Context, agentID string) (*clawdchat.Credentials, error) {
	f.resetCalls++
	f.keys[agentID] = f.resetKey
	return &clawdchat.Credentials{APIKey: f.resetKey}, nil
}

func newTestFlow(t *testing.T, fake *fakeUserAPI) (*LoginFlow, *Provider, string) {
	t.Helper()
	p, client := newTestProvider(t)

	flow := NewLoginFlow(p, "http://backend:8081", "http://localhost:8000", GoogleSettings{})
	flow.newUserClient = func(jwt string) userAPI { return fake }

	loginURL, err := p.Authorize(client, AuthorizeParams{
		RedirectURI:                   "https://client/cb",
		RedirectURIProvidedExplicitly: true,
		CodeChallenge:                 "challenge",
		State:                         "client-state",
	})
	require.NoError(t, err)
	u, err := url.Parse(loginURL)
	require.NoError(t, err)
	return flow, p, u.Query().Get("state")
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(string(data)))
	rec := httptest.NewRecorder()
	handler(rec, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestLoginSingleAgentAutoSelect(t *testing.T) {
	fake := &fakeUserAPI{
		jwt:    "user-jwt",
		agents: []clawdchat.Agent{{ID: "a1", Name: "Solo"}},
		keys:   map[string]string{"a1": "sk-solo"},
	}
	flow, p, state := newTestFlow(t, fake)

	rec, resp := postJSON(t, flow.ServeLoginCallback, map[string]string{
		"phone": "13800000000",
		"state": state,
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	redirect, _ := resp["redirect"].(string)
	require.NotEmpty(t, redirect, "single agent must complete without a selection step")

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "client-state", u.Query().Get("state"))

	code := p.Store().GetAuthCode(u.Query().Get("code"))
	require.NotNil(t, code)
	assert.Equal(t, "sk-solo", code.AgentAPIKey)
	assert.Equal(t, "a1", code.AgentID)
	assert.Equal(t, "user-jwt", code.UserJWT)

	assert.Nil(t, p.Store().GetPendingLogin(state), "pending login is consumed")
}

func TestLoginMultiAgentRedirectsToSelection(t *testing.T) {
	fake := &fakeUserAPI{
		jwt: "user-jwt",
		agents: []clawdchat.Agent{
			{ID: "a1", Name: "A"},
			{ID: "a2", Name: "B"},
		},
		keys: map[string]string{"a1": "sk-a", "a2": "sk-b"},
	}
	flow, _, state := newTestFlow(t, fake)

	rec, resp := postJSON(t, flow.ServeLoginCallback, map[string]string{
		"phone": "13800000000",
		"state": state,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	redirect, _ := resp["redirect"].(string)
	assert.Contains(t, redirect, "/auth/select-agent?state=")
}

func TestLoginCallbackDoubleSubmit(t *testing.T) {
	fake := &fakeUserAPI{
		jwt: "user-jwt",
		agents: []clawdchat.Agent{
			{ID: "a1", Name: "A"},
			{ID: "a2", Name: "B"},
		},
		keys: map[string]string{"a1": "sk-a", "a2": "sk-b"},
	}
	flow, p, state := newTestFlow(t, fake)

	// A user double-clicking submit sends the same callback twice; both
	// requests touch the stored pending login concurrently.
	done := make(chan *httptest.ResponseRecorder, 2)
	for i := 0; i < 2; i++ {
		go func() {
			body := `{"phone": "13800000000", "state": "` + state + `"}`
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			rec := httptest.NewRecorder()
			flow.ServeLoginCallback(rec, req)
			done <- rec
		}()
	}
	for i := 0; i < 2; i++ {
		rec := <-done
		assert.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	}

	pending := p.Store().GetPendingLogin(state)
	require.NotNil(t, pending)
	assert.Equal(t, "user-jwt", pending.UserJWT)
}

func TestLoginZeroAgentsFails(t *testing.T) {
	fake := &fakeUserAPI{jwt: "user-jwt", keys: map[string]string{}}
	flow, _, state := newTestFlow(t, fake)

	rec, resp := postJSON(t, flow.ServeLoginCallback, map[string]string{
		"phone": "13800000000",
		"state": state,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp["error"], "claim")
}

func TestLoginValidation(t *testing.T) {
	fake := &fakeUserAPI{jwt: "user-jwt"}
	flow, _, state := newTestFlow(t, fake)

	rec, _ := postJSON(t, flow.ServeLoginCallback, map[string]string{"state": state})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing phone is rejected")

	rec, _ = postJSON(t, flow.ServeLoginCallback, map[string]string{"phone": "123", "state": "unknown"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown state is rejected")
}

func TestResetConfirmationGate(t *testing.T) {
	fake := &fakeUserAPI{
		jwt:      "user-jwt",
		agents:   []clawdchat.Agent{{ID: "a1", Name: "Legacy"}},
		keys:     map[string]string{"a1": ""},
		resetKey: "sk-new",
	}
	flow, p, state := newTestFlow(t, fake)

	// Login auto-selects the single agent, which has no stored key.
	rec, resp := postJSON(t, flow.ServeLoginCallback, map[string]string{
		"phone": "13800000000",
		"state": state,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["needs_reset"])
	assert.Equal(t, "a1", resp["agent_id"])
	assert.Equal(t, 0, fake.resetCalls, "no reset without confirmation")
	require.NotNil(t, p.Store().GetPendingLogin(state), "pending login survives the confirmation gate")

	// Confirming performs exactly one reset and completes.
	rec, resp = postJSON(t, flow.ServeSelectAgent, map[string]any{
		"state":         state,
		"agent_id":      "a1",
		"agent_name":    "Legacy",
		"confirm_reset": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	assert.Equal(t, 1, fake.resetCalls)

	redirect, _ := resp["redirect"].(string)
	require.NotEmpty(t, redirect)
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	code := p.Store().GetAuthCode(u.Query().Get("code"))
	require.NotNil(t, code)
	assert.Equal(t, "sk-new", code.AgentAPIKey)
}

func TestSelectAgentRequiresSession(t *testing.T) {
	fake := &fakeUserAPI{jwt: "user-jwt"}
	flow, _, _ := newTestFlow(t, fake)

	rec, resp := postJSON(t, flow.ServeSelectAgent, map[string]any{
		"state":    "missing",
		"agent_id": "a1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, resp["error"])
}

func TestLoginPageRejectsUnknownState(t *testing.T) {
	fake := &fakeUserAPI{jwt: "user-jwt"}
	flow, _, state := newTestFlow(t, fake)

	req := httptest.NewRequest(http.MethodGet, "/auth/login?state=bogus", nil)
	rec := httptest.NewRecorder()
	flow.ServeLoginPage(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/auth/login?state="+url.QueryEscape(state), nil)
	rec = httptest.NewRecorder()
	flow.ServeLoginPage(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sign in")
}
