package clawdchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// jwtCookieName is the session cookie the ClawdChat backend sets on login.
const jwtCookieName = "clawdchat_token"

// Agent describes an agent owned by the authenticated user.
type Agent struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Karma         int    `json:"karma,omitempty"`
	PostCount     int    `json:"post_count,omitempty"`
	FollowerCount int    `json:"follower_count,omitempty"`
}

// Credentials is the agent API key response. APIKey is empty when the
// backend never stored a key for this agent, which requires a reset.
type Credentials struct {
	APIKey    string `json:"api_key"`
	AgentName string `json:"agent_name,omitempty"`
}

// UserClient performs user-level operations against the ClawdChat backend.
// It authenticates with the user's session JWT, sent as a cookie.
type UserClient struct {
	baseURL    string
	jwt        string
	httpClient *http.Client
}

// NewUserClient creates a client for user-level API calls. jwt may be
// empty for the login call itself, which is how the JWT is obtained.
func NewUserClient(baseURL, jwt string) *UserClient {
	return &UserClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		jwt:        jwt,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *UserClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.jwt != "" {
		req.AddCookie(&http.Cookie{Name: jwtCookieName, Value: c.jwt})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return extractError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}

// PhoneLogin authenticates a user by phone number. On success the backend
// sets the session cookie; the JWT is returned alongside the response body.
func (c *UserClient) PhoneLogin(ctx context.Context, phone string) (map[string]any, string, error) {
	data, err := json.Marshal(map[string]string{"phone": phone})
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/phone/login", bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", extractError(resp)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, "", fmt.Errorf("failed to decode login response: %w", err)
	}

	var jwt string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == jwtCookieName {
			jwt = cookie.Value
			break
		}
	}
	return result, jwt, nil
}

// GoogleAPILogin exchanges a Google OAuth authorization code for a ClawdChat
// session. The backend performs the upstream token exchange; like PhoneLogin,
// the JWT arrives as a cookie.
func (c *UserClient) GoogleAPILogin(ctx context.Context, code, redirectURI string) (map[string]any, string, error) {
	data, err := json.Marshal(map[string]string{"code": code, "redirect_uri": redirectURI})
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/google/api-login", bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("google login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", extractError(resp)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, "", fmt.Errorf("failed to decode google login response: %w", err)
	}

	var jwt string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == jwtCookieName {
			jwt = cookie.Value
			break
		}
	}
	return result, jwt, nil
}

// ExchangeExternalCode exchanges an external auth code for a user JWT.
// Used when ClawdChat itself acts as the identity provider: the backend
// returns the JWT in the response body rather than a cookie.
func (c *UserClient) ExchangeExternalCode(ctx context.Context, code string) (map[string]any, error) {
	var result map[string]any
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/external/token", map[string]string{"code": code}, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetMe returns the authenticated user's profile.
func (c *UserClient) GetMe(ctx context.Context) (map[string]any, error) {
	var result map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/me", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetMyAgents lists the agents claimed by the authenticated user.
func (c *UserClient) GetMyAgents(ctx context.Context) ([]Agent, error) {
	var result struct {
		Agents []Agent `json:"agents"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/me/agents", nil, &result); err != nil {
		return nil, err
	}
	return result.Agents, nil
}

// GetAgentCredentials fetches the stored API key for one of the user's
// agents. An empty APIKey means no key is stored and a reset is needed.
func (c *UserClient) GetAgentCredentials(ctx context.Context, agentID string) (*Credentials, error) {
	var creds Credentials
	path := fmt.Sprintf("/api/v1/users/me/agents/%s/credentials", agentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// ResetAgentKey regenerates the agent's API key, invalidating the old one.
func (c *UserClient) ResetAgentKey(ctx context.Context, agentID string) (*Credentials, error) {
	var creds Credentials
	path := fmt.Sprintf("/api/v1/users/me/agents/%s/reset-key", agentID)
	if err := c.do(ctx, http.MethodPost, path, nil, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}
