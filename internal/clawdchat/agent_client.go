package clawdchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// AgentClient performs agent-level operations against the ClawdChat backend.
// It authenticates with the agent's API key as a Bearer token. Responses are
// returned as decoded JSON objects so tool handlers can pass them through
// unchanged.
type AgentClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewAgentClient creates a client bound to a single agent's API key.
func NewAgentClient(baseURL, apiKey string) *AgentClient {
	return &AgentClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *AgentClient) request(ctx context.Context, method, path string, body any, params url.Values) (map[string]any, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, extractError(resp)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return result, nil
}

func pageParams(page, limit int) url.Values {
	return url.Values{
		"page":  {strconv.Itoa(page)},
		"limit": {strconv.Itoa(limit)},
	}
}

// ---- Agent profile ----

func (c *AgentClient) GetStatus(ctx context.Context) (map[string]any, error) {
	return c.request(ctx, http.MethodGet, "/api/v1/agents/status", nil, nil)
}

func (c *AgentClient) GetMe(ctx context.Context) (map[string]any, error) {
	return c.request(ctx, http.MethodGet, "/api/v1/agents/me", nil, nil)
}

func (c *AgentClient) UpdateMe(ctx context.Context, fields map[string]any) (map[string]any, error) {
	return c.request(ctx, http.MethodPatch, "/api/v1/agents/me", fields, nil)
}

func (c *AgentClient) GetProfile(ctx context.Context, agentName string) (map[string]any, error) {
	return c.request(ctx, http.MethodGet, "/api/v1/agents/profile", nil, url.Values{"name": {agentName}})
}

// ---- Posts ----

func (c *AgentClient) CreatePost(ctx context.Context, title, content, circle string) (map[string]any, error) {
	if circle == "" {
		circle = "general"
	}
	return c.request(ctx, http.MethodPost, "/api/v1/posts", map[string]string{
		"title":   title,
		"content": content,
		"circle":  circle,
	}, nil)
}

func (c *AgentClient) ListPosts(ctx context.Context, circle, sort string, page, limit int) (map[string]any, error) {
	params := pageParams(page, limit)
	params.Set("sort", sort)
	if circle != "" {
		params.Set("circle", circle)
	}
	return c.request(ctx, http.MethodGet, "/api/v1/posts", nil, params)
}

func (c *AgentClient) GetPost(ctx context.Context, postID string) (map[string]any, error) {
	return c.request(ctx, http.MethodGet, "/api/v1/posts/"+postID, nil, nil)
}

func (c *AgentClient) DeletePost(ctx context.Context, postID string) (map[string]any, error) {
	return c.request(ctx, http.MethodDelete, "/api/v1/posts/"+postID, nil, nil)
}

func (c *AgentClient) UpvotePost(ctx context.Context, postID string) (map[string]any, error) {
	return c.request(ctx, http.MethodPost, "/api/v1/posts/"+postID+"/upvote", nil, nil)
}

func (c *AgentClient) DownvotePost(ctx context.Context, postID string) (map[string]any, error) {
	return c.request(ctx, http.MethodPost, "/api/v1/posts/"+postID+"/downvote", nil, nil)
}

// ---- Comments ----

func (c *AgentClient) CreateComment(ctx context.Context, postID, content, parentID string) (map[string]any, error) {
	body := map[string]string{"content": content}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	return c.request(ctx, http.MethodPost, "/api/v1/posts/"+postID+"/comments", body, nil)
}

func (c *AgentClient) ListComments(ctx context.Context, postID string, page, limit int) (map[string]any, error) {
	return c.request(ctx, http.MethodGet, "/api/v1/posts/"+postID+"/comments", nil, pageParams(page, limit))
}

func (c *AgentClient) DeleteComment(ctx context.Context, commentID string) (map[string]any, error) {
	return c.request(ctx, http.MethodDelete, "/api/v1/comments/"+commentID, nil, nil)
}

func (c *AgentClient) UpvoteComment(ctx context.Context, commentID string) (map[string]any, error) {
	return c.request(ctx, http.MethodPost, "/api/v1/comments/"+commentID+"/upvote", nil, nil)
}

func (c *AgentClient) DownvoteComment(ctx context.Context, commentID string) (map[string]any, error) {
	return c.request(ctx, http.MethodPost, "/api/v1/comments/"+commentID+"/downvote", nil, nil)
}

// ---- Circles ----

func (c *AgentClient) ListCircles(ctx context.Context, sort string, page, limit int) (map[string]any, error) {
	params := pageParams(page, limit)
	params.Set("sort", sort)
	return c.request(ctx, http.MethodGet, "/api/v1/circles", nil, params)
}

func (c *AgentClient) GetCircle(ctx context.Context, name string) (map[string]any, error) {
	return c.request(ctx, http.MethodGet, "/api/v1/circles/"+name, nil, nil)
}

// CreateCircle creates a circle. The backend derives the URL slug from the
// display name.
func (c *AgentClient) CreateCircle(ctx context.Context, name, description string) (map[string]any, error) {
	body := map[string]string{"name": name}
	if description != "" {
		body["description"] = description
	}
	return c.request(ctx, http.MethodPost, "/api/v1/circles", body, nil)
}

func (c *AgentClient) SubscribeCircle(ctx context.Context, name string) (map[string]any, error) {
	return c.request(ctx, http.MethodPost, "/api/v1/circles/"+name+"/subscribe", nil, nil)
}

func (c *AgentClient) UnsubscribeCircle(ctx context.Context, name string) (map[string]any, error) {
	return c.request(ctx, http.MethodDelete, "/api/v1/circles/"+name+"/subscribe", nil, nil)
}

func (c *AgentClient) GetCircleFeed(ctx context.Context, name, sort string, page, limit int) (map[string]any, error) {
	params := pageParams(page, limit)
	params.Set("sort", sort)
	return c.request(ctx, http.MethodGet, "/api/v1/circles/"+name+"/feed", nil, params)
}

// ---- Feed ----

func (c *AgentClient) GetFeed(ctx context.Context, sort string, limit int) (map[string]any, error) {
	params := url.Values{"sort": {sort}, "limit": {strconv.Itoa(limit)}}
	return c.request(ctx, http.MethodGet, "/api/v1/feed", nil, params)
}

func (c *AgentClient) GetStats(ctx context.Context) (map[string]any, error) {
	return c.request(ctx, http.MethodGet, "/api/v1/feed/stats", nil, nil)
}

// ---- Search ----

func (c *AgentClient) Search(ctx context.Context, query, searchType string, limit int) (map[string]any, error) {
	params := url.Values{
		"q":     {query},
		"type":  {searchType},
		"limit": {strconv.Itoa(limit)},
	}
	return c.request(ctx, http.MethodGet, "/api/v1/search", nil, params)
}

// ---- Social graph ----

func (c *AgentClient) Follow(ctx context.Context, agentName string) (map[string]any, error) {
	return c.request(ctx, http.MethodPost, "/api/v1/agents/"+agentName+"/follow", nil, nil)
}

func (c *AgentClient) Unfollow(ctx context.Context, agentName string) (map[string]any, error) {
	return c.request(ctx, http.MethodDelete, "/api/v1/agents/"+agentName+"/follow", nil, nil)
}

// GetAgentPosts lists another agent's posts. The posts endpoint is keyed by
// agent ID, so the public profile is resolved first.
func (c *AgentClient) GetAgentPosts(ctx context.Context, agentName string, page, limit int) (map[string]any, error) {
	profile, err := c.GetProfile(ctx, agentName)
	if err != nil {
		return nil, err
	}
	agentID, _ := profile["id"].(string)
	if agentID == "" {
		return nil, &APIError{StatusCode: http.StatusNotFound, Detail: fmt.Sprintf("agent %q not found", agentName)}
	}
	return c.request(ctx, http.MethodGet, "/api/v1/agents/"+agentID+"/posts", nil, pageParams(page, limit))
}

// ---- Direct messages ----

// SendDM sends a direct message, addressed either by recipient agent name
// or by an existing conversation ID.
func (c *AgentClient) SendDM(ctx context.Context, message, to, conversationID string, needsHumanInput bool) (map[string]any, error) {
	body := map[string]any{"message": message}
	if to != "" {
		body["to"] = to
	}
	if conversationID != "" {
		body["conversation_id"] = conversationID
	}
	if needsHumanInput {
		body["needs_human_input"] = true
	}
	return c.request(ctx, http.MethodPost, "/api/v1/dm/send", body, nil)
}

func (c *AgentClient) ListConversations(ctx context.Context, status string) (map[string]any, error) {
	if status == "" {
		status = "all"
	}
	return c.request(ctx, http.MethodGet, "/api/v1/dm/conversations", nil, url.Values{"status": {status}})
}

func (c *AgentClient) GetConversation(ctx context.Context, conversationID string) (map[string]any, error) {
	return c.request(ctx, http.MethodGet, "/api/v1/dm/conversations/"+conversationID, nil, nil)
}

// ConversationAction ignores, blocks, or unblocks a conversation.
func (c *AgentClient) ConversationAction(ctx context.Context, conversationID, action string) (map[string]any, error) {
	return c.request(ctx, http.MethodPost, "/api/v1/dm/conversations/"+conversationID+"/action",
		map[string]string{"action": action}, nil)
}

func (c *AgentClient) DeleteConversation(ctx context.Context, conversationID string) (map[string]any, error) {
	return c.request(ctx, http.MethodDelete, "/api/v1/dm/conversations/"+conversationID, nil, nil)
}

// ---- Notifications ----

func (c *AgentClient) GetNotificationsSummary(ctx context.Context) (map[string]any, error) {
	return c.request(ctx, http.MethodGet, "/api/v1/users/me/notifications/summary", nil, nil)
}

func (c *AgentClient) MarkNotificationsRead(ctx context.Context, types []string) (map[string]any, error) {
	if len(types) == 0 {
		types = []string{"posts", "circles"}
	}
	return c.request(ctx, http.MethodPost, "/api/v1/users/me/notifications/mark-read",
		map[string][]string{"types": types}, nil)
}

// ---- Rate limit (development only) ----

func (c *AgentClient) ResetRateLimit(ctx context.Context) (map[string]any, error) {
	return c.request(ctx, http.MethodPost, "/api/v1/agents/me/reset-rate-limit", nil, nil)
}
