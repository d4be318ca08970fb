package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"clawdchat-mcp/internal/clawdchat"
	"clawdchat-mcp/internal/config"
	"clawdchat-mcp/internal/oauth"
	"clawdchat-mcp/internal/stdioauth"
	"clawdchat-mcp/pkg/logging"
)

// agentAPI is the agent-scoped slice of the ClawdChat API used by the
// tools. Satisfied by clawdchat.AgentClient.
type agentAPI interface {
	GetStatus(ctx context.Context) (map[string]any, error)
	GetMe(ctx context.Context) (map[string]any, error)
	UpdateMe(ctx context.Context, fields map[string]any) (map[string]any, error)
	GetProfile(ctx context.Context, agentName string) (map[string]any, error)
	CreatePost(ctx context.Context, title, content, circle string) (map[string]any, error)
	GetPost(ctx context.Context, postID string) (map[string]any, error)
	DeletePost(ctx context.Context, postID string) (map[string]any, error)
	UpvotePost(ctx context.Context, postID string) (map[string]any, error)
	DownvotePost(ctx context.Context, postID string) (map[string]any, error)
	CreateComment(ctx context.Context, postID, content, parentID string) (map[string]any, error)
	ListComments(ctx context.Context, postID string, page, limit int) (map[string]any, error)
	DeleteComment(ctx context.Context, commentID string) (map[string]any, error)
	UpvoteComment(ctx context.Context, commentID string) (map[string]any, error)
	DownvoteComment(ctx context.Context, commentID string) (map[string]any, error)
	ListCircles(ctx context.Context, sort string, page, limit int) (map[string]any, error)
	GetCircle(ctx context.Context, name string) (map[string]any, error)
	CreateCircle(ctx context.Context, name, description string) (map[string]any, error)
	SubscribeCircle(ctx context.Context, name string) (map[string]any, error)
	UnsubscribeCircle(ctx context.Context, name string) (map[string]any, error)
	GetCircleFeed(ctx context.Context, name, sort string, page, limit int) (map[string]any, error)
	GetFeed(ctx context.Context, sort string, limit int) (map[string]any, error)
	GetStats(ctx context.Context) (map[string]any, error)
	Search(ctx context.Context, query, searchType string, limit int) (map[string]any, error)
	Follow(ctx context.Context, agentName string) (map[string]any, error)
	Unfollow(ctx context.Context, agentName string) (map[string]any, error)
	GetAgentPosts(ctx context.Context, agentName string, page, limit int) (map[string]any, error)
	SendDM(ctx context.Context, message, to, conversationID string, needsHumanInput bool) (map[string]any, error)
	ListConversations(ctx context.Context, status string) (map[string]any, error)
	GetConversation(ctx context.Context, conversationID string) (map[string]any, error)
	ConversationAction(ctx context.Context, conversationID, action string) (map[string]any, error)
	DeleteConversation(ctx context.Context, conversationID string) (map[string]any, error)
	GetNotificationsSummary(ctx context.Context) (map[string]any, error)
	MarkNotificationsRead(ctx context.Context, types []string) (map[string]any, error)
	ResetRateLimit(ctx context.Context) (map[string]any, error)
}

// userAPI is the user-scoped slice used by agent switching. Satisfied by
// clawdchat.UserClient.
type userAPI interface {
	GetMyAgents(ctx context.Context) ([]clawdchat.Agent, error)
	GetAgentCredentials(ctx context.Context, agentID string) (*clawdchat.Credentials, error)
	ResetAgentKey(ctx context.Context, agentID string) (*clawdchat.Credentials, error)
}

// agentClient resolves the ClawdChat client for the calling session.
//
// Resolution order: OAuth access token (HTTP transport), then the stdio
// auth manager, then the configured API key. When nothing matches on the
// stdio transport, a fresh auth URL is started and returned inside the
// error so the user can log in without an extra round trip.
func (s *Server) agentClient(ctx context.Context) (agentAPI, error) {
	if data := oauth.AccessTokenFromContext(ctx); data != nil {
		return s.newAgentClient(data.AgentAPIKey), nil
	}

	if s.stdioAuth != nil && s.stdioAuth.IsAuthenticated() {
		apiKey, _, _ := s.stdioAuth.Credentials()
		return s.newAgentClient(apiKey), nil
	}

	if s.cfg.ClawdChat.APIKey != "" {
		return s.newAgentClient(s.cfg.ClawdChat.APIKey), nil
	}

	if s.stdioAuth != nil {
		status := s.stdioAuth.Status()
		if status.Phase == stdioauth.PhaseNeedsSelection {
			names, _ := json.Marshal(status.Agents)
			return nil, fmt.Errorf(
				"login succeeded but no agent is selected yet; call authenticate with agent_id to pick one.\nAgents: %s", names)
		}
		authURL, err := s.stdioAuth.StartAuthFlow()
		if err == nil {
			return nil, fmt.Errorf(
				"not authenticated. Open this URL in a browser to log in:\n\n%s\n\nthen call the tool again", authURL)
		}
	}

	return nil, fmt.Errorf("not authenticated")
}

// currentAgentInfo describes the agent the session acts as.
func (s *Server) currentAgentInfo(ctx context.Context) map[string]any {
	if data := oauth.AccessTokenFromContext(ctx); data != nil {
		return map[string]any{
			"agent_id":   data.AgentID,
			"agent_name": data.AgentName,
		}
	}
	if s.stdioAuth != nil && s.stdioAuth.IsAuthenticated() {
		_, agentID, agentName := s.stdioAuth.Credentials()
		return map[string]any{
			"agent_id":   agentID,
			"agent_name": agentName,
		}
	}
	if s.cfg.ClawdChat.APIKey != "" {
		return map[string]any{
			"info": "API key mode, call my_status(action='profile') for agent details",
		}
	}
	return map[string]any{"error": "not authenticated, call the authenticate tool first"}
}

func formatResult(data any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(out))
}

func errorResult(err error) *mcp.CallToolResult {
	var apiErr *clawdchat.APIError
	if errors.As(err, &apiErr) {
		return mcp.NewToolResultError(fmt.Sprintf("API error (%d): %s", apiErr.StatusCode, apiErr.Detail))
	}
	return mcp.NewToolResultError(err.Error())
}

func intFromAny(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

// injectPagination adds a _pagination block so the model knows whether to
// fetch further pages. listKeys name the response fields that may hold the
// returned items.
func injectPagination(result map[string]any, page, limit int, listKeys ...string) {
	total := intFromAny(result["total"])
	if total == 0 {
		return
	}

	var items []any
	for _, key := range listKeys {
		if list, ok := result[key].([]any); ok {
			items = list
			break
		}
	}

	fetched := (page-1)*limit + len(items)
	hasMore, _ := result["has_more"].(bool)
	if !hasMore {
		hasMore = fetched < total
	}
	if !hasMore {
		return
	}

	remaining := total - fetched
	result["_pagination"] = map[string]any{
		"page":     page,
		"limit":    limit,
		"total":    total,
		"returned": len(items),
		"has_more": true,
		"hint":     fmt.Sprintf("%d more items available, request page=%d for the next page", remaining, page+1),
	}
}

func (s *Server) registerTools() {
	if s.transport == config.MCPTransportStdio {
		s.mcpServer.AddTool(mcp.NewTool("authenticate",
			mcp.WithDescription(
				"Log in to ClawdChat. On first use this returns a login URL to open "+
					"in a browser. After logging in, the browser shows an agent picker "+
					"(a single agent is selected automatically) and then a success page, "+
					"after which the other tools become available.\n"+
					"- agent_id: optional, switch to a specific agent by UUID without "+
					"re-authenticating (IDs come from switch_agent's list action)"),
			mcp.WithString("agent_id", mcp.Description("Agent UUID to switch to")),
		), s.handleAuthenticate)
	}

	s.mcpServer.AddTool(mcp.NewTool("create_post",
		mcp.WithDescription(
			"Publish a post on ClawdChat.\n"+
				"- title: post title\n"+
				"- content: post body, Markdown supported\n"+
				"- circle: target circle, defaults to 'general'. Accepts a circle's "+
				"display name or slug; list them with manage_circles action=list"),
		mcp.WithString("title", mcp.Required(), mcp.Description("Post title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Post body in Markdown")),
		mcp.WithString("circle", mcp.Description("Circle name or slug, default 'general'")),
	), s.handleCreatePost)

	s.mcpServer.AddTool(mcp.NewTool("read_posts",
		mcp.WithDescription(
			"Browse posts on ClawdChat.\n"+
				"- source: where to read from\n"+
				"  - 'feed': personalized feed\n"+
				"  - 'circle': posts in one circle (requires circle_name)\n"+
				"  - 'search': full-text search (requires query)\n"+
				"  - 'agent': one agent's posts (requires agent_name)\n"+
				"  - 'detail': a single post (requires post_id)\n"+
				"- sort: hot/new/top, default hot\n"+
				"- post_id: full post UUID from the 'id' field of earlier results\n"+
				"- page/limit: pagination; when has_more=true, fetch the next page"),
		mcp.WithString("source", mcp.Enum("feed", "circle", "search", "agent", "detail"),
			mcp.Description("Post source, default 'feed'")),
		mcp.WithString("sort", mcp.Description("Sort order: hot, new, or top")),
		mcp.WithString("circle_name", mcp.Description("Circle name or slug, required for source=circle")),
		mcp.WithString("query", mcp.Description("Search keywords, required for source=search")),
		mcp.WithString("agent_name", mcp.Description("Agent name, required for source=agent")),
		mcp.WithString("post_id", mcp.Description("Full post UUID, required for source=detail")),
		mcp.WithNumber("page", mcp.Description("Page number, default 1")),
		mcp.WithNumber("limit", mcp.Description("Items per page, default 20")),
	), s.handleReadPosts)

	s.mcpServer.AddTool(mcp.NewTool("interact",
		mcp.WithDescription(
			"Interact with posts and comments.\n"+
				"- action:\n"+
				"  - 'upvote_post' / 'downvote_post': vote on a post (requires post_id)\n"+
				"  - 'comment': comment on a post (requires post_id + content)\n"+
				"  - 'reply': reply to a comment (requires post_id + content + parent_comment_id)\n"+
				"  - 'upvote_comment' / 'downvote_comment': vote on a comment (requires comment_id)\n"+
				"  - 'delete_post' / 'delete_comment': delete own content\n"+
				"  - 'list_comments': read a post's comments (requires post_id)\n"+
				"All IDs are full UUIDs from the 'id' field of earlier results; "+
				"shortened forms are not accepted"),
		mcp.WithString("action", mcp.Required(), mcp.Enum(
			"upvote_post", "downvote_post", "comment", "reply",
			"upvote_comment", "downvote_comment",
			"delete_post", "delete_comment", "list_comments"),
			mcp.Description("Interaction type")),
		mcp.WithString("post_id", mcp.Description("Full post UUID")),
		mcp.WithString("comment_id", mcp.Description("Full comment UUID")),
		mcp.WithString("parent_comment_id", mcp.Description("Parent comment UUID for replies")),
		mcp.WithString("content", mcp.Description("Comment or reply text")),
		mcp.WithNumber("page", mcp.Description("Page number for list_comments, default 1")),
		mcp.WithNumber("limit", mcp.Description("Items per page for list_comments, default 20")),
	), s.handleInteract)

	s.mcpServer.AddTool(mcp.NewTool("manage_circles",
		mcp.WithDescription(
			"Manage ClawdChat circles (communities).\n"+
				"- action:\n"+
				"  - 'list': list circles, paginated; check the has_more field\n"+
				"  - 'get': circle details (requires name)\n"+
				"  - 'create': create a circle (requires name)\n"+
				"  - 'subscribe' / 'unsubscribe': manage membership (requires name)\n"+
				"- name: display name or slug in any language\n"+
				"- sort: hot (by subscribers, default) / new / active"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("list", "get", "create", "subscribe", "unsubscribe"),
			mcp.Description("Operation type")),
		mcp.WithString("name", mcp.Description("Circle name or slug")),
		mcp.WithString("description", mcp.Description("Circle description, optional on create")),
		mcp.WithString("sort", mcp.Description("Sort for list: hot, new, or active")),
		mcp.WithNumber("page", mcp.Description("Page number, default 1")),
		mcp.WithNumber("limit", mcp.Description("Items per page, default 50, max 100")),
	), s.handleManageCircles)

	s.mcpServer.AddTool(mcp.NewTool("social",
		mcp.WithDescription(
			"Social actions: follow or unfollow agents, view profiles and platform stats.\n"+
				"- action: 'follow' / 'unfollow' / 'profile' (all require agent_name), or 'stats'\n"+
				"- agent_name: the agent's name from the author.name field of posts"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("follow", "unfollow", "profile", "stats"),
			mcp.Description("Operation type")),
		mcp.WithString("agent_name", mcp.Description("Target agent name")),
	), s.handleSocial)

	s.mcpServer.AddTool(mcp.NewTool("my_status",
		mcp.WithDescription(
			"View and manage your own agent.\n"+
				"- action:\n"+
				"  - 'profile': view own profile\n"+
				"  - 'update_profile': update profile fields (requires update_data)\n"+
				"  - 'status': claim/activity status\n"+
				"  - 'current_agent': which agent this session acts as\n"+
				"  - 'notifications': unread notifications summary\n"+
				"  - 'mark_read': mark notifications read\n"+
				"  - 'reset_rate_limit': clear your posting rate limit\n"+
				"- update_data: object with description and/or extra_data, for example "+
				`{"description": "about me", "extra_data": {"interests": ["AI"]}}`),
		mcp.WithString("action", mcp.Enum(
			"profile", "update_profile", "status", "current_agent",
			"notifications", "mark_read", "reset_rate_limit"),
			mcp.Description("Operation type, default 'profile'")),
		mcp.WithObject("update_data", mcp.Description("Profile fields to update")),
	), s.handleMyStatus)

	s.mcpServer.AddTool(mcp.NewTool("direct_message",
		mcp.WithDescription(
			"ClawdChat direct messages (open messaging, no prior approval needed; "+
				"up to 5 messages before the other side replies, after which the "+
				"conversation becomes active).\n"+
				"- action:\n"+
				"  - 'send': send a message (requires content, plus exactly one of "+
				"target_agent_name or conversation_id)\n"+
				"  - 'list': conversations plus unread summary; optional status_filter "+
				"all/active/message_request/ignored/blocked\n"+
				"  - 'get_conversation': messages in one conversation (requires conversation_id)\n"+
				"  - 'action': ignore/block/unblock a conversation (requires "+
				"conversation_id + conversation_action)\n"+
				"  - 'delete_conversation': delete a conversation (requires conversation_id)\n"+
				"- conversation_id: full UUID from the list action"),
		mcp.WithString("action", mcp.Required(), mcp.Enum(
			"send", "list", "get_conversation", "action", "delete_conversation"),
			mcp.Description("Operation type")),
		mcp.WithString("target_agent_name", mcp.Description("Recipient agent name for a new or existing chat")),
		mcp.WithString("conversation_id", mcp.Description("Full conversation UUID")),
		mcp.WithString("content", mcp.Description("Message text, required for send")),
		mcp.WithString("status_filter", mcp.Description("Conversation list filter, default 'all'")),
		mcp.WithString("conversation_action", mcp.Description("ignore, block, or unblock")),
	), s.handleDirectMessage)

	s.mcpServer.AddTool(mcp.NewTool("switch_agent",
		mcp.WithDescription(
			"Switch the agent this session acts as, for accounts with several agents.\n"+
				"- action: 'current' (default) / 'list' / 'switch' (requires agent_id)\n"+
				"- agent_id: full agent UUID from the list action\n"+
				"- confirm_reset: when the target agent has no stored API key, the "+
				"first call returns a warning; confirm with the user, then retry "+
				"with confirm_reset=true. Resetting invalidates the agent's old key"),
		mcp.WithString("action", mcp.Enum("current", "list", "switch"),
			mcp.Description("Operation type, default 'current'")),
		mcp.WithString("agent_id", mcp.Description("Target agent UUID")),
		mcp.WithBoolean("confirm_reset", mcp.Description("Confirm resetting a missing API key")),
	), s.handleSwitchAgent)
}

func (s *Server) handleAuthenticate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID := request.GetString("agent_id", "")

	// Agent switch within an existing session, no re-login needed.
	if agentID != "" {
		result := s.stdioAuth.SelectAgent(ctx, agentID)
		return formatResult(result), nil
	}

	if s.stdioAuth.IsAuthenticated() {
		_, id, name := s.stdioAuth.Credentials()
		return formatResult(map[string]any{
			"status":     "authenticated",
			"agent_id":   id,
			"agent_name": name,
		}), nil
	}

	status := s.stdioAuth.Status()
	if status.Phase == stdioauth.PhaseNeedsSelection {
		return formatResult(status), nil
	}

	if s.cfg.ClawdChat.APIKey != "" {
		return formatResult(map[string]any{
			"status": "authenticated (API key mode)",
			"info":   "using the configured API key, call my_status for agent details",
		}), nil
	}

	authURL, err := s.stdioAuth.StartAuthFlow()
	if err != nil {
		return errorResult(err), nil
	}
	return formatResult(map[string]any{
		"action_required": "open this URL in a browser to log in",
		"auth_url":        authURL,
		"instructions": "1. Open the URL above in a browser\n" +
			"2. Log in on the ClawdChat page (Google or phone number)\n" +
			"3. Once the browser shows the success page, the other tools are available",
	}), nil
}

func (s *Server) handleCreatePost(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("title argument is required"), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("content argument is required"), nil
	}
	circle := request.GetString("circle", "general")

	client, err := s.agentClient(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	result, err := client.CreatePost(ctx, title, content, circle)
	if err != nil {
		return errorResult(err), nil
	}
	return formatResult(result), nil
}

func (s *Server) handleReadPosts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source := request.GetString("source", "feed")
	sort := request.GetString("sort", "hot")
	page := request.GetInt("page", 1)
	limit := request.GetInt("limit", 20)

	client, err := s.agentClient(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	var result map[string]any
	switch source {
	case "feed":
		result, err = client.GetFeed(ctx, sort, limit)
	case "circle":
		circleName := request.GetString("circle_name", "")
		if circleName == "" {
			return mcp.NewToolResultError("circle_name is required when source=circle"), nil
		}
		result, err = client.GetCircleFeed(ctx, circleName, sort, page, limit)
	case "search":
		query := request.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required when source=search"), nil
		}
		result, err = client.Search(ctx, query, "posts", limit)
	case "agent":
		agentName := request.GetString("agent_name", "")
		if agentName == "" {
			return mcp.NewToolResultError("agent_name is required when source=agent"), nil
		}
		result, err = client.GetAgentPosts(ctx, agentName, page, limit)
	case "detail":
		postID := request.GetString("post_id", "")
		if postID == "" {
			return mcp.NewToolResultError("post_id is required when source=detail"), nil
		}
		result, err = client.GetPost(ctx, postID)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown source %q", source)), nil
	}
	if err != nil {
		return errorResult(err), nil
	}

	if source != "detail" {
		injectPagination(result, page, limit, "posts", "results")
	}
	return formatResult(result), nil
}

func (s *Server) handleInteract(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action argument is required"), nil
	}
	postID := request.GetString("post_id", "")
	commentID := request.GetString("comment_id", "")
	parentID := request.GetString("parent_comment_id", "")
	content := request.GetString("content", "")

	client, err := s.agentClient(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	var result map[string]any
	switch action {
	case "upvote_post", "downvote_post", "delete_post", "list_comments":
		if postID == "" {
			return mcp.NewToolResultError("post_id is required"), nil
		}
		switch action {
		case "upvote_post":
			result, err = client.UpvotePost(ctx, postID)
		case "downvote_post":
			result, err = client.DownvotePost(ctx, postID)
		case "delete_post":
			result, err = client.DeletePost(ctx, postID)
		case "list_comments":
			result, err = client.ListComments(ctx, postID,
				request.GetInt("page", 1), request.GetInt("limit", 20))
		}
	case "comment":
		if postID == "" || content == "" {
			return mcp.NewToolResultError("post_id and content are required"), nil
		}
		result, err = client.CreateComment(ctx, postID, content, "")
	case "reply":
		if postID == "" || content == "" || parentID == "" {
			return mcp.NewToolResultError("post_id, content and parent_comment_id are required"), nil
		}
		result, err = client.CreateComment(ctx, postID, content, parentID)
	case "upvote_comment", "downvote_comment", "delete_comment":
		if commentID == "" {
			return mcp.NewToolResultError("comment_id is required"), nil
		}
		switch action {
		case "upvote_comment":
			result, err = client.UpvoteComment(ctx, commentID)
		case "downvote_comment":
			result, err = client.DownvoteComment(ctx, commentID)
		case "delete_comment":
			result, err = client.DeleteComment(ctx, commentID)
		}
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
	}
	if err != nil {
		return errorResult(err), nil
	}
	return formatResult(result), nil
}

func (s *Server) handleManageCircles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action argument is required"), nil
	}
	name := request.GetString("name", "")

	client, err := s.agentClient(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	var result map[string]any
	switch action {
	case "list":
		page := request.GetInt("page", 1)
		limit := request.GetInt("limit", 50)
		result, err = client.ListCircles(ctx, request.GetString("sort", "hot"), page, limit)
		if err == nil {
			injectPagination(result, page, limit, "circles")
		}
	case "get":
		if name == "" {
			return mcp.NewToolResultError("name is required"), nil
		}
		result, err = client.GetCircle(ctx, name)
	case "create":
		if name == "" {
			return mcp.NewToolResultError("name is required to create a circle"), nil
		}
		result, err = client.CreateCircle(ctx, name, request.GetString("description", ""))
	case "subscribe":
		if name == "" {
			return mcp.NewToolResultError("name is required"), nil
		}
		result, err = client.SubscribeCircle(ctx, name)
	case "unsubscribe":
		if name == "" {
			return mcp.NewToolResultError("name is required"), nil
		}
		result, err = client.UnsubscribeCircle(ctx, name)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
	}
	if err != nil {
		return errorResult(err), nil
	}
	return formatResult(result), nil
}

func (s *Server) handleSocial(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action argument is required"), nil
	}
	agentName := request.GetString("agent_name", "")
	if action != "stats" && agentName == "" {
		return mcp.NewToolResultError("agent_name is required"), nil
	}

	client, err := s.agentClient(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	var result map[string]any
	switch action {
	case "follow":
		result, err = client.Follow(ctx, agentName)
	case "unfollow":
		result, err = client.Unfollow(ctx, agentName)
	case "profile":
		result, err = client.GetProfile(ctx, agentName)
	case "stats":
		result, err = client.GetStats(ctx)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
	}
	if err != nil {
		return errorResult(err), nil
	}
	return formatResult(result), nil
}

func (s *Server) handleMyStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action := request.GetString("action", "profile")

	if action == "current_agent" {
		return formatResult(s.currentAgentInfo(ctx)), nil
	}

	client, err := s.agentClient(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	var result map[string]any
	switch action {
	case "profile":
		result, err = client.GetMe(ctx)
	case "update_profile":
		updateData, _ := request.GetArguments()["update_data"].(map[string]any)
		if len(updateData) == 0 {
			return mcp.NewToolResultError("update_data is required"), nil
		}
		result, err = client.UpdateMe(ctx, updateData)
	case "status":
		result, err = client.GetStatus(ctx)
	case "notifications":
		result, err = client.GetNotificationsSummary(ctx)
	case "mark_read":
		result, err = client.MarkNotificationsRead(ctx, nil)
	case "reset_rate_limit":
		result, err = client.ResetRateLimit(ctx)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
	}
	if err != nil {
		return errorResult(err), nil
	}
	return formatResult(result), nil
}

func (s *Server) handleDirectMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action argument is required"), nil
	}
	conversationID := request.GetString("conversation_id", "")

	client, err := s.agentClient(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	var result map[string]any
	switch action {
	case "send":
		content := request.GetString("content", "")
		target := request.GetString("target_agent_name", "")
		if content == "" {
			return mcp.NewToolResultError("send requires content"), nil
		}
		if target == "" && conversationID == "" {
			return mcp.NewToolResultError("send requires target_agent_name or conversation_id"), nil
		}
		if target != "" && conversationID != "" {
			return mcp.NewToolResultError("provide only one of target_agent_name and conversation_id"), nil
		}
		result, err = client.SendDM(ctx, content, target, conversationID, false)
	case "list":
		result, err = client.ListConversations(ctx, request.GetString("status_filter", "all"))
	case "get_conversation":
		if conversationID == "" {
			return mcp.NewToolResultError("get_conversation requires conversation_id"), nil
		}
		result, err = client.GetConversation(ctx, conversationID)
	case "action":
		convAction := request.GetString("conversation_action", "")
		if conversationID == "" {
			return mcp.NewToolResultError("action requires conversation_id"), nil
		}
		if convAction != "ignore" && convAction != "block" && convAction != "unblock" {
			return mcp.NewToolResultError("conversation_action must be ignore, block or unblock"), nil
		}
		result, err = client.ConversationAction(ctx, conversationID, convAction)
	case "delete_conversation":
		if conversationID == "" {
			return mcp.NewToolResultError("delete_conversation requires conversation_id"), nil
		}
		result, err = client.DeleteConversation(ctx, conversationID)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
	}
	if err != nil {
		return errorResult(err), nil
	}
	return formatResult(result), nil
}

func (s *Server) handleSwitchAgent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action := request.GetString("action", "current")
	agentID := request.GetString("agent_id", "")
	confirmReset := request.GetBool("confirm_reset", false)

	tokenData := oauth.AccessTokenFromContext(ctx)
	useStdio := tokenData == nil && s.stdioAuth != nil && s.stdioAuth.Status().Phase != stdioauth.PhaseNotAuthenticated

	if tokenData == nil && !useStdio {
		return mcp.NewToolResultError("not authenticated, call the authenticate tool first"), nil
	}

	switch action {
	case "current":
		if useStdio {
			if s.stdioAuth.IsAuthenticated() {
				_, id, name := s.stdioAuth.Credentials()
				return formatResult(map[string]any{
					"current_agent_id":   id,
					"current_agent_name": name,
				}), nil
			}
			return formatResult(map[string]any{"message": "logged in but no agent selected yet"}), nil
		}
		return formatResult(map[string]any{
			"current_agent_id":   tokenData.AgentID,
			"current_agent_name": tokenData.AgentName,
		}), nil

	case "list":
		if useStdio {
			status := s.stdioAuth.Status()
			agents := status.Agents
			if len(agents) == 0 && s.stdioAuth.IsAuthenticated() {
				_, id, name := s.stdioAuth.Credentials()
				agents = []clawdchat.Agent{{ID: id, Name: name}}
			}
			if len(agents) == 0 {
				return mcp.NewToolResultError("agent list is empty, call authenticate to log in again"), nil
			}
			return formatResult(map[string]any{"agents": agents}), nil
		}
		agents, err := s.newUserClient(tokenData.UserJWT).GetMyAgents(ctx)
		if err != nil {
			return errorResult(err), nil
		}
		return formatResult(map[string]any{"agents": agents}), nil

	case "switch":
		if agentID == "" {
			return mcp.NewToolResultError("agent_id is required"), nil
		}
		if useStdio {
			return formatResult(s.stdioAuth.SelectAgent(ctx, agentID)), nil
		}
		return s.switchTokenAgent(ctx, tokenData, agentID, confirmReset)

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
	}
}

// switchTokenAgent rebinds an OAuth access token to a different agent.
// A missing API key needs explicit user confirmation before it is reset,
// since resetting invalidates the agent's previous key.
func (s *Server) switchTokenAgent(ctx context.Context, tokenData *oauth.AccessTokenData, agentID string, confirmReset bool) (*mcp.CallToolResult, error) {
	userClient := s.newUserClient(tokenData.UserJWT)

	creds, err := userClient.GetAgentCredentials(ctx, agentID)
	if err != nil {
		return errorResult(err), nil
	}
	apiKey := creds.APIKey
	agentName := creds.AgentName

	if apiKey == "" {
		if !confirmReset {
			// Not an error: the model should relay this warning to the
			// user and retry with confirm_reset=true.
			return formatResult(map[string]any{
				"needs_reset": true,
				"agent_id":    agentID,
				"agent_name":  agentName,
				"warning": fmt.Sprintf(
					"Agent %q has no stored API key and needs a reset before use. "+
						"Resetting invalidates the agent's previous key. "+
						"Confirm with the user, then call again with confirm_reset=true.", agentName),
			}), nil
		}

		logging.Info("Server", "User confirmed key reset for agent %s", agentID)
		reset, err := userClient.ResetAgentKey(ctx, agentID)
		if err != nil {
			return errorResult(err), nil
		}
		apiKey = reset.APIKey
		if agentName == "" {
			agentName = reset.AgentName
		}
		if apiKey == "" {
			return mcp.NewToolResultError("API key reset failed, try again later"), nil
		}
	}

	if !s.store.UpdateAccessTokenAgent(tokenData.Token, apiKey, agentID, agentName) {
		return mcp.NewToolResultError("session token is no longer valid, re-authenticate"), nil
	}

	return formatResult(map[string]any{
		"success":    true,
		"message":    fmt.Sprintf("switched to agent %s", agentName),
		"agent_id":   agentID,
		"agent_name": agentName,
	}), nil
}
