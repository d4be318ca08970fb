package clawdchat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPhoneLoginExtractsJWTCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/phone/login" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		http.SetCookie(w, &http.Cookie{Name: "clawdchat_token", Value: "jwt-abc"})
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user": {"id": "u1", "phone": "13800000000"}}`))
	}))
	defer srv.Close()

	client := NewUserClient(srv.URL, "")
	result, jwt, err := client.PhoneLogin(context.Background(), "13800000000")
	if err != nil {
		t.Fatalf("PhoneLogin failed: %v", err)
	}
	if jwt != "jwt-abc" {
		t.Errorf("jwt = %q, want jwt-abc", jwt)
	}
	if result["user"] == nil {
		t.Error("login response missing user")
	}
}

func TestUserClientSendsJWTCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("clawdchat_token")
		if err != nil || cookie.Value != "my-jwt" {
			t.Error("request missing clawdchat_token cookie")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"agents": [{"id": "a1", "name": "TestBot", "karma": 42}]}`))
	}))
	defer srv.Close()

	client := NewUserClient(srv.URL, "my-jwt")
	agents, err := client.GetMyAgents(context.Background())
	if err != nil {
		t.Fatalf("GetMyAgents failed: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("got %d agents, want 1", len(agents))
	}
	if agents[0].ID != "a1" || agents[0].Name != "TestBot" || agents[0].Karma != 42 {
		t.Errorf("unexpected agent: %+v", agents[0])
	}
}

func TestUserClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail": "not your agent"}`))
	}))
	defer srv.Close()

	client := NewUserClient(srv.URL, "jwt")
	_, err := client.GetAgentCredentials(context.Background(), "a1")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Detail != "not your agent" {
		t.Errorf("unexpected APIError: %+v", apiErr)
	}
}

func TestAgentClientBearerAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name": "TestBot"}`))
	}))
	defer srv.Close()

	client := NewAgentClient(srv.URL, "sk-test")
	result, err := client.GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe failed: %v", err)
	}
	if result["name"] != "TestBot" {
		t.Errorf("name = %v", result["name"])
	}
}

func TestAgentClientQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("sort") != "new" || q.Get("circle") != "tech" || q.Get("page") != "2" || q.Get("limit") != "10" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"posts": []}`))
	}))
	defer srv.Close()

	client := NewAgentClient(srv.URL, "sk-test")
	if _, err := client.ListPosts(context.Background(), "tech", "new", 2, 10); err != nil {
		t.Fatalf("ListPosts failed: %v", err)
	}
}

func TestAgentClientAcceptsCreated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": "p1"}`))
	}))
	defer srv.Close()

	client := NewAgentClient(srv.URL, "sk-test")
	result, err := client.CreatePost(context.Background(), "Hello", "World", "")
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	if result["id"] != "p1" {
		t.Errorf("id = %v", result["id"])
	}
}

func TestAgentClientErrorFieldFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer srv.Close()

	client := NewAgentClient(srv.URL, "sk-test")
	_, err := client.GetFeed(context.Background(), "hot", 20)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Detail != "rate limited" {
		t.Errorf("Detail = %q", apiErr.Detail)
	}
}

func TestGetAgentPostsResolvesProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/agents/profile":
			if r.URL.Query().Get("name") != "OtherBot" {
				t.Errorf("profile name = %q", r.URL.Query().Get("name"))
			}
			w.Write([]byte(`{"id": "a9", "name": "OtherBot"}`))
		case "/api/v1/agents/a9/posts":
			w.Write([]byte(`{"posts": [{"id": "p1"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewAgentClient(srv.URL, "sk-test")
	result, err := client.GetAgentPosts(context.Background(), "OtherBot", 1, 20)
	if err != nil {
		t.Fatalf("GetAgentPosts failed: %v", err)
	}
	if result["posts"] == nil {
		t.Error("missing posts in result")
	}
}
