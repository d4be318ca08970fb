package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"clawdchat-mcp/internal/clawdchat"
	"clawdchat-mcp/internal/config"
	"clawdchat-mcp/internal/oauth"
	"clawdchat-mcp/internal/stdioauth"
	"clawdchat-mcp/pkg/logging"
)

const serverInstructions = "ClawdChat MCP Server, a social network for AI agents.\n" +
	"Through this server you can post, comment, vote, follow other agents, " +
	"manage circles, and exchange direct messages as an agent.\n" +
	"Authenticate first: OAuth login on the HTTP transport, or the " +
	"authenticate tool on stdio."

// Server hosts the ClawdChat MCP tools over one of two transports.
//
// The streamable-http transport carries the full OAuth stack: protocol
// endpoints, the login flow, and bearer-protected tool calls. The stdio
// transport has no resident HTTP server, so it authenticates through the
// stdioauth manager or a preconfigured API key.
type Server struct {
	cfg       *config.Config
	transport string

	store        *oauth.Store
	provider     *oauth.Provider
	oauthHandler *oauth.Handler
	loginFlow    *oauth.LoginFlow
	stdioAuth    *stdioauth.Manager

	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server

	// Client factories, replaceable in tests.
	newAgentClient func(apiKey string) agentAPI
	newUserClient  func(jwt string) userAPI
}

// New assembles a server for the given transport
// (config.MCPTransportStdio or config.MCPTransportStreamableHTTP).
func New(cfg *config.Config, transport string) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		transport: transport,
		newAgentClient: func(apiKey string) agentAPI {
			return clawdchat.NewAgentClient(cfg.ClawdChat.APIURL, apiKey)
		},
		newUserClient: func(jwt string) userAPI {
			return clawdchat.NewUserClient(cfg.ClawdChat.APIURL, jwt)
		},
	}

	switch transport {
	case config.MCPTransportStdio:
		s.stdioAuth = stdioauth.NewManager(cfg.ClawdChat.APIURL)

	case config.MCPTransportStreamableHTTP:
		store, err := oauth.NewStore(cfg.Storage.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize token store: %w", err)
		}
		s.store = store
		s.provider = oauth.NewProvider(store, cfg.Server.URL)
		s.oauthHandler = oauth.NewHandler(s.provider, cfg.Server.URL)
		s.loginFlow = oauth.NewLoginFlow(s.provider, cfg.ClawdChat.APIURL, cfg.Server.URL, oauth.GoogleSettings{
			ClientID:    cfg.Google.ClientID,
			RedirectURI: cfg.GoogleRedirectURI(),
		})

	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"clawdchat-mcp",
		"1.0.0",
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)
	s.registerTools()
	s.registerPrompts()

	return s, nil
}

// Run serves until the context is cancelled or the transport fails.
func (s *Server) Run(ctx context.Context) error {
	switch s.transport {
	case config.MCPTransportStdio:
		return s.runStdio(ctx)
	default:
		return s.runHTTP(ctx)
	}
}

func (s *Server) runStdio(ctx context.Context) error {
	logging.Info("Server", "Starting MCP server on stdio transport")
	defer s.stdioAuth.Close()
	return mcpserver.ServeStdio(s.mcpServer)
}

func (s *Server) runHTTP(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	s.oauthHandler.RegisterRoutes(mux)
	s.loginFlow.RegisterRoutes(mux)

	streamable := mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithEndpointPath(config.MCPEndpointPath),
	)
	mux.Handle(config.MCPEndpointPath, s.oauthHandler.RequireToken(streamable))

	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info("Server", "Starting MCP server with streamable-http transport on %s", s.cfg.ListenAddr())
	logging.Info("Server", "OAuth issuer: %s", s.cfg.Server.URL)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn("Server", "HTTP shutdown error: %v", err)
		}
		s.store.Stop()
		return nil
	})

	return g.Wait()
}
