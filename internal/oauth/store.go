package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"clawdchat-mcp/pkg/logging"
)

const (
	clientsFileName = "clients.json"
	tokensFileName  = "tokens.json"

	storageDirPerm  = 0700
	storageFilePerm = 0600

	defaultCleanupInterval = 5 * time.Minute
)

// tokensDocument is the on-disk shape of the token tables.
type tokensDocument struct {
	AccessTokens  map[string]*AccessTokenData  `json:"access_tokens"`
	RefreshTokens map[string]*RefreshTokenData `json:"refresh_tokens"`
}

// Store holds all OAuth state: client registrations, pending logins,
// authorization codes, and issued tokens. Clients and tokens are persisted
// to disk so a server restart does not force every user to re-login.
// Pending logins and auth codes are short-lived and stay in memory.
//
// Expiry is enforced lazily on every read. The background cleanup sweep
// only reclaims memory and disk space.
//
// SECURITY: token values are never logged.
type Store struct {
	mu            sync.Mutex
	clients       map[string]*ClientData
	pendingLogins map[string]*PendingLogin
	authCodes     map[string]*AuthCodeData
	accessTokens  map[string]*AccessTokenData
	refreshTokens map[string]*RefreshTokenData

	// dir is the persistence directory. Empty disables persistence,
	// which tests use.
	dir string

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewStore creates a token store persisting to dir and loads any previously
// saved state. Corrupt or missing files yield an empty store, not an error.
// A background goroutine sweeps expired entries periodically.
func NewStore(dir string) (*Store, error) {
	s := &Store{
		clients:         make(map[string]*ClientData),
		pendingLogins:   make(map[string]*PendingLogin),
		authCodes:       make(map[string]*AuthCodeData),
		accessTokens:    make(map[string]*AccessTokenData),
		refreshTokens:   make(map[string]*RefreshTokenData),
		dir:             dir,
		cleanupInterval: defaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	if dir != "" {
		if err := os.MkdirAll(dir, storageDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
		s.loadClients()
		s.loadTokens()
	}

	go s.cleanupLoop()

	return s, nil
}

// NewMemoryStore creates a store with persistence disabled.
func NewMemoryStore() *Store {
	s, _ := NewStore("")
	return s
}

// Stop stops the background cleanup goroutine.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// ---- Clients ----

// RegisterClient stores a client registration and persists it immediately.
// Registration without at least one redirect URI is rejected.
func (s *Store) RegisterClient(data *ClientData) error {
	if len(data.RedirectURIs) == 0 {
		return newError(ErrInvalidRedirectURI, "at least one redirect_uri is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[data.ClientID] = data
	s.saveClientsLocked()
	logging.Info("OAuth", "Registered client %s (%s)", data.ClientID, data.ClientName)
	return nil
}

// GetClient returns the registered client or nil.
func (s *Store) GetClient(clientID string) *ClientData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients[clientID]
}

// ---- Pending logins ----

// StorePendingLogin records an in-flight authorization attempt.
func (s *Store) StorePendingLogin(data *PendingLogin) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data.CreatedAt.IsZero() {
		data.CreatedAt = time.Now()
	}
	s.pendingLogins[data.State] = data
}

// GetPendingLogin returns the pending login for state, evicting it if it is
// older than PendingLoginTTL. The result is a snapshot: mutations do not
// write back, use SetPendingLoginUser for that.
func (s *Store) GetPendingLogin(state string) *PendingLogin {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.pendingLogins[state]
	if !ok {
		return nil
	}
	if time.Since(data.CreatedAt) > PendingLoginTTL {
		delete(s.pendingLogins, state)
		return nil
	}
	cp := *data
	return &cp
}

// SetPendingLoginUser attaches the backend session credential to a pending
// login once authentication succeeds.
func (s *Store) SetPendingLoginUser(state, userJWT string, userInfo map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.pendingLogins[state]
	if !ok {
		return false
	}
	data.UserJWT = userJWT
	data.UserInfo = userInfo
	return true
}

// ConsumePendingLogin removes and returns the pending login, or nil.
func (s *Store) ConsumePendingLogin(state string) *PendingLogin {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.pendingLogins[state]
	if !ok {
		return nil
	}
	delete(s.pendingLogins, state)
	return data
}

// ---- Authorization codes ----

// StoreAuthCode records an issued authorization code. Codes are in-memory
// only; a restart invalidates outstanding codes, which is acceptable given
// their five minute lifetime.
func (s *Store) StoreAuthCode(data *AuthCodeData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authCodes[data.Code] = data
}

// GetAuthCode returns the code's data without consuming it, evicting
// expired codes.
func (s *Store) GetAuthCode(code string) *AuthCodeData {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.authCodes[code]
	if !ok {
		return nil
	}
	if time.Now().After(data.ExpiresAt) {
		delete(s.authCodes, code)
		return nil
	}
	return data
}

// ConsumeAuthCode atomically removes and returns the code's data. This is
// the only consumption point, which enforces single use: of two concurrent
// exchanges the first wins and the second observes nil.
func (s *Store) ConsumeAuthCode(code string) *AuthCodeData {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.authCodes[code]
	if !ok {
		return nil
	}
	delete(s.authCodes, code)
	if time.Now().After(data.ExpiresAt) {
		return nil
	}
	return data
}

// ---- Access tokens ----

// StoreAccessToken records an issued access token and persists the token
// tables.
func (s *Store) StoreAccessToken(data *AccessTokenData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessTokens[data.Token] = data
	s.saveTokensLocked()
	logging.Debug("OAuth", "Stored access token for agent %s (client %s)", data.AgentName, data.ClientID)
}

// GetAccessToken returns the token's data, evicting expired tokens.
func (s *Store) GetAccessToken(token string) *AccessTokenData {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.accessTokens[token]
	if !ok {
		return nil
	}
	if !data.ExpiresAt.IsZero() && time.Now().After(data.ExpiresAt) {
		delete(s.accessTokens, token)
		s.saveTokensLocked()
		return nil
	}
	return data
}

// RevokeAccessToken removes an access token.
func (s *Store) RevokeAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accessTokens[token]; ok {
		delete(s.accessTokens, token)
		s.saveTokensLocked()
		logging.Debug("OAuth", "Revoked access token")
	}
}

// UpdateAccessTokenAgent rebinds a live access token to a different agent
// without changing the token string. Used by the agent-switch tool.
func (s *Store) UpdateAccessTokenAgent(token, agentAPIKey, agentID, agentName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.accessTokens[token]
	if !ok {
		return false
	}
	data.AgentAPIKey = agentAPIKey
	data.AgentID = agentID
	data.AgentName = agentName
	s.saveTokensLocked()
	logging.Info("OAuth", "Rebound access token to agent %s", agentName)
	return true
}

// ---- Refresh tokens ----

// StoreRefreshToken records an issued refresh token and persists the token
// tables.
func (s *Store) StoreRefreshToken(data *RefreshTokenData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshTokens[data.Token] = data
	s.saveTokensLocked()
}

// GetRefreshToken returns the token's data, evicting expired tokens.
func (s *Store) GetRefreshToken(token string) *RefreshTokenData {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.refreshTokens[token]
	if !ok {
		return nil
	}
	if !data.ExpiresAt.IsZero() && time.Now().After(data.ExpiresAt) {
		delete(s.refreshTokens, token)
		s.saveTokensLocked()
		return nil
	}
	return data
}

// RevokeRefreshToken removes a refresh token.
func (s *Store) RevokeRefreshToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refreshTokens[token]; ok {
		delete(s.refreshTokens, token)
		s.saveTokensLocked()
		logging.Debug("OAuth", "Revoked refresh token")
	}
}

// ---- Cleanup ----

// CleanupExpired removes expired codes, tokens, and stale pending logins.
// Persists only when a persisted table changed.
func (s *Store) CleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0

	for code, data := range s.authCodes {
		if now.After(data.ExpiresAt) {
			delete(s.authCodes, code)
			removed++
		}
	}
	for state, data := range s.pendingLogins {
		if now.Sub(data.CreatedAt) > PendingLoginTTL {
			delete(s.pendingLogins, state)
			removed++
		}
	}

	persistedChanged := false
	for token, data := range s.accessTokens {
		if !data.ExpiresAt.IsZero() && now.After(data.ExpiresAt) {
			delete(s.accessTokens, token)
			persistedChanged = true
			removed++
		}
	}
	for token, data := range s.refreshTokens {
		if !data.ExpiresAt.IsZero() && now.After(data.ExpiresAt) {
			delete(s.refreshTokens, token)
			persistedChanged = true
			removed++
		}
	}

	if persistedChanged {
		s.saveTokensLocked()
	}
	if removed > 0 {
		logging.Debug("OAuth", "Cleaned up %d expired entries", removed)
	}
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CleanupExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

// ---- Persistence ----

func (s *Store) saveClientsLocked() {
	if s.dir == "" {
		return
	}
	data, err := json.MarshalIndent(s.clients, "", "  ")
	if err != nil {
		logging.Warn("OAuth", "Failed to encode clients: %v", err)
		return
	}
	path := filepath.Join(s.dir, clientsFileName)
	if err := os.WriteFile(path, data, storageFilePerm); err != nil {
		logging.Warn("OAuth", "Failed to save clients to %s: %v", path, err)
	}
}

func (s *Store) loadClients() {
	path := filepath.Join(s.dir, clientsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Warn("OAuth", "Failed to read clients from %s: %v", path, err)
		}
		return
	}
	var clients map[string]*ClientData
	if err := json.Unmarshal(data, &clients); err != nil {
		logging.Warn("OAuth", "Failed to parse clients from %s: %v", path, err)
		return
	}
	for id, c := range clients {
		s.clients[id] = c
	}
	logging.Info("OAuth", "Loaded %d persisted client registration(s)", len(clients))
}

func (s *Store) saveTokensLocked() {
	if s.dir == "" {
		return
	}
	doc := tokensDocument{
		AccessTokens:  s.accessTokens,
		RefreshTokens: s.refreshTokens,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		logging.Warn("OAuth", "Failed to encode tokens: %v", err)
		return
	}
	path := filepath.Join(s.dir, tokensFileName)
	if err := os.WriteFile(path, data, storageFilePerm); err != nil {
		logging.Warn("OAuth", "Failed to save tokens to %s: %v", path, err)
	}
}

// loadTokens restores the persisted token tables, silently dropping entries
// that expired while the server was down.
func (s *Store) loadTokens() {
	path := filepath.Join(s.dir, tokensFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Warn("OAuth", "Failed to read tokens from %s: %v", path, err)
		}
		return
	}
	var doc tokensDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		logging.Warn("OAuth", "Failed to parse tokens from %s: %v", path, err)
		return
	}

	now := time.Now()
	loaded := 0
	for token, d := range doc.AccessTokens {
		if !d.ExpiresAt.IsZero() && now.After(d.ExpiresAt) {
			continue
		}
		s.accessTokens[token] = d
		loaded++
	}
	for token, d := range doc.RefreshTokens {
		if !d.ExpiresAt.IsZero() && now.After(d.ExpiresAt) {
			continue
		}
		s.refreshTokens[token] = d
		loaded++
	}
	logging.Info("OAuth", "Loaded %d persisted token(s)", loaded)
}
