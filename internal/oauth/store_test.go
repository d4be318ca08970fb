package oauth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCorrupt(t *testing.T, dir string) {
	t.Helper()
	for _, name := range []string{clientsFileName, tokensFileName} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{corrupt"), 0600))
	}
}

func testBinding() IdentityBinding {
	return IdentityBinding{
		AgentAPIKey: "sk-agent-key",
		AgentID:     "agent-1",
		AgentName:   "TestBot",
		UserJWT:     "user-jwt",
	}
}

func TestRegisterClientRequiresRedirectURI(t *testing.T) {
	s := NewMemoryStore()
	defer s.Stop()

	err := s.RegisterClient(&ClientData{ClientID: "c1"})
	require.Error(t, err)
	oerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrInvalidRedirectURI, oerr.Code)

	err = s.RegisterClient(&ClientData{ClientID: "c1", RedirectURIs: []string{"https://client/cb"}})
	require.NoError(t, err)
	assert.NotNil(t, s.GetClient("c1"))
}

func TestAuthCodeSingleUse(t *testing.T) {
	s := NewMemoryStore()
	defer s.Stop()

	s.StoreAuthCode(&AuthCodeData{
		Code:            "code-1",
		ClientID:        "c1",
		ExpiresAt:       time.Now().Add(AuthCodeTTL),
		IdentityBinding: testBinding(),
	})

	first := s.ConsumeAuthCode("code-1")
	require.NotNil(t, first)
	assert.Equal(t, "agent-1", first.AgentID)

	second := s.ConsumeAuthCode("code-1")
	assert.Nil(t, second, "code must be consumable exactly once")
}

func TestAuthCodeExpiry(t *testing.T) {
	s := NewMemoryStore()
	defer s.Stop()

	s.StoreAuthCode(&AuthCodeData{
		Code:      "stale",
		ExpiresAt: time.Now().Add(-time.Second),
	})

	assert.Nil(t, s.GetAuthCode("stale"))
	assert.Nil(t, s.ConsumeAuthCode("stale"), "consuming an expired code must fail")
}

func TestAccessTokenExpiryEnforced(t *testing.T) {
	s := NewMemoryStore()
	defer s.Stop()

	s.StoreAccessToken(&AccessTokenData{
		Token:     "expired",
		ClientID:  "c1",
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	s.StoreAccessToken(&AccessTokenData{
		Token:     "live",
		ClientID:  "c1",
		ExpiresAt: time.Now().Add(time.Hour),
	})

	assert.Nil(t, s.GetAccessToken("expired"))
	got := s.GetAccessToken("live")
	require.NotNil(t, got)
	assert.True(t, got.ExpiresAt.After(time.Now()))
}

func TestUpdateAccessTokenAgent(t *testing.T) {
	s := NewMemoryStore()
	defer s.Stop()

	s.StoreAccessToken(&AccessTokenData{
		Token:           "tok-1",
		ClientID:        "c1",
		ExpiresAt:       time.Now().Add(time.Hour),
		IdentityBinding: testBinding(),
	})

	ok := s.UpdateAccessTokenAgent("tok-1", "new-key", "agent-2", "Agent B")
	require.True(t, ok)

	got := s.GetAccessToken("tok-1")
	require.NotNil(t, got)
	assert.Equal(t, "tok-1", got.Token, "token string must not change")
	assert.Equal(t, "agent-2", got.AgentID)
	assert.Equal(t, "Agent B", got.AgentName)
	assert.Equal(t, "new-key", got.AgentAPIKey)

	assert.False(t, s.UpdateAccessTokenAgent("missing", "k", "a", "n"))
}

func TestPendingLoginTTL(t *testing.T) {
	s := NewMemoryStore()
	defer s.Stop()

	s.StorePendingLogin(&PendingLogin{
		State:     "fresh",
		CreatedAt: time.Now(),
	})
	s.StorePendingLogin(&PendingLogin{
		State:     "stale",
		CreatedAt: time.Now().Add(-PendingLoginTTL - time.Minute),
	})

	assert.NotNil(t, s.GetPendingLogin("fresh"))
	assert.Nil(t, s.GetPendingLogin("stale"))

	// Lookups return snapshots; only SetPendingLoginUser writes back.
	s.GetPendingLogin("fresh").UserJWT = "scribbled"
	assert.Empty(t, s.GetPendingLogin("fresh").UserJWT)
	require.True(t, s.SetPendingLoginUser("fresh", "jwt-1", nil))
	assert.Equal(t, "jwt-1", s.GetPendingLogin("fresh").UserJWT)

	assert.NotNil(t, s.ConsumePendingLogin("fresh"))
	assert.Nil(t, s.ConsumePendingLogin("fresh"), "pending login is consumed exactly once")
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.RegisterClient(&ClientData{
		ClientID:     "c1",
		RedirectURIs: []string{"https://client/cb"},
		ClientName:   "Test Client",
	}))
	s.StoreAccessToken(&AccessTokenData{
		Token:           "acc-1",
		ClientID:        "c1",
		Scopes:          []string{"agent"},
		ExpiresAt:       time.Now().Add(time.Hour),
		IdentityBinding: testBinding(),
	})
	s.StoreAccessToken(&AccessTokenData{
		Token:     "acc-expired",
		ClientID:  "c1",
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	s.StoreRefreshToken(&RefreshTokenData{
		Token:           "ref-1",
		ClientID:        "c1",
		Scopes:          []string{"agent"},
		ExpiresAt:       time.Now().Add(RefreshTokenTTL),
		IdentityBinding: testBinding(),
	})
	s.Stop()

	reloaded, err := NewStore(dir)
	require.NoError(t, err)
	defer reloaded.Stop()

	client := reloaded.GetClient("c1")
	require.NotNil(t, client)
	assert.Equal(t, "Test Client", client.ClientName)

	acc := reloaded.GetAccessToken("acc-1")
	require.NotNil(t, acc)
	assert.Equal(t, testBinding(), acc.IdentityBinding)
	assert.Equal(t, []string{"agent"}, acc.Scopes)

	assert.Nil(t, reloaded.GetAccessToken("acc-expired"), "expired entries are dropped on load")

	ref := reloaded.GetRefreshToken("ref-1")
	require.NotNil(t, ref)
	assert.Equal(t, "sk-agent-key", ref.AgentAPIKey)
}

func TestCorruptPersistenceFilesTolerated(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStore(dir)
	require.NoError(t, err)
	s.StoreAccessToken(&AccessTokenData{Token: "t", ClientID: "c", ExpiresAt: time.Now().Add(time.Hour)})
	s.Stop()

	// Corrupt both files; a fresh store must come up empty, not fail.
	writeCorrupt(t, dir)

	reloaded, err := NewStore(dir)
	require.NoError(t, err)
	defer reloaded.Stop()
	assert.Nil(t, reloaded.GetAccessToken("t"))
}

func TestNullPersistenceFilesTolerated(t *testing.T) {
	dir := t.TempDir()

	// "null" is valid JSON but decodes to a nil map; the store must still
	// come up usable.
	for _, name := range []string{clientsFileName, tokensFileName} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("null"), 0600))
	}

	s, err := NewStore(dir)
	require.NoError(t, err)
	defer s.Stop()

	require.NoError(t, s.RegisterClient(&ClientData{
		ClientID:     "c1",
		RedirectURIs: []string{"https://client/cb"},
	}))
	require.NotNil(t, s.GetClient("c1"))
}

func TestCleanupExpired(t *testing.T) {
	s := NewMemoryStore()
	defer s.Stop()

	s.StoreAuthCode(&AuthCodeData{Code: "old", ExpiresAt: time.Now().Add(-time.Minute)})
	s.StoreAccessToken(&AccessTokenData{Token: "old", ExpiresAt: time.Now().Add(-time.Minute)})
	s.StoreRefreshToken(&RefreshTokenData{Token: "old", ExpiresAt: time.Now().Add(-time.Minute)})
	s.StorePendingLogin(&PendingLogin{State: "old", CreatedAt: time.Now().Add(-time.Hour)})
	s.StoreAccessToken(&AccessTokenData{Token: "live", ExpiresAt: time.Now().Add(time.Hour)})

	s.CleanupExpired()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.authCodes)
	assert.Empty(t, s.refreshTokens)
	assert.Empty(t, s.pendingLogins)
	assert.Len(t, s.accessTokens, 1)
}
