package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/kendall-kelly/patriotgo-chat-api/config"
	"github.com/kendall-kelly/patriotgo-chat-api/kvstore"
	"github.com/kendall-kelly/patriotgo-chat-api/services"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Credentials shared by tests that mint and verify real tokens
const (
	TestJWTSecret   = "test-secret-do-not-use-in-production"
	TestJWTIssuer   = "patriotgo-api"
	TestJWTAudience = "patriotgo-app"
)

// TestConfig returns a configuration for an in-memory sqlite store and
// HS256 tokens signed with TestJWTSecret
func TestConfig() *config.Config {
	return &config.Config{
		Port:               "8080",
		GoEnv:              "test",
		LogLevel:           "debug",
		StoreBackend:       config.StoreBackendGorm,
		DatabaseURL:        "sqlite://:memory:",
		JWTSecret:          TestJWTSecret,
		JWTIssuer:          TestJWTIssuer,
		JWTAudience:        TestJWTAudience,
		CORSAllowedOrigins: []string{"http://localhost:8081"},
	}
}

// NewTestStore opens a migrated in-memory store that is closed when the
// test ends
func NewTestStore(t *testing.T) kvstore.Store {
	t.Helper()

	db, err := config.OpenDatabase("sqlite://:memory:")
	require.NoError(t, err)

	store := kvstore.NewGormStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

// NewTestChatService builds a ChatService on a fresh in-memory store
func NewTestChatService(t *testing.T) *services.ChatService {
	t.Helper()
	return services.NewChatService(NewTestStore(t), NewStepClock(1_700_000_000_000), zaptest.NewLogger(t))
}

// StepClock is a deterministic clock that advances one second per reading
type StepClock struct {
	mu  sync.Mutex
	now int64
}

// NewStepClock starts the clock at start milliseconds
func NewStepClock(start int64) *StepClock {
	return &StepClock{now: start}
}

// NowMillis returns the current reading and advances the clock
func (c *StepClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now
	c.now += 1000
	return ts
}
