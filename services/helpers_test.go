package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kendall-kelly/patriotgo-chat-api/config"
	"github.com/kendall-kelly/patriotgo-chat-api/kvstore"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// stepClock returns now and then advances it by step on every call
type stepClock struct {
	mu   sync.Mutex
	now  int64
	step int64
}

func newStepClock(start int64) *stepClock {
	return &stepClock{now: start, step: 1000}
}

func (c *stepClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now
	c.now += c.step
	return ts
}

// frozenClock always returns the same timestamp
type frozenClock int64

func (c frozenClock) NowMillis() int64 { return int64(c) }

func newTestStore(t *testing.T) kvstore.Store {
	t.Helper()

	db, err := config.OpenDatabase("sqlite://:memory:")
	require.NoError(t, err)

	store := kvstore.NewGormStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestService(t *testing.T, clock Clock) (*ChatService, kvstore.Store) {
	t.Helper()
	store := newTestStore(t)
	return NewChatService(store, clock, zaptest.NewLogger(t)), store
}

var errInjected = errors.New("injected backend failure")

// flakyStore wraps a Store, counts writes and fails Puts whose partition
// key starts with failPutPrefix
type flakyStore struct {
	kvstore.Store

	mu            sync.Mutex
	puts          int
	failPutPrefix string
	failQuery     bool
	failDelete    bool
}

func (s *flakyStore) Put(ctx context.Context, item kvstore.Item, opts ...kvstore.PutOption) error {
	s.mu.Lock()
	s.puts++
	fail := s.failPutPrefix != "" && strings.HasPrefix(item.PK, s.failPutPrefix)
	s.mu.Unlock()

	if fail {
		return errInjected
	}
	return s.Store.Put(ctx, item, opts...)
}

func (s *flakyStore) Query(ctx context.Context, q kvstore.Query) (*kvstore.Page, error) {
	if s.failQuery {
		return nil, errInjected
	}
	return s.Store.Query(ctx, q)
}

func (s *flakyStore) Delete(ctx context.Context, pk, sk string) error {
	if s.failDelete {
		return errInjected
	}
	return s.Store.Delete(ctx, pk, sk)
}

func (s *flakyStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *flakyStore) setFailPutPrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPutPrefix = prefix
}

func itemSortKeys(page *kvstore.Page) []string {
	keys := make([]string, 0, len(page.Items))
	for _, item := range page.Items {
		keys = append(keys, item.SK)
	}
	return keys
}
