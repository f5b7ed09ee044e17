package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/collab/internal/codec"
	"github.com/eldtechnologies/collab/internal/models"
)

var errMissing = errors.New("missing")

type putCall struct {
	key string
	ttl time.Duration
}

type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
	puts []putCall
	err  error
}

func newMapStore() *mapStore { return &mapStore{data: make(map[string][]byte)} }

func (s *mapStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = value
	s.puts = append(s.puts, putCall{key: key, ttl: ttl})
	return nil
}

func (s *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, errMissing
	}
	return v, nil
}

func fixedNow() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }

func TestUpdatePersistsWithTTL(t *testing.T) {
	store := newMapStore()
	tr := NewTracker(store, codec.JSON{}, 0, fixedNow)

	p, err := tr.Update(context.Background(), models.UpdatePresenceRequest{
		UserID:        "u1",
		TenantID:      "t1",
		Status:        models.StatusBusy,
		StatusMessage: "showing a house",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusBusy, p.Status)
	assert.Equal(t, fixedNow(), p.LastSeen)

	require.Len(t, store.puts, 1)
	assert.Equal(t, "presence:u1", store.puts[0].key)
	assert.Equal(t, DefaultTTL, store.puts[0].ttl)

	got, ok := tr.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "showing a house", got.StatusMessage)
}

func TestUpdateOverwrites(t *testing.T) {
	tr := NewTracker(newMapStore(), codec.JSON{}, time.Minute, fixedNow)
	ctx := context.Background()

	_, err := tr.Update(ctx, models.UpdatePresenceRequest{UserID: "u1", TenantID: "t1", Status: models.StatusOnline})
	require.NoError(t, err)
	_, err = tr.Update(ctx, models.UpdatePresenceRequest{UserID: "u1", TenantID: "t1", Status: models.StatusAway})
	require.NoError(t, err)

	got, _ := tr.Get("u1")
	assert.Equal(t, models.StatusAway, got.Status)
	assert.Equal(t, 1, tr.Len())
}

func TestUpdateKeepsLocalRecordWhenStoreFails(t *testing.T) {
	store := newMapStore()
	store.err = errors.New("redis down")
	tr := NewTracker(store, codec.JSON{}, time.Minute, fixedNow)

	_, err := tr.Update(context.Background(), models.UpdatePresenceRequest{UserID: "u1", Status: models.StatusOnline})
	require.Error(t, err)

	_, ok := tr.Get("u1")
	assert.True(t, ok)
}

func TestLookupFallsBackToStore(t *testing.T) {
	store := newMapStore()
	ctx := context.Background()

	// Written by another instance sharing the store.
	other := NewTracker(store, codec.MsgPack{}, time.Minute, fixedNow)
	_, err := other.Update(ctx, models.UpdatePresenceRequest{UserID: "u2", TenantID: "t1", Status: models.StatusInCall})
	require.NoError(t, err)

	tr := NewTracker(store, codec.MsgPack{}, time.Minute, fixedNow)
	_, ok := tr.Get("u2")
	assert.False(t, ok)

	p, ok := tr.Lookup(ctx, "u2")
	require.True(t, ok)
	assert.Equal(t, models.StatusInCall, p.Status)

	_, ok = tr.Lookup(ctx, "nobody")
	assert.False(t, ok)
}

func TestRefresh(t *testing.T) {
	store := newMapStore()
	tr := NewTracker(store, codec.JSON{}, time.Minute, fixedNow)
	ctx := context.Background()

	require.NoError(t, tr.Refresh(ctx, "u1"))
	assert.Empty(t, store.puts)

	_, err := tr.Update(ctx, models.UpdatePresenceRequest{UserID: "u1", Status: models.StatusOnline})
	require.NoError(t, err)
	require.NoError(t, tr.Refresh(ctx, "u1"))
	assert.Len(t, store.puts, 2)
}
