package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loginguard/internal/models"
)

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T, maxEvents int) Store {
		s := NewMemoryStore(maxEvents)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestMemoryStore_CopiesEvents(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	ev := testEvent("login:alice", 0)
	require.NoError(t, s.Record(ctx, ev))
	ev.Identifier = "mutated"

	got, err := s.List(ctx, models.BlockEventFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "login:alice", got[0].Identifier)

	got[0].Attempts = 99
	again, err := s.List(ctx, models.BlockEventFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, again[0].Attempts)
}

func TestMemoryStore_Closed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Record(ctx, testEvent("login:alice", 0)), ErrClosed)
	_, err := s.List(ctx, models.BlockEventFilter{})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Ping(ctx), ErrClosed)
}
