package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loginguard/internal/models"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testEvent(identifier string, i int) *models.BlockEvent {
	at := baseTime.Add(time.Duration(i) * time.Second)
	return models.NewBlockEvent(identifier, 5, at, at.Add(30*time.Minute))
}

// runStoreTests exercises the behaviour every backend must share. newStore
// must return an empty store bounded to maxEvents.
func runStoreTests(t *testing.T, newStore func(t *testing.T, maxEvents int) Store) {
	ctx := context.Background()

	t.Run("RecordAndList", func(t *testing.T) {
		s := newStore(t, 0)
		ev := testEvent("login:alice", 0)
		require.NoError(t, s.Record(ctx, ev))

		got, err := s.List(ctx, models.BlockEventFilter{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, ev.ID, got[0].ID)
		assert.Equal(t, "login:alice", got[0].Identifier)
		assert.Equal(t, 5, got[0].Attempts)
		assert.True(t, ev.BlockedAt.Equal(got[0].BlockedAt))
		assert.True(t, ev.ExpiresAt.Equal(got[0].ExpiresAt))
	})

	t.Run("NewestFirst", func(t *testing.T) {
		s := newStore(t, 0)
		for i := 0; i < 3; i++ {
			require.NoError(t, s.Record(ctx, testEvent(fmt.Sprintf("login:user%d", i), i)))
		}

		got, err := s.List(ctx, models.BlockEventFilter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "login:user2", got[0].Identifier)
		assert.Equal(t, "login:user0", got[2].Identifier)
	})

	t.Run("FilterAndLimit", func(t *testing.T) {
		s := newStore(t, 0)
		for i := 0; i < 4; i++ {
			require.NoError(t, s.Record(ctx, testEvent("login:bob", i)))
			require.NoError(t, s.Record(ctx, testEvent("ip:10.0.0.1", i)))
		}

		got, err := s.List(ctx, models.BlockEventFilter{Identifier: "login:bob"})
		require.NoError(t, err)
		assert.Len(t, got, 4)
		for _, ev := range got {
			assert.Equal(t, "login:bob", ev.Identifier)
		}

		got, err = s.List(ctx, models.BlockEventFilter{Identifier: "ip:10.0.0.1", Limit: 2})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = s.List(ctx, models.BlockEventFilter{Identifier: "login:nobody"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("MaxEventsTrimsOldest", func(t *testing.T) {
		s := newStore(t, 3)
		for i := 0; i < 5; i++ {
			require.NoError(t, s.Record(ctx, testEvent(fmt.Sprintf("login:user%d", i), i)))
		}

		got, err := s.List(ctx, models.BlockEventFilter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "login:user4", got[0].Identifier)
		assert.Equal(t, "login:user2", got[2].Identifier)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t, 0)
		assert.NoError(t, s.Ping(ctx))
	})
}
