package eventstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/store"
	"librarian/internal/store/storetest"
)

type testEvent struct {
	Message string `json:"message"`
}

func appendTx(t testing.TB, s *store.Store, es *EventStore, id uuid.UUID, expected int, events ...Event) error {
	t.Helper()
	return s.WithTx(context.Background(), "test.append", func(ctx context.Context, tx *sqlx.Tx) error {
		return es.AppendEvents(ctx, tx, id, "test_aggregate", expected, events)
	})
}

func mustEvent(t testing.TB, msg string) Event {
	t.Helper()
	e, err := NewEvent("TestEvent", testEvent{Message: msg})
	require.NoError(t, err)
	return e
}

func TestAppendAndLoad(t *testing.T) {
	s := storetest.Open(t)
	es := NewEventStore()
	ctx := context.Background()
	id := uuid.New()

	first := mustEvent(t, "one")
	first.Metadata = map[string]any{"actor": "alice"}
	require.NoError(t, appendTx(t, s, es, id, 0, first, mustEvent(t, "two")))
	require.NoError(t, appendTx(t, s, es, id, 2, mustEvent(t, "three")))

	events, err := es.LoadEvents(ctx, s.DB(), id, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, i+1, e.Version)
		assert.Equal(t, id, e.AggregateID)
		assert.Equal(t, "TestEvent", e.EventType)
	}
	assert.JSONEq(t, `{"message":"one"}`, string(events[0].EventData))
	assert.Equal(t, "alice", events[0].Metadata["actor"])
	assert.Nil(t, events[1].Metadata)

	ranged, err := es.LoadEvents(ctx, s.DB(), id, 2, 2)
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.JSONEq(t, `{"message":"two"}`, string(ranged[0].EventData))

	version, err := es.GetCurrentVersion(ctx, s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestAppendRejectsStaleVersion(t *testing.T) {
	s := storetest.Open(t)
	es := NewEventStore()
	id := uuid.New()

	require.NoError(t, appendTx(t, s, es, id, 0, mustEvent(t, "one")))

	err := appendTx(t, s, es, id, 0, mustEvent(t, "stale"))
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	err = appendTx(t, s, es, id, -1, mustEvent(t, "bad"))
	assert.ErrorIs(t, err, ErrInvalidVersion)

	version, err := es.GetCurrentVersion(context.Background(), s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestAppendRollsBackWithCaller(t *testing.T) {
	s := storetest.Open(t)
	es := NewEventStore()
	id := uuid.New()

	err := s.WithTx(context.Background(), "test.rollback", func(ctx context.Context, tx *sqlx.Tx) error {
		if err := es.AppendEvents(ctx, tx, id, "test_aggregate", 0, []Event{mustEvent(t, "lost")}); err != nil {
			return err
		}
		return fmt.Errorf("caller failed")
	})
	require.Error(t, err)

	events, err := es.LoadEvents(context.Background(), s.DB(), id, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestConcurrentAppendsOneWins(t *testing.T) {
	s := storetest.Open(t)
	es := NewEventStore()
	id := uuid.New()

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := appendTx(t, s, es, id, 0, mustEvent(t, fmt.Sprintf("writer %d", i))); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	version, err := es.GetCurrentVersion(context.Background(), s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestStreamEvents(t *testing.T) {
	s := storetest.Open(t)
	es := NewEventStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, appendTx(t, s, es, uuid.New(), 0, mustEvent(t, fmt.Sprint(i))))
	}

	batch, err := es.StreamEvents(ctx, s.DB(), 0, 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	rest, err := es.StreamEvents(ctx, s.DB(), batch[2].ID, 10)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
	assert.Greater(t, rest[0].ID, batch[2].ID)
}

func BenchmarkAppendEvents(b *testing.B) {
	s := storetest.Open(b)
	es := NewEventStore()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		id := uuid.New()
		event := mustEvent(b, fmt.Sprintf("event %d", i))
		b.StartTimer()

		if err := appendTx(b, s, es, id, 0, event); err != nil {
			b.Fatalf("AppendEvents failed: %v", err)
		}
	}
}
