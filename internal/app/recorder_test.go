package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/event"
	"trivia-room-service/internal/metrics"
)

type flakyStore struct {
	mu       sync.Mutex
	statuses []domain.RoomStatus
	upserts  map[string]int
	failFor  string
}

func (s *flakyStore) LoadRoomWithQuiz(context.Context, string) (domain.RoomWithQuiz, error) {
	return domain.RoomWithQuiz{}, domain.ErrRoomNotFound
}

func (s *flakyStore) SetRoomStatus(_ context.Context, _ string, status domain.RoomStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *flakyStore) UpsertScore(_ context.Context, _, userID string, points int, _ []domain.AnswerRecord) error {
	if userID == s.failFor {
		return errors.New("connection reset")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts[userID] = points
	return nil
}

type captureAnnouncer struct {
	mu     sync.Mutex
	events []domain.EventGameFinished
}

func (a *captureAnnouncer) AnnounceResults(_ context.Context, e domain.EventGameFinished) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func TestResultRecorderSwallowsUpsertFailures(t *testing.T) {
	store := &flakyStore{upserts: make(map[string]int), failFor: "u2"}
	announcer := &captureAnnouncer{}
	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus := event.NewBus(event.WithLogger(logger))
	app.NewResultRecorder(store, announcer, metrics.New(reg), logger).Register(bus)

	finished := domain.EventGameFinished{
		RoomID: "r1",
		Results: []domain.ScoreRecord{
			{RoomID: "r1", UserID: "u1", Points: 917},
			{RoomID: "r1", UserID: "u2", Points: 0},
			{RoomID: "r1", UserID: "u3", Points: 500},
		},
	}
	bus.Publish(context.Background(), finished)
	bus.Stop()

	assert.Equal(t, []domain.RoomStatus{domain.StatusFinished}, store.statuses)
	assert.Equal(t, map[string]int{"u1": 917, "u3": 500}, store.upserts)
	require.Len(t, announcer.events, 1)
	assert.Equal(t, "r1", announcer.events[0].RoomID)

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP trivia_persistence_failures_total Failed persistence calls by operation.
# TYPE trivia_persistence_failures_total counter
trivia_persistence_failures_total{op="upsert_score"} 1
`), "trivia_persistence_failures_total"))
}

func TestResultRecorderMarksStarted(t *testing.T) {
	store := &flakyStore{upserts: make(map[string]int)}
	rec := app.NewResultRecorder(store, nil, nil, nil)

	require.NoError(t, rec.RecordStarted(context.Background(), domain.EventGameStarted{RoomID: "r1"}))
	assert.Equal(t, []domain.RoomStatus{domain.StatusActive}, store.statuses)
}
