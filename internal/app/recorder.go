package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/event"
	"trivia-room-service/internal/metrics"
)

const defaultUpsertConcurrency = 8

// ResultAnnouncer pushes final standings to consumers outside this process.
type ResultAnnouncer interface {
	AnnounceResults(ctx context.Context, e domain.EventGameFinished) error
}

// ResultRecorder persists game lifecycle events. Failures are logged and
// counted; live clients have already seen the outcome.
type ResultRecorder struct {
	store     RoomStore
	announcer ResultAnnouncer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	limit     int
}

// NewResultRecorder creates a recorder. announcer and m may be nil.
func NewResultRecorder(store RoomStore, announcer ResultAnnouncer, m *metrics.Metrics, logger *slog.Logger) *ResultRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultRecorder{
		store:     store,
		announcer: announcer,
		metrics:   m,
		logger:    logger,
		limit:     defaultUpsertConcurrency,
	}
}

// Register subscribes the recorder to the game events on bus.
func (r *ResultRecorder) Register(bus *event.Bus) {
	bus.Subscribe(domain.EventNameGameStarted, r.handleStarted)
	bus.Subscribe(domain.EventNameGameFinished, r.handleFinished)
}

func (r *ResultRecorder) handleStarted(ctx context.Context, e event.Event) error {
	ev, ok := e.(domain.EventGameStarted)
	if !ok {
		return fmt.Errorf("unexpected event %T", e)
	}
	return r.RecordStarted(ctx, ev)
}

func (r *ResultRecorder) handleFinished(ctx context.Context, e event.Event) error {
	ev, ok := e.(domain.EventGameFinished)
	if !ok {
		return fmt.Errorf("unexpected event %T", e)
	}
	return r.RecordFinished(ctx, ev)
}

func (r *ResultRecorder) RecordStarted(ctx context.Context, e domain.EventGameStarted) error {
	if err := r.store.SetRoomStatus(ctx, e.RoomID, domain.StatusActive); err != nil {
		r.metrics.PersistFailed("set_status")
		r.logger.ErrorContext(ctx, "mark room active failed", "room_id", e.RoomID, "error", err)
		return nil
	}
	return nil
}

// RecordFinished marks the room FINISHED, upserts every score and announces
// the standings. Each step is attempted even if an earlier one failed.
func (r *ResultRecorder) RecordFinished(ctx context.Context, e domain.EventGameFinished) error {
	if err := r.store.SetRoomStatus(ctx, e.RoomID, domain.StatusFinished); err != nil {
		r.metrics.PersistFailed("set_status")
		r.logger.ErrorContext(ctx, "mark room finished failed", "room_id", e.RoomID, "error", err)
	}

	var g errgroup.Group
	g.SetLimit(r.limit)
	for _, rec := range e.Results {
		rec := rec
		g.Go(func() error {
			if err := r.store.UpsertScore(ctx, rec.RoomID, rec.UserID, rec.Points, rec.Answers); err != nil {
				r.metrics.PersistFailed("upsert_score")
				r.logger.ErrorContext(ctx, "upsert score failed",
					"room_id", rec.RoomID,
					"user_id", rec.UserID,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	if r.announcer != nil {
		if err := r.announcer.AnnounceResults(ctx, e); err != nil {
			r.metrics.PersistFailed("announce")
			r.logger.ErrorContext(ctx, "announce results failed", "room_id", e.RoomID, "error", err)
		}
	}

	r.logger.InfoContext(ctx, "game results recorded", "room_id", e.RoomID, "scores", len(e.Results))
	return nil
}
