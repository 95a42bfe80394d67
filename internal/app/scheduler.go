package app

import (
	"log/slog"
	"time"

	"trivia-room-service/internal/metrics"
)

// Timer is a pending scheduled call.
type Timer interface {
	// Stop prevents the call from running. It reports false if the call has
	// already fired or been stopped.
	Stop() bool
}

// Scheduler registers callbacks to run after a delay without blocking the
// caller.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Timings are the fixed pacing delays of a game.
type Timings struct {
	// RevealDelay separates QUESTION_END from LEADERBOARD.
	RevealDelay time.Duration
	// NextQuestionDelay separates LEADERBOARD from the next QUESTION_START.
	NextQuestionDelay time.Duration
	// EvictionDelay is how long a finished room stays in the registry.
	EvictionDelay time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		RevealDelay:       2 * time.Second,
		NextQuestionDelay: 3 * time.Second,
		EvictionDelay:     60 * time.Second,
	}
}

// Options tune how rooms are created. The zero value is usable.
type Options struct {
	Timings   Timings
	Scheduler Scheduler
	Now       func() time.Time
	// ClampElapsed bounds client-reported answer times to the question limit
	// before scoring.
	ClampElapsed bool
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

func (o Options) withDefaults() Options {
	def := DefaultTimings()
	if o.Timings.RevealDelay <= 0 {
		o.Timings.RevealDelay = def.RevealDelay
	}
	if o.Timings.NextQuestionDelay <= 0 {
		o.Timings.NextQuestionDelay = def.NextQuestionDelay
	}
	if o.Timings.EvictionDelay <= 0 {
		o.Timings.EvictionDelay = def.EvictionDelay
	}
	if o.Scheduler == nil {
		o.Scheduler = realScheduler{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
