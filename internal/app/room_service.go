package app

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/event"
)

// RoomRegistry holds the live rooms of this process, addressable by id and
// by code.
type RoomRegistry interface {
	GetByCode(code string) (*Room, bool)
	Get(roomID string) (*Room, bool)
	// GetOrInsert stores room unless a room with the same id is already live,
	// in which case the live one is returned with inserted=false.
	GetOrInsert(room *Room) (actual *Room, inserted bool)
	Remove(roomID string)
	Len() int
}

// RoomStore is the persistence side of a room.
type RoomStore interface {
	LoadRoomWithQuiz(ctx context.Context, code string) (domain.RoomWithQuiz, error)
	SetRoomStatus(ctx context.Context, roomID string, status domain.RoomStatus) error
	UpsertScore(ctx context.Context, roomID, userID string, points int, answers []domain.AnswerRecord) error
}

// QuizLoader fetches quiz content by id.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Publisher delivers domain events off the room's critical section.
type Publisher interface {
	Publish(ctx context.Context, e event.Event)
}

// RoomService resolves rooms and routes player actions to them.
type RoomService struct {
	rooms  RoomRegistry
	store  RoomStore
	events Publisher
	opts   Options
	logger *slog.Logger
	loads  singleflight.Group
}

func NewRoomService(rooms RoomRegistry, store RoomStore, events Publisher, opts Options) *RoomService {
	opts = opts.withDefaults()
	return &RoomService{
		rooms:  rooms,
		store:  store,
		events: events,
		opts:   opts,
		logger: opts.Logger,
	}
}

// Join activates the room behind code if needed and adds or reconnects
// userID with conn as its handle. The returned snapshot has already been
// sent to conn.
func (s *RoomService) Join(ctx context.Context, code, userID, username string, conn Conn) (domain.RoomState, error) {
	room, err := s.activate(ctx, code)
	if err != nil {
		return domain.RoomState{}, err
	}
	return room.join(userID, username, conn)
}

// Leave removes userID from the room. Unknown rooms and users are ignored.
func (s *RoomService) Leave(_ context.Context, code, userID string) {
	room, ok := s.rooms.GetByCode(code)
	if !ok {
		return
	}
	room.leave(userID)
}

func (s *RoomService) Start(_ context.Context, roomID, callerID string) error {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	return room.start(callerID)
}

func (s *RoomService) Submit(_ context.Context, roomID, userID, questionID string, answerIndex int, elapsedMs int64) (domain.Answer, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.Answer{}, domain.ErrRoomNotFound
	}
	return room.submit(userID, questionID, answerIndex, elapsedMs)
}

// Disconnect marks userID as disconnected if conn is still its handle in
// the room.
func (s *RoomService) Disconnect(roomID, userID string, conn Conn) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return
	}
	room.disconnect(userID, conn)
}

// Snapshot returns the state of a live room.
func (s *RoomService) Snapshot(code string) (domain.RoomState, error) {
	room, ok := s.rooms.GetByCode(code)
	if !ok {
		return domain.RoomState{}, domain.ErrRoomNotFound
	}
	return room.Snapshot(), nil
}

// Room returns a live room by id.
func (s *RoomService) Room(roomID string) (*Room, bool) {
	return s.rooms.Get(roomID)
}

func (s *RoomService) activate(ctx context.Context, code string) (*Room, error) {
	if room, ok := s.rooms.GetByCode(code); ok {
		return room, nil
	}

	v, err, _ := s.loads.Do(code, func() (any, error) {
		if room, ok := s.rooms.GetByCode(code); ok {
			return room, nil
		}

		rec, err := s.store.LoadRoomWithQuiz(ctx, code)
		if err != nil {
			if errors.Is(err, domain.ErrRoomNotFound) {
				return nil, domain.ErrRoomNotFound
			}
			return nil, domain.Internal(err)
		}
		if rec.Status == domain.StatusFinished {
			return nil, domain.ErrGameAlreadyEnded
		}

		room, inserted := s.rooms.GetOrInsert(newRoom(rec, s.opts, s.hooks()))
		if inserted {
			s.opts.Metrics.RoomOpened()
			s.logger.Info("room activated",
				"room_id", rec.ID,
				"room_code", rec.Code,
				"questions", len(rec.Questions),
				"status", rec.Status,
			)
			if rec.Status == domain.StatusActive {
				// An interrupted game cannot resume.
				s.logger.Warn("room loaded mid-game, scheduling eviction", "room_id", rec.ID, "room_code", rec.Code)
				s.opts.Scheduler.AfterFunc(s.opts.Timings.EvictionDelay, func() {
					s.evict(rec.ID, rec.Code)
				})
			}
		}
		return room, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Room), nil
}

func (s *RoomService) hooks() roomHooks {
	return roomHooks{
		started: func(e domain.EventGameStarted) {
			s.publish(e)
		},
		finished: func(e domain.EventGameFinished) {
			s.opts.Metrics.GameFinished()
			s.publish(e)
		},
		evict: s.evict,
		answered: func(correct bool) {
			s.opts.Metrics.AnswerRecorded(correct)
		},
	}
}

func (s *RoomService) publish(e event.Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(context.Background(), e)
}

func (s *RoomService) evict(roomID, code string) {
	s.rooms.Remove(roomID)
	s.opts.Metrics.RoomEvicted()
	s.logger.Info("room evicted", "room_id", roomID, "room_code", code)
}
