package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomStore. Quiz content
// comes from the given loader; rooms are seeded with AddRoom.
type RoomStore struct {
	quizzes app.QuizLoader

	mu     sync.RWMutex
	rooms  map[string]domain.Room
	byCode map[string]string
	scores map[string]map[string]domain.ScoreRecord
}

func NewRoomStore(quizzes app.QuizLoader, rooms ...domain.Room) *RoomStore {
	s := &RoomStore{
		quizzes: quizzes,
		rooms:   make(map[string]domain.Room),
		byCode:  make(map[string]string),
		scores:  make(map[string]map[string]domain.ScoreRecord),
	}
	for _, r := range rooms {
		s.AddRoom(r)
	}
	return s
}

func (s *RoomStore) AddRoom(r domain.Room) {
	if r.Status == "" {
		r.Status = domain.StatusLobby
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = r
	s.byCode[r.Code] = r.ID
}

func (s *RoomStore) LoadRoomWithQuiz(ctx context.Context, code string) (domain.RoomWithQuiz, error) {
	s.mu.RLock()
	room, ok := s.rooms[s.byCode[code]]
	s.mu.RUnlock()
	if !ok {
		return domain.RoomWithQuiz{}, domain.ErrRoomNotFound
	}

	quiz, err := s.quizzes.LoadQuiz(ctx, room.QuizID)
	if err != nil {
		return domain.RoomWithQuiz{}, fmt.Errorf("load quiz %s: %w", room.QuizID, err)
	}
	return domain.RoomWithQuiz{Room: room, Questions: quiz.Questions}, nil
}

// SetRoomStatus never moves a room backwards.
func (s *RoomStore) SetRoomStatus(_ context.Context, roomID string, status domain.RoomStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if status.Rank() > room.Status.Rank() {
		room.Status = status
		s.rooms[roomID] = room
	}
	return nil
}

func (s *RoomStore) UpsertScore(_ context.Context, roomID, userID string, points int, answers []domain.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return domain.ErrRoomNotFound
	}
	byUser, ok := s.scores[roomID]
	if !ok {
		byUser = make(map[string]domain.ScoreRecord)
		s.scores[roomID] = byUser
	}
	byUser[userID] = domain.ScoreRecord{
		RoomID:  roomID,
		UserID:  userID,
		Points:  points,
		Answers: append([]domain.AnswerRecord(nil), answers...),
	}
	return nil
}

// Status returns the stored status of a room.
func (s *RoomStore) Status(roomID string) (domain.RoomStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	return room.Status, ok
}

// Scores returns the stored scores of a room ordered by user id.
func (s *RoomStore) Scores(roomID string) []domain.ScoreRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ScoreRecord, 0, len(s.scores[roomID]))
	for _, rec := range s.scores[roomID] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
