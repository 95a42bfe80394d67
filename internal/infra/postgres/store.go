package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
)

// Store implements app.RoomStore on Postgres. Quiz content is read through
// quizzes, usually a cache in front of QuizLoader.
type Store struct {
	pool    *pgxpool.Pool
	quizzes app.QuizLoader
}

func NewStore(pool *pgxpool.Pool, quizzes app.QuizLoader) *Store {
	return &Store{pool: pool, quizzes: quizzes}
}

func (s *Store) LoadRoomWithQuiz(ctx context.Context, code string) (domain.RoomWithQuiz, error) {
	var (
		room   domain.Room
		status string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, host_id, quiz_id, status
		FROM rooms
		WHERE code = $1`, code).Scan(&room.ID, &room.Code, &room.HostID, &room.QuizID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RoomWithQuiz{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.RoomWithQuiz{}, fmt.Errorf("load room: %w", err)
	}
	room.Status = domain.RoomStatus(status)

	quiz, err := s.quizzes.LoadQuiz(ctx, room.QuizID)
	if err != nil {
		return domain.RoomWithQuiz{}, err
	}
	return domain.RoomWithQuiz{Room: room, Questions: quiz.Questions}, nil
}

// SetRoomStatus only moves a room forward along LOBBY, ACTIVE, FINISHED.
func (s *Store) SetRoomStatus(ctx context.Context, roomID string, status domain.RoomStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rooms
		SET status = $2
		WHERE id = $1
		  AND array_position(ARRAY['LOBBY', 'ACTIVE', 'FINISHED'], status)
		    < array_position(ARRAY['LOBBY', 'ACTIVE', 'FINISHED'], $2::text)`, roomID, string(status))
	if err != nil {
		return fmt.Errorf("set room status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)`, roomID).Scan(&exists); err != nil {
		return fmt.Errorf("check room: %w", err)
	}
	if !exists {
		return domain.ErrRoomNotFound
	}
	return nil
}

// UpsertScore is keyed by (room, user) so replays overwrite.
func (s *Store) UpsertScore(ctx context.Context, roomID, userID string, points int, answers []domain.AnswerRecord) error {
	if answers == nil {
		answers = []domain.AnswerRecord{}
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO scores (room_id, user_id, points, answers, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, now())
		ON CONFLICT (room_id, user_id)
		DO UPDATE SET points = EXCLUDED.points, answers = EXCLUDED.answers, updated_at = now()`,
		roomID, userID, points, string(raw))
	if err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}
	return nil
}
