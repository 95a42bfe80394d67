package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"trivia-room-service/internal/domain"
)

// Publisher is the subset of the Redis client used to publish messages.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// ResultPublisher announces final standings on <prefix>:room:{roomID}:results.
type ResultPublisher struct {
	client Publisher
	keys   keys
}

func NewResultPublisher(client Publisher, prefix string) *ResultPublisher {
	return &ResultPublisher{client: client, keys: newKeys(prefix)}
}

// ResultMessage is the JSON published for a finished game.
type ResultMessage struct {
	RoomID      string                    `json:"roomId"`
	RoomCode    string                    `json:"roomCode"`
	QuizID      string                    `json:"quizId"`
	FinalScores []domain.LeaderboardEntry `json:"finalScores"`
	Winner      *domain.LeaderboardEntry  `json:"winner"`
}

func (p *ResultPublisher) AnnounceResults(ctx context.Context, e domain.EventGameFinished) error {
	body, err := json.Marshal(ResultMessage{
		RoomID:      e.RoomID,
		RoomCode:    e.RoomCode,
		QuizID:      e.QuizID,
		FinalScores: e.FinalScores,
		Winner:      e.Winner,
	})
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := p.client.Publish(ctx, p.keys.results(e.RoomID), body).Err(); err != nil {
		return fmt.Errorf("publish results: %w", err)
	}
	return nil
}
