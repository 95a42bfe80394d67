package domain

const (
	EventNameGameStarted  = "game.started"
	EventNameGameFinished = "game.finished"
)

// EventGameStarted is published when a room leaves the lobby.
type EventGameStarted struct {
	RoomID string
}

func (EventGameStarted) Name() string { return EventNameGameStarted }

// EventGameFinished carries everything needed to persist and announce a finished game.
type EventGameFinished struct {
	RoomID      string
	RoomCode    string
	QuizID      string
	FinalScores []LeaderboardEntry
	Winner      *LeaderboardEntry
	Results     []ScoreRecord
}

func (EventGameFinished) Name() string { return EventNameGameFinished }
