package domain

import "encoding/json"

// EventType tags the payload carried by a Message.
type EventType string

// Client to server.
const (
	EventJoinRoom     EventType = "JOIN_ROOM"
	EventLeaveRoom    EventType = "LEAVE_ROOM"
	EventStartGame    EventType = "START_GAME"
	EventSubmitAnswer EventType = "SUBMIT_ANSWER"
)

// Server to client.
const (
	EventRoomState     EventType = "ROOM_STATE"
	EventQuestionStart EventType = "QUESTION_START"
	EventQuestionEnd   EventType = "QUESTION_END"
	EventLeaderboard   EventType = "LEADERBOARD"
	EventGameOver      EventType = "GAME_OVER"
	EventError         EventType = "ERROR"
)

// Message is the real-time envelope in both directions.
type Message struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// Encode marshals the envelope once so it can be fanned out as-is.
func Encode(t EventType, payload any) ([]byte, error) {
	return json.Marshal(Message{Type: t, Payload: payload})
}

type JoinRoomPayload struct {
	RoomCode string `json:"roomCode"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type LeaveRoomPayload struct {
	RoomCode string `json:"roomCode"`
	UserID   string `json:"userId"`
}

type StartGamePayload struct {
	RoomID string `json:"roomId"`
}

type SubmitAnswerPayload struct {
	RoomID      string `json:"roomId"`
	QuestionID  string `json:"questionId"`
	// AnswerIndex is required; a missing or null index is malformed.
	AnswerIndex *int  `json:"answerIndex"`
	TimeMs      int64 `json:"timeMs"`
}

// Player is the public view of a room member.
type Player struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Connected bool   `json:"connected"`
}

// RoomState is the full room snapshot sent on join, leave, reconnect and disconnect.
type RoomState struct {
	RoomID   string     `json:"roomId"`
	RoomCode string     `json:"roomCode"`
	Players  []Player   `json:"players"`
	Status   RoomStatus `json:"status"`
	HostID   string     `json:"hostId"`
}

// QuestionData is a question as shown to players; it never carries the correct index.
type QuestionData struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	ImageURL      *string  `json:"imageUrl"`
	Options       []string `json:"options"`
	TimeLimitSecs int      `json:"timeLimitSecs"`
}

type QuestionStartPayload struct {
	Question      QuestionData `json:"question"`
	QuestionIndex int          `json:"questionIndex"`
	Total         int          `json:"total"`
	TimeLimitSecs int          `json:"timeLimitSecs"`
	StartedAt     int64        `json:"startedAt"`
}

// PlayerResult is one line of a QUESTION_END; AnswerIndex is nil for players who did not answer.
type PlayerResult struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	AnswerIndex  *int   `json:"answerIndex"`
	Correct      bool   `json:"correct"`
	PointsEarned int    `json:"pointsEarned"`
	TimeMs       int64  `json:"timeMs"`
}

type QuestionEndPayload struct {
	CorrectIndex int            `json:"correctIndex"`
	Results      []PlayerResult `json:"results"`
}

type LeaderboardEntry struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Points   int    `json:"points"`
}

type LeaderboardPayload struct {
	Scores []LeaderboardEntry `json:"scores"`
}

type GameOverPayload struct {
	FinalScores []LeaderboardEntry `json:"finalScores"`
	Winner      *LeaderboardEntry  `json:"winner"`
}

type ErrorPayload struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}
