package domain

// RoomStatus is the lifecycle stage of a room. It only ever moves forward.
type RoomStatus string

const (
	StatusLobby    RoomStatus = "LOBBY"
	StatusActive   RoomStatus = "ACTIVE"
	StatusFinished RoomStatus = "FINISHED"
)

// Rank orders statuses along the lifecycle; unknown statuses rank below LOBBY.
func (s RoomStatus) Rank() int {
	switch s {
	case StatusLobby:
		return 1
	case StatusActive:
		return 2
	case StatusFinished:
		return 3
	}
	return 0
}

// DefaultTimeLimitSecs applies to questions stored without a usable time limit.
const DefaultTimeLimitSecs = 30

// Question is the stored form of a quiz question, correct answer included.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	ImageURL      *string  `json:"imageUrl"`
	Options       []string `json:"options"`
	CorrectIndex  int      `json:"correctIndex"`
	TimeLimitSecs int      `json:"timeLimitSecs"`
}

// Data strips the correct answer, leaving what players are allowed to see.
func (q Question) Data() QuestionData {
	limit := q.TimeLimitSecs
	if limit <= 0 {
		limit = DefaultTimeLimitSecs
	}
	return QuestionData{
		ID:            q.ID,
		Text:          q.Text,
		ImageURL:      q.ImageURL,
		Options:       append([]string(nil), q.Options...),
		TimeLimitSecs: limit,
	}
}

// Quiz is an ordered list of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Room is the persisted room row.
type Room struct {
	ID     string
	Code   string
	HostID string
	QuizID string
	Status RoomStatus
}

// RoomWithQuiz is what the coordinator needs to activate a room.
type RoomWithQuiz struct {
	Room
	Questions []Question
}

// Answer is one player's recorded answer to one question.
type Answer struct {
	AnswerIndex  int   `json:"answerIndex"`
	TimeMs       int64 `json:"timeMs"`
	Correct      bool  `json:"correct"`
	PointsEarned int   `json:"pointsEarned"`
}

// AnswerRecord is the durable form of an answer, keyed by question.
type AnswerRecord struct {
	QuestionID  string `json:"questionId"`
	AnswerIndex int    `json:"answerIndex"`
	Correct     bool   `json:"correct"`
	TimeMs      int64  `json:"timeMs"`
}

// ScoreRecord is the final result of one user in one room.
type ScoreRecord struct {
	RoomID  string         `json:"roomId"`
	UserID  string         `json:"userId"`
	Points  int            `json:"points"`
	Answers []AnswerRecord `json:"answers"`
}
