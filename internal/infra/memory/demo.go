package memory

import (
	"github.com/google/uuid"

	"trivia-room-service/internal/domain"
)

const (
	DemoRoomCode = "DEMO01"
	DemoHostID   = "demo-host"
)

var demoNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("trivia-room-service/demo"))

func demoID(name string) string {
	return uuid.NewSHA1(demoNamespace, []byte(name)).String()
}

// DemoQuiz is a small quiz used when no database is configured.
func DemoQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    demoID("quiz"),
		Title: "Warm-up",
		Questions: []domain.Question{
			{
				ID:            demoID("q1"),
				Text:          "What is 2 + 2?",
				Options:       []string{"3", "4", "5", "22"},
				CorrectIndex:  1,
				TimeLimitSecs: 20,
			},
			{
				ID:            demoID("q2"),
				Text:          "Which planet is known as the red planet?",
				Options:       []string{"Venus", "Jupiter", "Mars", "Mercury"},
				CorrectIndex:  2,
				TimeLimitSecs: 20,
			},
			{
				ID:           demoID("q3"),
				Text:         "How many continents are there?",
				Options:      []string{"5", "6", "7", "8"},
				CorrectIndex: 2,
			},
		},
	}
}

// DemoRoom is the lobby room DEMO01 hosted by DemoHostID.
func DemoRoom() domain.Room {
	return domain.Room{
		ID:     demoID("room"),
		Code:   DemoRoomCode,
		HostID: DemoHostID,
		QuizID: DemoQuiz().ID,
		Status: domain.StatusLobby,
	}
}

// NewDemoRoomStore returns a store seeded with the demo room and quiz.
func NewDemoRoomStore() *RoomStore {
	quiz := DemoQuiz()
	loader := NewStaticQuizLoader(map[string]domain.Quiz{quiz.ID: quiz})
	return NewRoomStore(loader, DemoRoom())
}
