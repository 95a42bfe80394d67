package app

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/scoring"
)

// Conn is the outbound half of a player's transport. Send must not block.
type Conn interface {
	Send(data []byte)
}

type player struct {
	conn      Conn
	userID    string
	username  string
	connected bool
}

// roomHooks connect a room to the world outside its lock. They are invoked
// while the room lock is held and must return quickly.
type roomHooks struct {
	started  func(domain.EventGameStarted)
	finished func(domain.EventGameFinished)
	evict    func(roomID, code string)
	answered func(correct bool)
}

// Room is the authoritative state of one game session. Every exported
// operation and every timer firing runs under mu; nothing blocks while it is
// held.
type Room struct {
	mu sync.Mutex

	id     string
	code   string
	hostID string
	quizID string
	status domain.RoomStatus

	questions []domain.QuestionData
	correct   []int

	current        int
	questionClosed bool
	deadline       Timer

	players map[string]*player
	order   []string
	scores  map[string]int
	answers map[string]map[string]domain.Answer

	sched        Scheduler
	now          func() time.Time
	timings      Timings
	clampElapsed bool
	hooks        roomHooks
	logger       *slog.Logger
}

// NewRoom is exported for infrastructure layers and tests that need a
// detached room. It publishes no events and is never evicted.
func NewRoom(rec domain.RoomWithQuiz, opts Options) *Room {
	return newRoom(rec, opts.withDefaults(), roomHooks{})
}

func newRoom(rec domain.RoomWithQuiz, opts Options, hooks roomHooks) *Room {
	questions := make([]domain.QuestionData, 0, len(rec.Questions))
	correct := make([]int, 0, len(rec.Questions))
	for _, q := range rec.Questions {
		questions = append(questions, q.Data())
		correct = append(correct, q.CorrectIndex)
	}

	status := rec.Status
	if status == "" {
		status = domain.StatusLobby
	}

	return &Room{
		id:        rec.ID,
		code:      rec.Code,
		hostID:    rec.HostID,
		quizID:    rec.QuizID,
		status:    status,
		questions: questions,
		correct:   correct,
		current:   -1,
		players:   make(map[string]*player),
		scores:    make(map[string]int),
		answers:   make(map[string]map[string]domain.Answer),

		sched:        opts.Scheduler,
		now:          opts.Now,
		timings:      opts.Timings,
		clampElapsed: opts.ClampElapsed,
		hooks:        hooks,
		logger:       opts.Logger.With("room_id", rec.ID, "room_code", rec.Code),
	}
}

func (r *Room) ID() string   { return r.id }
func (r *Room) Code() string { return r.code }

// Snapshot returns the current ROOM_STATE payload.
func (r *Room) Snapshot() domain.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// CurrentQuestionIndex is -1 before the first question and len(questions)
// once the game has run past the last one.
func (r *Room) CurrentQuestionIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Score returns the cumulative points of userID.
func (r *Room) Score(userID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scores[userID]
	return s, ok
}

func (r *Room) join(userID, username string, conn Conn) (domain.RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == domain.StatusFinished {
		return domain.RoomState{}, domain.ErrGameAlreadyEnded
	}

	if p, ok := r.players[userID]; ok {
		// The previous handle is dropped here and never written to again.
		p.conn = conn
		p.connected = true
		r.logger.Info("player reconnected", "user_id", userID)
	} else {
		r.players[userID] = &player{
			conn:      conn,
			userID:    userID,
			username:  username,
			connected: true,
		}
		r.order = append(r.order, userID)
		r.scores[userID] = 0
		r.logger.Info("player joined", "user_id", userID, "players", len(r.order))
	}

	snap := r.snapshotLocked()
	data, err := domain.Encode(domain.EventRoomState, snap)
	if err != nil {
		return domain.RoomState{}, domain.Internal(err)
	}
	conn.Send(data)
	r.sendLocked(data, userID)
	return snap, nil
}

func (r *Room) leave(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.players[userID]; !ok {
		return false
	}
	delete(r.players, userID)
	delete(r.scores, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Info("player left", "user_id", userID, "players", len(r.order))

	r.broadcastLocked(domain.EventRoomState, r.snapshotLocked())
	return true
}

// disconnect marks userID as disconnected only if conn is still its
// registered handle. A late close of a socket that has already been replaced
// by a reconnect is ignored.
func (r *Room) disconnect(userID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[userID]
	if !ok {
		return false
	}
	if p.conn != conn {
		r.logger.Debug("stale connection closed, ignoring", "user_id", userID)
		return false
	}
	p.connected = false
	r.logger.Info("player disconnected", "user_id", userID)

	r.broadcastLocked(domain.EventRoomState, r.snapshotLocked())
	return true
}

func (r *Room) start(callerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if callerID != r.hostID {
		return domain.ErrUnauthorized
	}
	if r.status != domain.StatusLobby {
		return domain.ErrInvalidState
	}
	if len(r.questions) == 0 {
		return domain.ErrEmptyQuiz
	}

	r.status = domain.StatusActive
	r.logger.Info("game started", "questions", len(r.questions), "players", len(r.order))
	if r.hooks.started != nil {
		r.hooks.started(domain.EventGameStarted{RoomID: r.id})
	}

	r.advanceLocked()
	return nil
}

func (r *Room) submit(userID, questionID string, answerIndex int, elapsedMs int64) (domain.Answer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != domain.StatusActive {
		return domain.Answer{}, domain.ErrInvalidState
	}
	if _, ok := r.players[userID]; !ok {
		return domain.Answer{}, domain.ErrNotJoined
	}
	if r.current < 0 || r.current >= len(r.questions) || r.questionClosed {
		return domain.Answer{}, domain.ErrStaleQuestion
	}

	q := r.questions[r.current]
	if questionID != q.ID {
		return domain.Answer{}, domain.ErrStaleQuestion
	}

	answers := r.answers[q.ID]
	if _, dup := answers[userID]; dup {
		return domain.Answer{}, domain.ErrDuplicateAnswer
	}

	if r.clampElapsed {
		elapsedMs = scoring.Clamp(elapsedMs, q.TimeLimitSecs)
	}
	correct := answerIndex == r.correct[r.current]
	a := domain.Answer{
		AnswerIndex:  answerIndex,
		TimeMs:       elapsedMs,
		Correct:      correct,
		PointsEarned: scoring.Points(correct, elapsedMs, q.TimeLimitSecs),
	}
	answers[userID] = a
	r.scores[userID] += a.PointsEarned
	if r.hooks.answered != nil {
		r.hooks.answered(correct)
	}

	if len(answers) >= r.connectedLocked() {
		r.logger.Debug("all connected players answered, closing early", "question_id", q.ID)
		r.endQuestionLocked()
	}
	return a, nil
}

func (r *Room) advanceLocked() {
	r.current++
	r.questionClosed = false

	if r.current >= len(r.questions) {
		r.endGameLocked()
		return
	}

	idx := r.current
	q := r.questions[idx]
	r.answers[q.ID] = make(map[string]domain.Answer)

	r.broadcastLocked(domain.EventQuestionStart, domain.QuestionStartPayload{
		Question:      q,
		QuestionIndex: idx,
		Total:         len(r.questions),
		TimeLimitSecs: q.TimeLimitSecs,
		StartedAt:     r.now().UnixMilli(),
	})

	r.deadline = r.sched.AfterFunc(time.Duration(q.TimeLimitSecs)*time.Second, func() {
		r.onDeadline(idx)
	})
}

func (r *Room) onDeadline(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != domain.StatusActive || r.current != idx || r.questionClosed {
		return
	}
	r.logger.Debug("question timed out", "question_index", idx)
	r.endQuestionLocked()
}

// endQuestionLocked closes the current question. The closed flag makes it
// idempotent between the deadline and an early close.
func (r *Room) endQuestionLocked() {
	if r.questionClosed {
		return
	}
	r.questionClosed = true
	if r.deadline != nil {
		r.deadline.Stop()
		r.deadline = nil
	}

	idx := r.current
	q := r.questions[idx]
	answers := r.answers[q.ID]

	results := make([]domain.PlayerResult, 0, len(r.order))
	for _, uid := range r.order {
		p := r.players[uid]
		res := domain.PlayerResult{UserID: uid, Username: p.username}
		if a, ok := answers[uid]; ok {
			ai := a.AnswerIndex
			res.AnswerIndex = &ai
			res.Correct = a.Correct
			res.PointsEarned = a.PointsEarned
			res.TimeMs = a.TimeMs
		}
		results = append(results, res)
	}

	r.broadcastLocked(domain.EventQuestionEnd, domain.QuestionEndPayload{
		CorrectIndex: r.correct[idx],
		Results:      results,
	})

	r.sched.AfterFunc(r.timings.RevealDelay, func() {
		r.onReveal(idx)
	})
}

func (r *Room) onReveal(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != domain.StatusActive || r.current != idx {
		return
	}
	r.broadcastLocked(domain.EventLeaderboard, domain.LeaderboardPayload{
		Scores: r.leaderboardLocked(),
	})

	r.sched.AfterFunc(r.timings.NextQuestionDelay, func() {
		r.onNext(idx)
	})
}

func (r *Room) onNext(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != domain.StatusActive || r.current != idx {
		return
	}
	r.advanceLocked()
}

func (r *Room) endGameLocked() {
	r.status = domain.StatusFinished

	final := r.leaderboardLocked()
	var winner *domain.LeaderboardEntry
	if len(final) > 0 {
		w := final[0]
		winner = &w
	}

	r.broadcastLocked(domain.EventGameOver, domain.GameOverPayload{
		FinalScores: final,
		Winner:      winner,
	})
	r.logger.Info("game finished", "players", len(final))

	if r.hooks.finished != nil {
		r.hooks.finished(domain.EventGameFinished{
			RoomID:      r.id,
			RoomCode:    r.code,
			QuizID:      r.quizID,
			FinalScores: final,
			Winner:      winner,
			Results:     r.resultsLocked(),
		})
	}

	if r.hooks.evict != nil {
		id, code := r.id, r.code
		r.sched.AfterFunc(r.timings.EvictionDelay, func() {
			r.hooks.evict(id, code)
		})
	}
}

// resultsLocked collects, per scored user, the points and every recorded
// answer in question order.
func (r *Room) resultsLocked() []domain.ScoreRecord {
	records := make([]domain.ScoreRecord, 0, len(r.scores))
	for _, uid := range r.order {
		points, ok := r.scores[uid]
		if !ok {
			continue
		}
		answers := make([]domain.AnswerRecord, 0, len(r.questions))
		for _, q := range r.questions {
			if a, ok := r.answers[q.ID][uid]; ok {
				answers = append(answers, domain.AnswerRecord{
					QuestionID:  q.ID,
					AnswerIndex: a.AnswerIndex,
					Correct:     a.Correct,
					TimeMs:      a.TimeMs,
				})
			}
		}
		records = append(records, domain.ScoreRecord{
			RoomID:  r.id,
			UserID:  uid,
			Points:  points,
			Answers: answers,
		})
	}
	return records
}

// leaderboardLocked sorts by points descending; equal scores keep join order.
func (r *Room) leaderboardLocked() []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(r.order))
	for _, uid := range r.order {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:   uid,
			Username: r.players[uid].username,
			Points:   r.scores[uid],
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Points > entries[j].Points
	})
	return entries
}

func (r *Room) snapshotLocked() domain.RoomState {
	players := make([]domain.Player, 0, len(r.order))
	for _, uid := range r.order {
		p := r.players[uid]
		players = append(players, domain.Player{
			UserID:    p.userID,
			Username:  p.username,
			Connected: p.connected,
		})
	}
	return domain.RoomState{
		RoomID:   r.id,
		RoomCode: r.code,
		Players:  players,
		Status:   r.status,
		HostID:   r.hostID,
	}
}

func (r *Room) connectedLocked() int {
	n := 0
	for _, p := range r.players {
		if p.connected {
			n++
		}
	}
	return n
}

// broadcastLocked encodes the message once and queues it on every connected
// player's handle.
func (r *Room) broadcastLocked(t domain.EventType, payload any) {
	data, err := domain.Encode(t, payload)
	if err != nil {
		r.logger.Error("encode broadcast failed", "type", t, "error", err)
		return
	}
	r.sendLocked(data, "")
}

func (r *Room) sendLocked(data []byte, excludeUserID string) {
	for _, uid := range r.order {
		p := r.players[uid]
		if uid == excludeUserID || !p.connected {
			continue
		}
		p.conn.Send(data)
	}
}
