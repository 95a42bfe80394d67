package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/event"
	"trivia-room-service/internal/infra/postgres"
	pgmigrations "trivia-room-service/internal/infra/postgres/migrations"
	infraredis "trivia-room-service/internal/infra/redis"
)

func TestGamePersistsResultsEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seed(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	quizzes := infraredis.NewQuizCache(redisClient, postgres.NewQuizLoader(pool), 5*time.Minute, "")
	store := postgres.NewStore(pool, quizzes)

	sub := redisClient.Subscribe(ctx, infraredis.ResultsChannel("", "room-1"))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	bus := event.NewBus(event.WithLogger(logger))
	app.NewResultRecorder(store, infraredis.NewResultPublisher(redisClient, ""), nil, logger).Register(bus)

	service := app.NewRoomService(
		infraredis.NewRoomRegistry(redisClient, 5*time.Minute, "", "it-node", logger),
		store,
		bus,
		app.Options{
			Timings: app.Timings{
				RevealDelay:       10 * time.Millisecond,
				NextQuestionDelay: 10 * time.Millisecond,
				EvictionDelay:     time.Minute,
			},
			Logger: logger,
		},
	)

	if _, err := service.Join(ctx, "NOPE00", "u1", "Alice", &gameConn{}); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room not found, got %v", err)
	}

	alice, bob := newGameConn(), newGameConn()
	if _, err := service.Join(ctx, "ABC123", "u1", "Alice", alice); err != nil {
		t.Fatalf("join: %v", err)
	}
	state, err := service.Join(ctx, "ABC123", "u2", "Bob", bob)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(state.Players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(state.Players))
	}

	if err := service.Start(ctx, "room-1", "host"); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, qid := range []string{"q1", "q2"} {
		alice.waitFor(t, domain.EventQuestionStart)
		if _, err := service.Submit(ctx, "room-1", "u1", qid, 1, 3000); err != nil {
			t.Fatalf("submit %s: %v", qid, err)
		}
		if _, err := service.Submit(ctx, "room-1", "u2", qid, 0, 6000); err != nil {
			t.Fatalf("submit %s: %v", qid, err)
		}
	}
	alice.waitFor(t, domain.EventGameOver)

	// Results are announced after status and scores are written.
	select {
	case msg := <-sub.Channel():
		var published infraredis.ResultMessage
		if err := json.Unmarshal([]byte(msg.Payload), &published); err != nil {
			t.Fatalf("decode published results: %v", err)
		}
		if published.Winner == nil || published.Winner.UserID != "u1" {
			t.Fatalf("expected u1 to win, got %+v", published.Winner)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no results published")
	}

	bus.Stop()

	var status string
	if err := pool.QueryRow(ctx, `SELECT status FROM rooms WHERE id = 'room-1'`).Scan(&status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != string(domain.StatusFinished) {
		t.Fatalf("expected FINISHED, got %s", status)
	}

	// A late ACTIVE write must not move the room backwards.
	if err := store.SetRoomStatus(ctx, "room-1", domain.StatusActive); err != nil {
		t.Fatalf("set status: %v", err)
	}
	_ = pool.QueryRow(ctx, `SELECT status FROM rooms WHERE id = 'room-1'`).Scan(&status)
	if status != string(domain.StatusFinished) {
		t.Fatalf("status moved backwards to %s", status)
	}
	if err := store.SetRoomStatus(ctx, "room-missing", domain.StatusActive); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room not found, got %v", err)
	}

	rows, err := pool.Query(ctx, `SELECT user_id, points, answers FROM scores WHERE room_id = 'room-1' ORDER BY user_id`)
	if err != nil {
		t.Fatalf("read scores: %v", err)
	}
	defer rows.Close()

	type row struct {
		userID  string
		points  int
		answers []domain.AnswerRecord
	}
	var got []row
	for rows.Next() {
		var (
			r   row
			raw []byte
		)
		if err := rows.Scan(&r.userID, &r.points, &raw); err != nil {
			t.Fatalf("scan score: %v", err)
		}
		if err := json.Unmarshal(raw, &r.answers); err != nil {
			t.Fatalf("decode answers: %v", err)
		}
		got = append(got, r)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 score rows, got %d", len(got))
	}
	if got[0].userID != "u1" || got[0].points != 1875 || len(got[0].answers) != 2 {
		t.Fatalf("unexpected score for u1: %+v", got[0])
	}
	if got[1].userID != "u2" || got[1].points != 0 || got[1].answers[0].Correct {
		t.Fatalf("unexpected score for u2: %+v", got[1])
	}

	if _, err := service.Join(ctx, "ABC123", "u3", "Carol", newGameConn()); !errors.Is(err, domain.ErrGameAlreadyEnded) {
		t.Fatalf("expected game already ended, got %v", err)
	}
}

// gameConn records frame types and lets the test wait for one.
type gameConn struct {
	mu     sync.Mutex
	seen   map[domain.EventType]int
	notify chan struct{}
}

func newGameConn() *gameConn {
	return &gameConn{seen: make(map[domain.EventType]int), notify: make(chan struct{}, 1)}
}

func (c *gameConn) Send(data []byte) {
	var msg struct {
		Type domain.EventType `json:"type"`
	}
	_ = json.Unmarshal(data, &msg)
	c.mu.Lock()
	if c.seen == nil {
		c.seen = make(map[domain.EventType]int)
	}
	c.seen[msg.Type]++
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// waitFor consumes one occurrence of typ, blocking until it arrives.
func (c *gameConn) waitFor(t *testing.T, typ domain.EventType) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		c.mu.Lock()
		if c.seen[typ] > 0 {
			c.seen[typ]--
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		select {
		case <-c.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

// seed migrates the schema and inserts a two-question quiz with room ABC123.
func seed(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stmts := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO quizzes (id, title) VALUES (?, ?)`, []any{"quiz-1", "Numbers"}},
		{`INSERT INTO questions (id, quiz_id, position, text, options, correct_index, time_limit_secs)
			VALUES (?, ?, ?, ?, CAST(? AS jsonb), ?, ?)`, []any{"q2", "quiz-1", 2, "3 + 3?", `["5", "6"]`, 1, 20}},
		{`INSERT INTO questions (id, quiz_id, position, text, image_url, options, correct_index, time_limit_secs)
			VALUES (?, ?, ?, ?, ?, CAST(? AS jsonb), ?, ?)`, []any{"q1", "quiz-1", 1, "2 + 2?", "https://example.com/q1.png", `["3", "4"]`, 1, 30}},
		{`INSERT INTO rooms (id, code, host_id, quiz_id) VALUES (?, ?, ?, ?)`, []any{"room-1", "ABC123", "host", "quiz-1"}},
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s.query, s.args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
