package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/config"
	"trivia-room-service/internal/event"
	"trivia-room-service/internal/infra/memory"
	"trivia-room-service/internal/infra/postgres"
	infraredis "trivia-room-service/internal/infra/redis"
	"trivia-room-service/internal/metrics"
	"trivia-room-service/internal/telemetry"
	transport "trivia-room-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := telemetry.NewLogger(os.Stderr, cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := telemetry.MonitorRedis(redisClient, logger); err != nil {
			logger.Warn("redis instrumentation disabled", "error", err)
		}
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

	var store app.RoomStore
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		var quizzes app.QuizLoader = postgres.NewQuizLoader(pool)
		if redisClient != nil {
			quizzes = infraredis.NewQuizCache(redisClient, quizzes, quizTTL, cfg.Redis.Prefix)
		} else {
			quizzes = memory.NewQuizCache(quizzes, quizTTL)
		}
		store = postgres.NewStore(pool, quizzes)
	} else {
		store = memory.NewDemoRoomStore()
		logger.Info("no postgres configured, serving the demo room",
			"room_code", memory.DemoRoomCode,
			"host_id", memory.DemoHostID,
		)
	}

	var (
		rooms      app.RoomRegistry = memory.NewRoomRegistry()
		redisRooms *infraredis.RoomRegistry
		announcer  app.ResultAnnouncer
	)
	if redisClient != nil {
		node, _ := os.Hostname()
		redisRooms = infraredis.NewRoomRegistry(redisClient, redisTTL, cfg.Redis.Prefix, node, logger)
		rooms = redisRooms
		announcer = infraredis.NewResultPublisher(redisClient, cfg.Redis.Prefix)
	}

	bus := event.NewBus(event.WithLogger(logger))
	defer bus.Stop()
	app.NewResultRecorder(store, announcer, m, logger).Register(bus)

	def := app.DefaultTimings()
	service := app.NewRoomService(rooms, store, bus, app.Options{
		Timings: app.Timings{
			RevealDelay:       config.TTLDuration(cfg.Game.RevealDelay, def.RevealDelay),
			NextQuestionDelay: config.TTLDuration(cfg.Game.NextQuestionDelay, def.NextQuestionDelay),
			EvictionDelay:     config.TTLDuration(cfg.Game.EvictionDelay, def.EvictionDelay),
		},
		ClampElapsed: cfg.Game.ClampElapsed,
		Logger:       logger,
		Metrics:      m,
	})
	wsHandler := transport.NewWSHandler(service, m, logger)

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(service, wsHandler, transport.RouterConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Gatherer:       reg,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting trivia service", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if redisRooms != nil {
		g.Go(func() error {
			return redisRooms.KeepAlive(gctx, redisTTL/3)
		})
	}
	return g.Wait()
}
