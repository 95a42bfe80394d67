package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
)

// RouterConfig configures the HTTP surface.
type RouterConfig struct {
	// AllowedOrigins for the /api routes; empty allows any origin.
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer
	Logger         *slog.Logger
}

// NewRouter mounts the websocket endpoint, health and metrics probes and the
// read-only room API.
func NewRouter(service *app.RoomService, ws *WSHandler, cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	api := &roomAPI{service: service, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/ws", ws.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/rooms/{code}", api.getRoom)
	})

	return r
}

type roomAPI struct {
	service *app.RoomService
	logger  *slog.Logger
}

func (a *roomAPI) getRoom(w http.ResponseWriter, r *http.Request) {
	state, err := a.service.Snapshot(chi.URLParam(r, "code"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		e := domain.Convert(err)
		a.writeJSON(w, status, domain.ErrorPayload{Code: e.Code, Message: e.Message})
		return
	}
	a.writeJSON(w, http.StatusOK, state)
}

func (a *roomAPI) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("write response failed", "error", err)
	}
}
