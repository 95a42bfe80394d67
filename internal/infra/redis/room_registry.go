package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/infra/memory"
)

const markerTimeout = 2 * time.Second

// RoomRegistry keeps live rooms in process and mirrors their presence to
// Redis so operators and other tools can see which rooms this node owns.
//
//	SET <prefix>:room:{roomID}:live {node}  EX ttl
//	SET <prefix>:code:{code}        {roomID} EX ttl
//
// Markers are best-effort; lookups never touch Redis.
type RoomRegistry struct {
	local  *memory.RoomRegistry
	client *redis.Client
	ttl    time.Duration
	node   string
	keys   keys
	logger *slog.Logger
}

func NewRoomRegistry(client *redis.Client, ttl time.Duration, prefix, node string, logger *slog.Logger) *RoomRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomRegistry{
		local:  memory.NewRoomRegistry(),
		client: client,
		ttl:    ttl,
		node:   node,
		keys:   newKeys(prefix),
		logger: logger,
	}
}

func (r *RoomRegistry) GetByCode(code string) (*app.Room, bool) {
	return r.local.GetByCode(code)
}

func (r *RoomRegistry) Get(roomID string) (*app.Room, bool) {
	return r.local.Get(roomID)
}

func (r *RoomRegistry) GetOrInsert(room *app.Room) (*app.Room, bool) {
	actual, inserted := r.local.GetOrInsert(room)
	if inserted {
		ctx, cancel := context.WithTimeout(context.Background(), markerTimeout)
		defer cancel()
		r.mark(ctx, room.ID(), room.Code())
	}
	return actual, inserted
}

func (r *RoomRegistry) Remove(roomID string) {
	room, ok := r.local.Get(roomID)
	if !ok {
		return
	}
	r.local.Remove(roomID)

	ctx, cancel := context.WithTimeout(context.Background(), markerTimeout)
	defer cancel()
	if err := r.client.Del(ctx, r.keys.roomLive(roomID), r.keys.roomCode(room.Code())).Err(); err != nil {
		r.logger.Warn("clear room markers failed", "room_id", roomID, "error", err)
	}
}

func (r *RoomRegistry) Len() int {
	return r.local.Len()
}

// KeepAlive refreshes the markers of every live room each interval until ctx
// is done.
func (r *RoomRegistry) KeepAlive(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, room := range r.local.All() {
				r.mark(ctx, room.ID(), room.Code())
			}
		}
	}
}

func (r *RoomRegistry) mark(ctx context.Context, roomID, code string) {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.keys.roomLive(roomID), r.node, r.ttl)
	pipe.Set(ctx, r.keys.roomCode(code), roomID, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("set room markers failed", "room_id", roomID, "error", err)
	}
}
