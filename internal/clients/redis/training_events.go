package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/askstack/askstack-backend/internal/platform/logger"
)

// TrainingEvent is published on every training lifecycle transition so the UI
// can show liveness without polling the status endpoint.
type TrainingEvent struct {
	AgentID  uuid.UUID `json:"agent_id"`
	UserID   uuid.UUID `json:"user_id"`
	Status   string    `json:"status"`
	Progress int       `json:"progress"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

type TrainingEventBus interface {
	Publish(ctx context.Context, event TrainingEvent) error
	Close() error
}

type trainingEventBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewTrainingEventBus(log *logger.Logger, addr string, channel string) (TrainingEventBus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if channel == "" {
		channel = "training"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &trainingEventBus{
		log:     log.With("service", "RedisTrainingEventBus"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *trainingEventBus) Publish(ctx context.Context, event TrainingEvent) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *trainingEventBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
