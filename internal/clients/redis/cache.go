package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/askstack/askstack-backend/internal/platform/logger"
)

// CacheInvalidator removes cached agent metadata and cached AI responses
// scoped to one (user, agent) pair. Called after every state-changing training
// event, because embedded content changing makes any cached answer stale.
type CacheInvalidator interface {
	InvalidateAgentCache(ctx context.Context, userID, agentID uuid.UUID) error
	InvalidateAgentMetadata(ctx context.Context, agentID, userID uuid.UUID) error
	Close() error
}

type Config struct {
	Addr string
	// Key prefixes shared with the chat-answer path.
	MetadataPrefix string
	ResponsePrefix string
}

type cacheInvalidator struct {
	log *logger.Logger
	rdb *goredis.Client
	cfg Config
}

func NewCacheInvalidator(log *logger.Logger, cfg Config) (CacheInvalidator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if cfg.MetadataPrefix == "" {
		cfg.MetadataPrefix = "agent"
	}
	if cfg.ResponsePrefix == "" {
		cfg.ResponsePrefix = "airesp"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &cacheInvalidator{
		log: log.With("service", "RedisCacheInvalidator"),
		rdb: rdb,
		cfg: cfg,
	}, nil
}

// InvalidateAgentCache deletes every cached AI response for the pair. Response
// keys carry a per-question suffix, so this walks the keyspace with SCAN
// rather than guessing key names.
func (c *cacheInvalidator) InvalidateAgentCache(ctx context.Context, userID, agentID uuid.UUID) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pattern := fmt.Sprintf("%s:%s:%s:*", c.cfg.ResponsePrefix, userID, agentID)

	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return fmt.Errorf("redis scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		c.log.Debug("Invalidated cached responses", "agent_id", agentID, "keys", deleted)
	}
	return nil
}

func (c *cacheInvalidator) InvalidateAgentMetadata(ctx context.Context, agentID, userID uuid.UUID) error {
	if ctx == nil {
		ctx = context.Background()
	}
	key := fmt.Sprintf("%s:%s:%s:meta", c.cfg.MetadataPrefix, userID, agentID)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (c *cacheInvalidator) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
