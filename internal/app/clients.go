package app

import (
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/askstack/askstack-backend/internal/clients/openai"
	"github.com/askstack/askstack-backend/internal/clients/pinecone"
	"github.com/askstack/askstack-backend/internal/clients/redis"
	"github.com/askstack/askstack-backend/internal/platform/logger"
	"github.com/askstack/askstack-backend/internal/temporalx"
)

type Clients struct {
	Vectors  pinecone.VectorStore
	Embedder openai.Embedder
	Cache    redis.CacheInvalidator
	Events   redis.TrainingEventBus
	Temporal temporalsdkclient.Client
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	pc, err := pinecone.New(log, pinecone.Config{APIKey: cfg.PineconeAPIKey})
	if err != nil {
		return out, fmt.Errorf("init pinecone client: %w", err)
	}
	vectors, err := pinecone.NewVectorStore(log, pc, pinecone.StoreConfig{
		IndexName: cfg.PineconeIndex,
		IndexHost: cfg.PineconeHost,
		NSPrefix:  cfg.PineconeNSPrefix,
	})
	if err != nil {
		return out, fmt.Errorf("init vector store: %w", err)
	}
	out.Vectors = traceVectorStore(vectors)

	out.Embedder, err = openai.NewClient(log, openai.Config{
		APIKey:     cfg.OpenAIAPIKey,
		EmbedModel: cfg.OpenAIEmbedModel,
	})
	if err != nil {
		return out, fmt.Errorf("init openai client: %w", err)
	}

	// Redis is optional; without it cache invalidation and training events
	// degrade to no-ops (the services treat nil as disabled).
	if cfg.RedisAddr != "" {
		out.Cache, err = redis.NewCacheInvalidator(log, redis.Config{Addr: cfg.RedisAddr})
		if err != nil {
			return out, fmt.Errorf("init redis cache invalidator: %w", err)
		}
		out.Events, err = redis.NewTrainingEventBus(log, cfg.RedisAddr, cfg.RedisTrainingChannel)
		if err != nil {
			return out, fmt.Errorf("init redis event bus: %w", err)
		}
	} else {
		log.Warn("REDIS_ADDR not set; cache invalidation and training events disabled")
	}

	out.Temporal, err = temporalx.NewClient(log)
	if err != nil {
		return out, fmt.Errorf("init temporal client: %w", err)
	}
	return out, nil
}
