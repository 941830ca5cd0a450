package app

import (
	"github.com/askstack/askstack-backend/internal/platform/envutil"
	"github.com/askstack/askstack-backend/internal/platform/logger"
)

type Config struct {
	Port        string
	Environment string
	Version     string

	RedisAddr            string
	RedisTrainingChannel string

	PineconeAPIKey   string
	PineconeIndex    string
	PineconeHost     string
	PineconeNSPrefix string

	OpenAIAPIKey     string
	OpenAIEmbedModel string
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:        envutil.String("PORT", "8080"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),

		RedisAddr:            envutil.String("REDIS_ADDR", ""),
		RedisTrainingChannel: envutil.String("REDIS_TRAINING_CHANNEL", "training"),

		PineconeAPIKey:   envutil.String("PINECONE_API_KEY", ""),
		PineconeIndex:    envutil.String("PINECONE_INDEX_NAME", ""),
		PineconeHost:     envutil.String("PINECONE_INDEX_HOST", ""),
		PineconeNSPrefix: envutil.String("PINECONE_NS_PREFIX", "as"),

		OpenAIAPIKey:     envutil.String("OPENAI_API_KEY", ""),
		OpenAIEmbedModel: envutil.String("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
	}
	if log != nil {
		log.Info("Config loaded", "port", cfg.Port, "env", cfg.Environment)
	}
	return cfg
}
