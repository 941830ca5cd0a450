package temporalx

import (
	"time"

	"github.com/askstack/askstack-backend/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string
}

func LoadConfig() Config {
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "askstack"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "askstack-training"),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),
	}
}

// QueuePolicy carries the per-run execution knobs. It is resolved once at
// dispatch time and travels inside the workflow input so replays see the same
// values the run started with.
type QueuePolicy struct {
	MaxAttempts    int
	BackoffSeconds int
	TimeoutSeconds int
	StartDelay     time.Duration
}

func LoadQueuePolicy() QueuePolicy {
	p := QueuePolicy{
		MaxAttempts:    envutil.Int("TRAINING_MAX_ATTEMPTS", 3),
		BackoffSeconds: envutil.Int("TRAINING_BACKOFF_SECONDS", 30),
		TimeoutSeconds: envutil.Int("TRAINING_JOB_TIMEOUT_SECONDS", 300),
		StartDelay:     envutil.Seconds("TRAINING_START_DELAY_SECONDS", 2),
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BackoffSeconds < 1 {
		p.BackoffSeconds = 1
	}
	if p.TimeoutSeconds < 1 {
		p.TimeoutSeconds = 300
	}
	return p
}
