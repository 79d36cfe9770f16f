package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	LogLevel string

	StoreBackend string
	StoragePath  string
	S3Bucket     string
	S3Region     string

	GmailCredentialsFile string
	GmailTokenFile       string
	GmailQuery           string
	RetrieveBatchSize    int

	OllamaURL          string
	OllamaGenModel     string
	ModelRateLimitRPS  float64
	ModelRateBurst     int
	PromptTemplateFile string

	ClassifyBatchSize   int
	ClassifyMaxAttempts int
	ClassifyWorkers     int

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryJitter         float64
	BreakerEnabled      bool

	NATSEnabled bool
	NATSURL     string
	NATSSubject string

	RetrieverMetricsPort  string
	ClassifierMetricsPort string

	PollInterval time.Duration
	CycleTimeout time.Duration
	RunOnce      bool
}

func Load() Config {
	return Config{
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		StoreBackend: mustEnv("STORE_BACKEND", "localfs"),
		StoragePath:  mustEnv("STORAGE_PATH", "./data/store"),
		S3Bucket:     mustEnv("S3_BUCKET", ""),
		S3Region:     mustEnv("S3_REGION", ""),

		GmailCredentialsFile: mustEnv("GMAIL_CREDENTIALS_FILE", "credentials.json"),
		GmailTokenFile:       mustEnv("GMAIL_TOKEN_FILE", "token.json"),
		GmailQuery:           mustEnv("GMAIL_QUERY", "category:primary is:unread"),
		RetrieveBatchSize:    mustEnvInt("RETRIEVE_BATCH_SIZE", 25),

		OllamaURL:          mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:     mustEnv("OLLAMA_GEN_MODEL", "llama3.1:8b"),
		ModelRateLimitRPS:  mustEnvFloat("MODEL_RATE_LIMIT_RPS", 1),
		ModelRateBurst:     mustEnvInt("MODEL_RATE_BURST", 2),
		PromptTemplateFile: mustEnv("PROMPT_TEMPLATE_FILE", ""),

		ClassifyBatchSize:   mustEnvInt("CLASSIFY_BATCH_SIZE", 25),
		ClassifyMaxAttempts: mustEnvInt("CLASSIFY_MAX_ATTEMPTS", 3),
		ClassifyWorkers:     mustEnvInt("CLASSIFY_WORKERS", 4),

		RetryMaxAttempts:    mustEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoff: mustEnvDuration("RETRY_INITIAL_BACKOFF", 100*time.Millisecond),
		RetryMaxBackoff:     mustEnvDuration("RETRY_MAX_BACKOFF", 2*time.Second),
		RetryJitter:         mustEnvFloat("RETRY_JITTER", 0.2),
		BreakerEnabled:      mustEnvBool("BREAKER_ENABLED", true),

		NATSEnabled: mustEnvBool("NATS_ENABLED", false),
		NATSURL:     mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubject: mustEnv("NATS_SUBJECT", "mailtriage.results"),

		RetrieverMetricsPort:  mustEnv("RETRIEVER_METRICS_PORT", "9091"),
		ClassifierMetricsPort: mustEnv("CLASSIFIER_METRICS_PORT", "9092"),

		PollInterval: mustEnvDuration("POLL_INTERVAL", 60*time.Second),
		CycleTimeout: mustEnvDuration("CYCLE_TIMEOUT", 5*time.Minute),
		RunOnce:      mustEnvBool("RUN_ONCE", false),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
