package config

import (
	"context"
	"fmt"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the chat memory service.
type Config struct {
	// Database
	DBURL string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// Datastore backend type
	DatastoreType string // "postgres"

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Cache backend type for assembled profile text
	CacheType string // "redis", "ristretto", or "none"

	// Redis
	RedisURL string

	// Profile text cache TTL.
	ProfileCacheTTL time.Duration

	// Vector store type
	VectorType string // "pgvector", "qdrant", or "" (disabled)

	// Run vector migrations on startup.
	VectorMigrateAtStart bool

	// Number of records to embed per background vectorizer tick.
	VectorizerBatchSize int

	// Interval between vectorizer ticks.
	VectorizerInterval time.Duration

	// Qdrant
	QdrantHost           string
	QdrantPort           int
	QdrantCollectionName string
	QdrantAPIKey         string
	QdrantUseTLS         bool
	QdrantStartupTimeout time.Duration

	// Embedding type
	EmbedType string // "none", "local", or "openai"

	// Profile extraction type
	ExtractType string // "none" or "openai"

	// OpenAI
	OpenAIAPIKey       string
	OpenAIModelName    string
	OpenAIBaseURL      string
	OpenAIDimensions   int
	OpenAIExtractModel string

	// Retrieval policy
	RetrievalTopK      int
	RetrievalThreshold float64

	// Number of recent message pairs included verbatim in every context.
	RecentWindow int

	// Character budget for an assembled context. Lowest-scoring historical
	// summaries are dropped first when the budget would be exceeded.
	ContextBudget int

	// Server
	Listener                  ListenerConfig
	ManagementListener        ListenerConfig
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for management endpoints
	// (/health, /ready, /metrics). Disabled by default to suppress probe noise.
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DatastoreType:           "postgres",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		CacheType:               "none",
		ProfileCacheTTL:         10 * time.Minute,
		VectorType:              "",
		VectorMigrateAtStart:    true,
		VectorizerBatchSize:     200,
		VectorizerInterval:      30 * time.Second,
		QdrantHost:              "localhost",
		QdrantPort:              6334,
		QdrantCollectionName:    "chat-memory-records",
		QdrantStartupTimeout:    30 * time.Second,
		EmbedType:               "local",
		ExtractType:             "none",
		OpenAIModelName:         "text-embedding-3-small",
		OpenAIBaseURL:           "https://api.openai.com/v1",
		OpenAIExtractModel:      "gpt-4o-mini",
		RetrievalTopK:           5,
		RetrievalThreshold:      0.7,
		RecentWindow:            5,
		ContextBudget:           12000,
		Listener: ListenerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
		},
		MaxBodySize:  1 * 1024 * 1024,
		DrainTimeout: 30,
	}
}

// QdrantAddress returns the host:port address of the Qdrant gRPC endpoint.
// QdrantHost may already carry an explicit port.
func (c *Config) QdrantAddress() string {
	for i := len(c.QdrantHost) - 1; i >= 0; i-- {
		if c.QdrantHost[i] == ':' {
			return c.QdrantHost
		}
		if c.QdrantHost[i] == ']' {
			break
		}
	}
	return fmt.Sprintf("%s:%d", c.QdrantHost, c.QdrantPort)
}
