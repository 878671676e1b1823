package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	"github.com/yanthraa/chat-memory/internal/config"
	registrycache "github.com/yanthraa/chat-memory/internal/registry/cache"
	registryembed "github.com/yanthraa/chat-memory/internal/registry/embed"
	registryextract "github.com/yanthraa/chat-memory/internal/registry/extract"
	registrystore "github.com/yanthraa/chat-memory/internal/registry/store"
	registryvector "github.com/yanthraa/chat-memory/internal/registry/vector"

	// Import all plugins to trigger init() registration
	_ "github.com/yanthraa/chat-memory/internal/plugin/cache/noop"
	_ "github.com/yanthraa/chat-memory/internal/plugin/cache/redis"
	_ "github.com/yanthraa/chat-memory/internal/plugin/cache/ristretto"
	_ "github.com/yanthraa/chat-memory/internal/plugin/embed/disabled"
	_ "github.com/yanthraa/chat-memory/internal/plugin/embed/local"
	_ "github.com/yanthraa/chat-memory/internal/plugin/embed/openai"
	_ "github.com/yanthraa/chat-memory/internal/plugin/extract/disabled"
	_ "github.com/yanthraa/chat-memory/internal/plugin/extract/openai"
	_ "github.com/yanthraa/chat-memory/internal/plugin/route/system"
	_ "github.com/yanthraa/chat-memory/internal/plugin/store/postgres"
	_ "github.com/yanthraa/chat-memory/internal/plugin/vector/pgvector"
	_ "github.com/yanthraa/chat-memory/internal/plugin/vector/qdrant"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the chat memory HTTP server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.ManagementListener.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
			cfg.ManagementListenerEnabled = cmd.IsSet("management-port")
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_MEMORY_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_MEMORY_TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_MEMORY_TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_MEMORY_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_MEMORY_MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Dedicated port for health and metrics (0 = OS-assigned random port); when unset, served on the main port",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_MEMORY_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},
		&cli.BoolFlag{
			Name:        "cors-enabled",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_MEMORY_CORS_ENABLED"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Enable CORS handling",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_MEMORY_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated list of allowed CORS origins (empty = any)",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("CHAT_MEMORY_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Graceful shutdown drain timeout in seconds",
		},

		// ── Database ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHAT_MEMORY_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Backend store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHAT_MEMORY_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Database connection URL",
			Required:    true,
		},
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHAT_MEMORY_DB_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Run datastore migrations on startup",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHAT_MEMORY_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("CHAT_MEMORY_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHAT_MEMORY_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Profile text cache backend (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHAT_MEMORY_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL",
		},
		&cli.DurationFlag{
			Name:        "profile-cache-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars("CHAT_MEMORY_PROFILE_CACHE_TTL"),
			Destination: &cfg.ProfileCacheTTL,
			Value:       cfg.ProfileCacheTTL,
			Usage:       "TTL for cached profile text",
		},

		// ── Vector Store ──────────────────────────────────────────
		&cli.StringFlag{
			Name:        "vector-kind",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("CHAT_MEMORY_VECTOR_KIND"),
			Destination: &cfg.VectorType,
			Value:       cfg.VectorType,
			Usage:       "Vector store (" + strings.Join(registryvector.Names(), "|") + ")",
		},
		&cli.BoolFlag{
			Name:        "vector-migrate-at-start",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("CHAT_MEMORY_VECTOR_MIGRATE_AT_START"),
			Destination: &cfg.VectorMigrateAtStart,
			Value:       cfg.VectorMigrateAtStart,
			Usage:       "Run vector store migrations on startup",
		},
		&cli.IntFlag{
			Name:        "vectorizer-batch-size",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("CHAT_MEMORY_VECTORIZER_BATCH_SIZE"),
			Destination: &cfg.VectorizerBatchSize,
			Value:       cfg.VectorizerBatchSize,
			Usage:       "Number of records to embed per background vectorizer tick",
		},
		&cli.DurationFlag{
			Name:        "vectorizer-interval",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("CHAT_MEMORY_VECTORIZER_INTERVAL"),
			Destination: &cfg.VectorizerInterval,
			Value:       cfg.VectorizerInterval,
			Usage:       "Interval between background vectorizer ticks",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-host",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("CHAT_MEMORY_VECTOR_QDRANT_HOST", "CHAT_MEMORY_QDRANT_HOST"),
			Destination: &cfg.QdrantHost,
			Value:       cfg.QdrantAddress(),
			Usage:       "Qdrant host or host:port",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-collection",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("CHAT_MEMORY_VECTOR_QDRANT_COLLECTION"),
			Destination: &cfg.QdrantCollectionName,
			Value:       cfg.QdrantCollectionName,
			Usage:       "Qdrant collection name",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-api-key",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("CHAT_MEMORY_VECTOR_QDRANT_API_KEY"),
			Destination: &cfg.QdrantAPIKey,
			Usage:       "Qdrant API key",
		},
		&cli.BoolFlag{
			Name:        "vector-qdrant-tls",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("CHAT_MEMORY_VECTOR_QDRANT_TLS"),
			Destination: &cfg.QdrantUseTLS,
			Usage:       "Use TLS for the Qdrant gRPC connection",
		},

		// ── Embedding ─────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "embedding-kind",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("CHAT_MEMORY_EMBEDDING_KIND"),
			Destination: &cfg.EmbedType,
			Value:       cfg.EmbedType,
			Usage:       "Embedding provider (" + strings.Join(registryembed.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("CHAT_MEMORY_OPENAI_API_KEY", "OPENAI_API_KEY"),
			Destination: &cfg.OpenAIAPIKey,
			Usage:       "OpenAI API key",
		},
		&cli.StringFlag{
			Name:        "openai-embedding-model",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("CHAT_MEMORY_OPENAI_EMBEDDING_MODEL"),
			Destination: &cfg.OpenAIModelName,
			Value:       cfg.OpenAIModelName,
			Usage:       "OpenAI embedding model name",
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("CHAT_MEMORY_OPENAI_BASE_URL"),
			Destination: &cfg.OpenAIBaseURL,
			Value:       cfg.OpenAIBaseURL,
			Usage:       "OpenAI API base URL",
		},
		&cli.IntFlag{
			Name:        "openai-dimensions",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("CHAT_MEMORY_OPENAI_DIMENSIONS"),
			Destination: &cfg.OpenAIDimensions,
			Usage:       "Embedding dimensions (0 = model default)",
		},

		// ── Profile Extraction ────────────────────────────────────
		&cli.StringFlag{
			Name:        "extraction-kind",
			Category:    "Profile Extraction:",
			Sources:     cli.EnvVars("CHAT_MEMORY_EXTRACTION_KIND"),
			Destination: &cfg.ExtractType,
			Value:       cfg.ExtractType,
			Usage:       "Profile extractor (" + strings.Join(registryextract.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "openai-extract-model",
			Category:    "Profile Extraction:",
			Sources:     cli.EnvVars("CHAT_MEMORY_OPENAI_EXTRACT_MODEL"),
			Destination: &cfg.OpenAIExtractModel,
			Value:       cfg.OpenAIExtractModel,
			Usage:       "OpenAI chat model used for profile extraction",
		},

		// ── Retrieval ─────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "retrieval-top-k",
			Category:    "Retrieval:",
			Sources:     cli.EnvVars("CHAT_MEMORY_RETRIEVAL_TOP_K"),
			Destination: &cfg.RetrievalTopK,
			Value:       cfg.RetrievalTopK,
			Usage:       "Maximum number of historical summaries per assembled context",
		},
		&cli.FloatFlag{
			Name:        "retrieval-threshold",
			Category:    "Retrieval:",
			Sources:     cli.EnvVars("CHAT_MEMORY_RETRIEVAL_THRESHOLD"),
			Destination: &cfg.RetrievalThreshold,
			Value:       cfg.RetrievalThreshold,
			Usage:       "Minimum similarity score for a historical summary to qualify",
		},
		&cli.IntFlag{
			Name:        "recent-window",
			Category:    "Retrieval:",
			Sources:     cli.EnvVars("CHAT_MEMORY_RECENT_WINDOW"),
			Destination: &cfg.RecentWindow,
			Value:       cfg.RecentWindow,
			Usage:       "Number of recent message exchanges included verbatim",
		},
		&cli.IntFlag{
			Name:        "context-budget",
			Category:    "Retrieval:",
			Sources:     cli.EnvVars("CHAT_MEMORY_CONTEXT_BUDGET"),
			Destination: &cfg.ContextBudget,
			Value:       cfg.ContextBudget,
			Usage:       "Character budget for an assembled context",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("CHAT_MEMORY_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       "service=chat-memory",
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}
