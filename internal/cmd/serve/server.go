package serve

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/yanthraa/chat-memory/internal/assembler"
	"github.com/yanthraa/chat-memory/internal/config"
	"github.com/yanthraa/chat-memory/internal/plugin/route/chats"
	"github.com/yanthraa/chat-memory/internal/plugin/route/directory"
	"github.com/yanthraa/chat-memory/internal/plugin/route/query"
	"github.com/yanthraa/chat-memory/internal/plugin/route/sharing"
	routesystem "github.com/yanthraa/chat-memory/internal/plugin/route/system"
	storemetrics "github.com/yanthraa/chat-memory/internal/plugin/store/metrics"
	"github.com/yanthraa/chat-memory/internal/profile"
	registrycache "github.com/yanthraa/chat-memory/internal/registry/cache"
	registryembed "github.com/yanthraa/chat-memory/internal/registry/embed"
	registryextract "github.com/yanthraa/chat-memory/internal/registry/extract"
	registrymigrate "github.com/yanthraa/chat-memory/internal/registry/migrate"
	registryroute "github.com/yanthraa/chat-memory/internal/registry/route"
	registrystore "github.com/yanthraa/chat-memory/internal/registry/store"
	registryvector "github.com/yanthraa/chat-memory/internal/registry/vector"
	"github.com/yanthraa/chat-memory/internal/security"
	"github.com/yanthraa/chat-memory/internal/service"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Store           registrystore.MemoryStore
	Router          *gin.Engine
	Running         *RunningServer
	closeManagement func(context.Context) error
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.closeManagement != nil {
		_ = s.closeManagement(ctx)
	}
	err := s.Running.Close(ctx)
	if closeErr := s.Store.Close(); err == nil {
		err = closeErr
	}
	return err
}

// StartServer initializes all subsystems and starts the HTTP server.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting chat memory service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
		"vector", cfg.VectorType,
		"embedding", cfg.EmbedType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	// Run migrations
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// Initialize store
	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	// Initialize profile cache (optional).
	var profileCache registrycache.ProfileCache
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
	} else if profileCache, err = cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
		profileCache = nil
	}

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	// Mount main route plugins on the main router.
	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	// Initialize embedder and vector store (optional, for semantic retrieval)
	var embedder registryembed.Embedder
	var vectorStore registryvector.VectorStore
	if cfg.EmbedType != "" && cfg.EmbedType != "none" {
		embedLoader, err := registryembed.Select(cfg.EmbedType)
		if err != nil {
			log.Warn("Embedder not available", "err", err)
		} else {
			embedder, err = embedLoader(ctx)
			if err != nil {
				log.Warn("Failed to initialize embedder", "err", err)
			}
		}
	}
	if cfg.VectorType != "" && cfg.VectorType != "none" {
		if embedder == nil {
			return nil, fmt.Errorf("vector store %q requires an embedding provider: set --embedding-kind to a value other than 'none'", cfg.VectorType)
		}
		vectorLoader, err := registryvector.Select(cfg.VectorType)
		if err != nil {
			log.Warn("Vector store not available", "err", err)
		} else {
			vectorStore, err = vectorLoader(ctx)
			if err != nil {
				log.Warn("Failed to initialize vector store", "err", err)
			}
		}
	}

	// Initialize the profile extractor (optional).
	var extractor registryextract.ProfileExtractor
	if cfg.ExtractType != "" && cfg.ExtractType != "none" {
		extractLoader, err := registryextract.Select(cfg.ExtractType)
		if err != nil {
			log.Warn("Profile extractor not available", "err", err)
		} else {
			extractor, err = extractLoader(ctx)
			if err != nil {
				log.Warn("Failed to initialize profile extractor", "err", err)
			}
		}
	}

	profiles := profile.NewService(store, extractor, profileCache, cfg.ProfileCacheTTL)
	asm := assembler.New(store, vectorStore, embedder, profiles, assembler.Options{
		TopK:      cfg.RetrievalTopK,
		Threshold: cfg.RetrievalThreshold,
		Window:    cfg.RecentWindow,
		Budget:    cfg.ContextBudget,
	})

	// Mount API routes
	chats.MountRoutes(router, store, profiles, embedder, vectorStore)
	sharing.MountRoutes(router, store, vectorStore)
	query.MountRoutes(router, asm)
	directory.MountRoutes(router, store)

	// Start background services
	vectorizer := service.NewVectorizer(store, embedder, vectorStore, cfg.VectorizerBatchSize, cfg.VectorizerInterval)
	go vectorizer.Start(ctx)

	// Mount management route plugins. If a dedicated management port is configured,
	// run them on a bare gin engine served by the management server. Otherwise,
	// mount them on the main router so single-port behaviour is unchanged.
	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(mgmtRouter); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		_, closeManagement, err = startManagementServer(mgmtCfg, mgmtRouter)
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
	} else {
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(router); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
	}

	// Start HTTP server
	running, err := StartHTTPServer(cfg.Listener, router)
	if err != nil {
		return nil, err
	}

	log.Info("Server listening",
		"port", running.Port,
		"tls", cfg.Listener.TLSCertFile != "",
	)

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Store:           store,
		Router:          router,
		Running:         running,
		closeManagement: closeManagement,
	}, nil
}
