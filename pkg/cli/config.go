package cli

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/thairag/thairag/pkg/adapter"
	"github.com/thairag/thairag/pkg/embedding"
	"github.com/thairag/thairag/pkg/repository"
	"github.com/thairag/thairag/pkg/tool"
	"github.com/thairag/thairag/pkg/usecase/chat"
	"github.com/thairag/thairag/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	backendQdrant    = "qdrant"
	backendFirestore = "firestore"
	backendMemory    = "memory"

	providerGemini = "gemini"
	providerOpenAI = "openai"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Gemini
	geminiProject  string
	geminiLocation string
	geminiAPIKey   string
	geminiModel    string

	// Embedding
	embeddingProvider  string
	embeddingModel     string
	embeddingDimension int64
	openaiBaseURL      string
	openaiAPIKey       string
	openaiModel        string

	// Vector store
	vectorBackend       string
	qdrantURL           string
	qdrantAPIKey        string
	collection          string
	firestoreProject    string
	firestoreDatabase   string
	firestoreCollection string

	// Embedding cache
	redisURL string
	cacheTTL time.Duration

	// Answer generation
	maxWords        int64
	maxOutputTokens int64
	temperature     float64

	closers []func() error
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("THAIRAG_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("THAIRAG_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini on Vertex AI",
			Sources:     cli.EnvVars("THAIRAG_GEMINI_PROJECT", "GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("THAIRAG_GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini Developer API key. Used instead of Vertex AI when set.",
			Sources:     cli.EnvVars("THAIRAG_GEMINI_API_KEY", "GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Generative model name",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("THAIRAG_GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
	}
}

// embeddingFlags returns flags selecting and configuring the embedding provider
func embeddingFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedding-provider",
			Usage:       "Embedding provider (gemini, openai)",
			Value:       providerGemini,
			Sources:     cli.EnvVars("THAIRAG_EMBEDDING_PROVIDER"),
			Destination: &cfg.embeddingProvider,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Gemini embedding model name",
			Value:       "gemini-embedding-001",
			Sources:     cli.EnvVars("THAIRAG_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Usage:       "Truncate Gemini embeddings to this many values. 0 keeps the model default.",
			Value:       768,
			Sources:     cli.EnvVars("THAIRAG_EMBEDDING_DIMENSION"),
			Destination: &cfg.embeddingDimension,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Usage:       "Base URL of an OpenAI compatible embeddings API",
			Sources:     cli.EnvVars("THAIRAG_OPENAI_BASE_URL"),
			Destination: &cfg.openaiBaseURL,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "API key of the OpenAI compatible embeddings API",
			Sources:     cli.EnvVars("THAIRAG_OPENAI_API_KEY", "OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Usage:       "OpenAI compatible embedding model name",
			Sources:     cli.EnvVars("THAIRAG_OPENAI_MODEL"),
			Destination: &cfg.openaiModel,
		},
	}
}

// vectorFlags returns flags selecting and configuring the vector store
func vectorFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vector-backend",
			Usage:       "Vector store backend (qdrant, firestore, memory)",
			Value:       backendQdrant,
			Sources:     cli.EnvVars("THAIRAG_VECTOR_BACKEND"),
			Destination: &cfg.vectorBackend,
		},
		&cli.StringFlag{
			Name:        "qdrant-url",
			Usage:       "Qdrant gRPC endpoint",
			Value:       "http://localhost:6334",
			Sources:     cli.EnvVars("THAIRAG_QDRANT_URL"),
			Destination: &cfg.qdrantURL,
		},
		&cli.StringFlag{
			Name:        "qdrant-api-key",
			Usage:       "Qdrant API key",
			Sources:     cli.EnvVars("THAIRAG_QDRANT_API_KEY"),
			Destination: &cfg.qdrantAPIKey,
		},
		&cli.StringFlag{
			Name:        "collection",
			Usage:       "Qdrant collection name",
			Value:       "thai_documents",
			Sources:     cli.EnvVars("THAIRAG_COLLECTION"),
			Destination: &cfg.collection,
		},
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "Google Cloud project ID of Firestore",
			Sources:     cli.EnvVars("THAIRAG_FIRESTORE_PROJECT", "GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.firestoreProject,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("THAIRAG_FIRESTORE_DATABASE"),
			Destination: &cfg.firestoreDatabase,
		},
		&cli.StringFlag{
			Name:        "firestore-collection",
			Usage:       "Firestore collection of chunks",
			Value:       "chunks",
			Sources:     cli.EnvVars("THAIRAG_FIRESTORE_COLLECTION"),
			Destination: &cfg.firestoreCollection,
		},
	}
}

// cacheFlags returns flags of the embedding cache
func cacheFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "redis-url",
			Usage:       "Redis URL of the embedding cache. The cache is disabled when empty.",
			Sources:     cli.EnvVars("THAIRAG_REDIS_URL"),
			Destination: &cfg.redisURL,
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Usage:       "Lifetime of cached embeddings",
			Value:       24 * time.Hour,
			Sources:     cli.EnvVars("THAIRAG_CACHE_TTL"),
			Destination: &cfg.cacheTTL,
		},
	}
}

// engineFlags returns flags tuning answer generation
func engineFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "max-words",
			Usage:       "Word limit stated to the model for grounded answers",
			Value:       chat.DefaultMaxWords,
			Sources:     cli.EnvVars("THAIRAG_MAX_WORDS"),
			Destination: &cfg.maxWords,
		},
		&cli.IntFlag{
			Name:        "max-output-tokens",
			Usage:       "Output token limit of grounded answers",
			Value:       chat.DefaultMaxOutputTokens,
			Sources:     cli.EnvVars("THAIRAG_MAX_OUTPUT_TOKENS"),
			Destination: &cfg.maxOutputTokens,
		},
		&cli.FloatFlag{
			Name:        "temperature",
			Usage:       "Sampling temperature of grounded answers",
			Value:       chat.DefaultTemperature,
			Sources:     cli.EnvVars("THAIRAG_TEMPERATURE"),
			Destination: &cfg.temperature,
		},
	}
}

// setupLogger installs the configured logger as default and into ctx
func (cfg *config) setupLogger(ctx context.Context) (context.Context, error) {
	format, err := logging.ParseFormat(cfg.logFormat)
	if err != nil {
		return ctx, err
	}

	logger := logging.New(cfg.logLevel, format, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

// onClose registers a release function run by close
func (cfg *config) onClose(fn func() error) {
	cfg.closers = append(cfg.closers, fn)
}

// close releases clients in reverse order of creation
func (cfg *config) close(ctx context.Context) {
	for i := len(cfg.closers) - 1; i >= 0; i-- {
		if err := cfg.closers[i](); err != nil {
			logging.From(ctx).Warn("failed to close client", "error", err)
		}
	}
	cfg.closers = nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (*adapter.GeminiClient, error) {
	opts := []adapter.GeminiOption{
		adapter.WithGenerativeModel(cfg.geminiModel),
		adapter.WithEmbeddingModel(cfg.embeddingModel),
		adapter.WithEmbeddingDimension(int(cfg.embeddingDimension)),
	}

	if cfg.geminiAPIKey != "" {
		return adapter.NewGeminiWithAPIKey(ctx, cfg.geminiAPIKey, opts...)
	}

	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project or gemini-api-key is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}
	return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
}

// newEmbedder creates the configured embedder, wrapped by the Redis cache when enabled
func (cfg *config) newEmbedder(ctx context.Context, gemini adapter.Gemini) (embedding.Embedder, error) {
	var embedder embedding.Embedder

	switch cfg.embeddingProvider {
	case providerGemini:
		if gemini == nil {
			return nil, goerr.New("gemini client is required for gemini embeddings")
		}
		embedder = embedding.NewGemini(gemini)

	case providerOpenAI:
		var opts []embedding.OpenAIOption
		if cfg.openaiBaseURL != "" {
			opts = append(opts, embedding.WithOpenAIBaseURL(cfg.openaiBaseURL))
		}
		if cfg.openaiModel != "" {
			opts = append(opts, embedding.WithOpenAIModel(cfg.openaiModel))
		}
		client, err := embedding.NewOpenAI(cfg.openaiAPIKey, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create openai embedder")
		}
		embedder = client

	default:
		return nil, goerr.New("unsupported embedding provider", goerr.V("provider", cfg.embeddingProvider))
	}

	cache, err := cfg.newCache(ctx)
	if err != nil {
		return nil, err
	}
	if cache == nil {
		return embedder, nil
	}
	return embedding.NewCached(embedder, cache, cfg.cacheTTL), nil
}

// newCache connects the embedding cache. It returns nil when no cache is configured.
func (cfg *config) newCache(ctx context.Context) (embedding.Cache, error) {
	if cfg.redisURL == "" {
		return nil, nil
	}

	cache, err := embedding.NewRedisCache(ctx, cfg.redisURL)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding cache")
	}
	cfg.onClose(cache.Close)
	return cache, nil
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	var (
		repo repository.Repository
		err  error
	)

	switch cfg.vectorBackend {
	case backendQdrant:
		repo, err = repository.NewQdrant(repository.QdrantConfig{
			URL:        cfg.qdrantURL,
			APIKey:     cfg.qdrantAPIKey,
			Collection: cfg.collection,
		})

	case backendFirestore:
		if cfg.firestoreProject == "" {
			return nil, goerr.New("firestore-project is required")
		}
		if cfg.firestoreDatabase == "" {
			return nil, goerr.New("firestore-database is required")
		}
		repo, err = repository.NewFirestore(ctx, cfg.firestoreProject, cfg.firestoreDatabase, cfg.firestoreCollection)

	case backendMemory:
		logging.From(ctx).Warn("using in-memory vector store, documents are lost on exit")
		repo = repository.NewMemory()

	default:
		return nil, goerr.New("unsupported vector backend", goerr.V("backend", cfg.vectorBackend))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository", goerr.V("backend", cfg.vectorBackend))
	}

	cfg.onClose(repo.Close)
	return repo, nil
}

// newStorage creates a new Storage adapter instance
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	storage, err := adapter.NewStorage(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	cfg.onClose(storage.Close)
	return storage, nil
}

// newManager builds the chat engine on Gemini and the initialized tool registry
func (cfg *config) newManager(ctx context.Context, registry *tool.Registry) (*chat.Manager, error) {
	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}

	if err := cfg.initRegistry(ctx, registry, gemini); err != nil {
		return nil, err
	}

	engine := chat.NewEngine(gemini, registry,
		chat.WithMaxWords(int(cfg.maxWords)),
		chat.WithMaxOutputTokens(int32(cfg.maxOutputTokens)),
		chat.WithTemperature(float32(cfg.temperature)),
	)
	return chat.NewManager(engine), nil
}

// initRegistry connects the vector store and the embedder and hands them to the tools
func (cfg *config) initRegistry(ctx context.Context, registry *tool.Registry, gemini adapter.Gemini) error {
	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return err
	}

	embedder, err := cfg.newEmbedder(ctx, gemini)
	if err != nil {
		return err
	}

	if err := registry.Init(ctx, &tool.Client{Repo: repo, Embedder: embedder}); err != nil {
		return goerr.Wrap(err, "failed to initialize tools")
	}
	return nil
}

// newStandaloneEmbedder creates the embedder for commands that do not generate answers. The
// Gemini client is only created when Gemini computes the embeddings.
func (cfg *config) newStandaloneEmbedder(ctx context.Context) (embedding.Embedder, error) {
	var gemini adapter.Gemini
	if cfg.embeddingProvider == providerGemini {
		client, err := cfg.newGemini(ctx)
		if err != nil {
			return nil, err
		}
		gemini = client
	}
	return cfg.newEmbedder(ctx, gemini)
}
