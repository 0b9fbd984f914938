package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"policymitr/internal/ai"
	"policymitr/internal/analysis"
	"policymitr/internal/app"
	"policymitr/internal/cache"
	"policymitr/internal/config"
	"policymitr/internal/metrics"
	mysqlClient "policymitr/internal/platform/mysql"
	rabbitmqClient "policymitr/internal/platform/rabbitmq"
	redisClient "policymitr/internal/platform/redis"
	sqliteClient "policymitr/internal/platform/sqlite"
	"policymitr/internal/rag"
	"policymitr/internal/repository"
	"policymitr/internal/vectorindex"
	"policymitr/internal/worker"
)

// App owns every long-lived resource of the service. Redis and RabbitMQ are
// optional and nil when disabled.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *gorm.DB
	IndexDB *gorm.DB
	Redis   *redis.Client
	MQConn  *amqp.Connection

	Index      rag.VectorIndex
	Metrics    *metrics.Recorder
	Pool       *ants.Pool
	Retriever  *rag.Retriever
	TurnWorker *worker.TurnPersistWorker

	AuthService   *app.AuthService
	PolicyService *app.PolicyService
	ChatService   *app.ChatService
	AdminService  *app.AdminService

	GeneratorName    string
	EmbeddingEnabled bool
	StartedAt        time.Time
}

// OpenStore connects to the relational store selected by cfg.Store.Driver.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return sqliteClient.New(ctx, cfg.Store.SQLitePath)
	default:
		return mysqlClient.New(ctx, cfg.MySQLDSN(), cfg.App.Env == "dev", logger)
	}
}

// Migrate creates the store tables and, for persistent drivers, the index
// tables.
func Migrate(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB(db)
	if err := repository.Migrate(db); err != nil {
		return err
	}

	switch cfg.Index.Driver {
	case "mysql":
		return vectorindex.NewPersistent(db).Migrate()
	case "sqlite":
		indexDB, err := sqliteClient.New(ctx, cfg.Index.SQLitePath)
		if err != nil {
			return err
		}
		defer closeDB(indexDB)
		return vectorindex.NewPersistent(indexDB).Migrate()
	}
	return nil
}

// Promote grants the admin role to an existing user.
func Promote(ctx context.Context, cfg *config.Config, logger *zap.Logger, username string) error {
	db, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB(db)
	if err := repository.Migrate(db); err != nil {
		return err
	}
	admin := app.NewAdminService(repository.NewUserRepository(db), repository.NewPolicyRepository(db),
		repository.NewActivityRepository(db), logger)
	return admin.Promote(ctx, username)
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.NewRecorder(), StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	db, err := OpenStore(ctx, cfg, a.Logger)
	if err != nil {
		return err
	}
	a.DB = db
	if err := repository.Migrate(db); err != nil {
		return err
	}

	if err := a.openIndex(ctx); err != nil {
		return err
	}

	if cfg.Redis.Enabled {
		if a.Redis, err = redisClient.New(ctx, cfg.Redis); err != nil {
			return err
		}
	}
	if cfg.RabbitMQ.Enabled {
		if a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.TurnPersistQueue); err != nil {
			return err
		}
	}

	if a.Pool, err = ants.NewPool(cfg.Retrieval.IngestWorkers); err != nil {
		return fmt.Errorf("create ingest pool failed: %w", err)
	}

	embedder := a.newEmbedder()
	generator, completer := a.newGenerator(ctx)
	a.GeneratorName = generator.Name()

	userRepo := repository.NewUserRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	turnRepo := repository.NewChatTurnRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	var historyCache *cache.HistoryCache
	if a.Redis != nil {
		historyCache = cache.NewHistoryCache(a.Redis,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second)
	}

	a.Retriever, err = rag.NewRetriever(embedder, a.Index, chunkRepo, cfg.RetrieverConfig(),
		rag.WithObserver(a.Metrics),
		rag.WithLogger(a.Logger.Named("retriever")),
	)
	if err != nil {
		return err
	}

	a.AuthService = app.NewAuthService(userRepo, cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute, a.Logger.Named("auth"))
	a.AdminService = app.NewAdminService(userRepo, policyRepo, activityRepo, a.Logger.Named("admin"))

	a.PolicyService, err = app.NewPolicyService(app.PolicyServiceDeps{
		Policies:     policyRepo,
		Bookmarks:    repository.NewBookmarkRepository(db),
		Chunks:       chunkRepo,
		Turns:        turnRepo,
		HistoryCache: historyCache,
		Activity:     activityRepo,
		Index:        a.Index,
		Embedder:     embedder,
		Analyzer:     analysis.NewAnalyzer(completer, a.Logger.Named("analysis")),
		Pool:         a.Pool,
		Observer:     a.Metrics,
		Logger:       a.Logger.Named("policy"),
	}, app.IngestConfig{
		Collection:   cfg.Retrieval.Collection,
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.ChunkOverlap,
		BatchSize:    cfg.Retrieval.EmbeddingBatchSize,
	})
	if err != nil {
		return err
	}

	chatDeps := app.ChatServiceDeps{
		Turns:        turnRepo,
		Policies:     policyRepo,
		Retriever:    a.Retriever,
		Generator:    generator,
		HistoryCache: historyCache,
		Activity:     activityRepo,
		Observer:     a.Metrics,
		Logger:       a.Logger.Named("chat"),
	}
	if a.MQConn != nil {
		chatDeps.Publisher = rabbitmqClient.NewTurnPublisher(a.MQConn, cfg.RabbitMQ.TurnPersistQueue)
		a.TurnWorker = worker.NewTurnPersistWorker(a.MQConn, turnRepo, cfg.RabbitMQ.TurnPersistQueue, a.Logger.Named("worker"))
		if err := a.TurnWorker.Start(ctx); err != nil {
			return fmt.Errorf("start turn worker failed: %w", err)
		}
	}
	a.ChatService = app.NewChatService(chatDeps, cfg.Retrieval.Collection, cfg.Retrieval.HistoryFetch)

	a.Logger.Info("application ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("index", cfg.Index.Driver),
		zap.String("generator", a.GeneratorName),
		zap.Bool("embedding", a.EmbeddingEnabled),
		zap.Bool("redis", a.Redis != nil),
		zap.Bool("rabbitmq", a.MQConn != nil),
	)
	return nil
}

func (a *App) openIndex(ctx context.Context) error {
	switch a.Config.Index.Driver {
	case "memory":
		a.Index = vectorindex.NewMemory()
		return nil
	case "mysql":
		idx := vectorindex.NewPersistent(a.DB)
		if err := idx.Migrate(); err != nil {
			return err
		}
		a.Index = idx
		return nil
	default:
		db, err := sqliteClient.New(ctx, a.Config.Index.SQLitePath)
		if err != nil {
			return err
		}
		a.IndexDB = db
		idx := vectorindex.NewPersistent(db)
		if err := idx.Migrate(); err != nil {
			return err
		}
		a.Index = idx
		return nil
	}
}

// newEmbedder returns nil when no embedding model is configured; retrieval
// then always takes the lexical path.
func (a *App) newEmbedder() rag.Embedder {
	cfg := a.Config.LLM
	if cfg.EmbeddingModel == "" {
		a.Logger.Warn("embedding model not configured, vector retrieval disabled")
		return nil
	}
	openaiEmbedder, err := ai.NewOpenAIEmbedder(ai.EmbeddingConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.EmbeddingModel,
	})
	if err != nil {
		a.Logger.Warn("embedder unavailable, vector retrieval disabled", zap.Error(err))
		return nil
	}
	a.EmbeddingEnabled = true
	if a.Redis == nil {
		return openaiEmbedder
	}
	return cache.NewEmbeddingCache(openaiEmbedder, a.Redis, cfg.EmbeddingModel,
		time.Duration(a.Config.Redis.EmbeddingTTLSeconds)*time.Second, a.Logger.Named("embedding_cache"))
}

// newGenerator picks the answer generator. A provider that cannot be
// constructed degrades to the offline generator, which has no text
// completer.
func (a *App) newGenerator(ctx context.Context) (app.Generator, analysis.TextCompleter) {
	cfg := a.Config
	switch cfg.LLM.Provider {
	case "openai":
		g, err := ai.NewOpenAIGenerator(ai.ChatConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
		})
		if err == nil {
			return g, g
		}
		a.Logger.Warn("openai generator unavailable, answering offline", zap.Error(err))
	case "gemini":
		g, err := ai.NewGeminiGenerator(ctx, ai.GeminiConfig{
			APIKey:        cfg.Gemini.APIKey,
			Model:         cfg.Gemini.Model,
			FallbackModel: cfg.Gemini.FallbackModel,
		}, a.Logger.Named("gemini"))
		if err == nil {
			return g, g
		}
		a.Logger.Warn("gemini generator unavailable, answering offline", zap.Error(err))
	}
	return ai.OfflineGenerator{TopN: cfg.Retrieval.LexicalTopN}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.TurnWorker != nil {
		a.TurnWorker.Close()
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			closeErr = errors.Join(closeErr, err)
		}
	}
	if a.Pool != nil {
		a.Pool.Release()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = errors.Join(closeErr, err)
		}
	}
	if err := closeDB(a.IndexDB); err != nil {
		closeErr = errors.Join(closeErr, err)
	}
	if err := closeDB(a.DB); err != nil {
		closeErr = errors.Join(closeErr, err)
	}
	return closeErr
}

func closeDB(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
