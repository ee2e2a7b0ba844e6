package initialization

import (
	"context"
	"fmt"
	"strings"

	"github.com/syncline/syncline/internal/config"
	"github.com/syncline/syncline/internal/controllers"
	"github.com/syncline/syncline/internal/engine"
	"github.com/syncline/syncline/internal/knowledge"
	"github.com/syncline/syncline/internal/persistence"
	"github.com/syncline/syncline/internal/secrets"
	"github.com/syncline/syncline/internal/workflows"
	"github.com/syncline/syncline/pkg/connectors"
	"github.com/syncline/syncline/pkg/domain"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Container wires the full service graph. Everything is constructed
// explicitly here; no package-level singletons.
type Container struct {
	Config *config.Config

	DB          *gorm.DB
	RedisClient *redis.Client
	Neo4jDriver neo4j.DriverWithContext

	SecretStore domain.SecretStore
	Credentials domain.CredentialRepository
	Executions  domain.ExecutionRepository
	Knowledge   *knowledge.Builder
	Selector    domain.ConnectorSelector
	Engine      *engine.Engine

	OrchestrationController *controllers.OrchestrationController
}

// NewContainer builds and connects every component from config. The
// redis cache and neo4j mirror are optional: an empty address or URI
// runs the service on its in-process fallbacks.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{Config: cfg}

	db, err := openDatabase(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	container.DB = db

	if err := persistence.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	key, err := cfg.SecretKeyBytes()
	if err != nil {
		return nil, err
	}

	secretBackend, err := secrets.NewGormStore(db, key)
	if err != nil {
		return nil, fmt.Errorf("build secret store: %w", err)
	}

	var secretCache secrets.SecretCache
	if cfg.RedisAddr != "" {
		container.RedisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		secretCache = secrets.NewRedisCache(container.RedisClient)
		log.Info().Str("addr", cfg.RedisAddr).Msg("Secret cache backed by redis")
	} else {
		secretCache = secrets.NewMemoryCache()
	}
	container.SecretStore = secrets.NewCachedStore(secretBackend, secretCache, cfg.SecretCacheTTL)

	container.Credentials = persistence.NewGormCredentialRepository(db)
	container.Executions = persistence.NewGormExecutionRepository(db)

	var mirror domain.GraphMirror
	if cfg.Neo4jURI != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
		if err != nil {
			return nil, fmt.Errorf("build neo4j driver: %w", err)
		}

		container.Neo4jDriver = driver
		mirror = knowledge.NewNeo4jMirror(driver)
		log.Info().Str("uri", cfg.Neo4jURI).Msg("Knowledge graph mirror backed by neo4j")
	}
	container.Knowledge = knowledge.NewBuilder(persistence.NewGormKnowledgeRepository(db), mirror)

	container.Selector = domain.NewConnectorSelector()
	connectors.RegisterAll(container.Selector, connectors.Deps{})

	container.Engine = engine.New(engine.Options{
		ActivitySlots: cfg.EngineWorkers,
		Recorder:      container.Executions,
	})

	workflowSet := workflows.New(workflows.NewActivities(workflows.ActivityDeps{
		Selector:    container.Selector,
		Secrets:     container.SecretStore,
		Credentials: container.Credentials,
		Knowledge:   container.Knowledge,
	}))
	workflowSet.RegisterAll(container.Engine)

	container.OrchestrationController = controllers.NewOrchestrationController(controllers.OrchestrationControllerDependencies{
		WorkflowClient: container.Engine,
		Executions:     container.Executions,
		Selector:       container.Selector,
		Knowledge:      container.Knowledge,
	})

	return container, nil
}

// Start begins background processing (cron schedules).
func (c *Container) Start() {
	c.Engine.Start()
}

// Shutdown drains the engine and closes external connections.
func (c *Container) Shutdown(ctx context.Context) error {
	if err := c.Engine.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Engine did not drain cleanly")
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}

	if c.Neo4jDriver != nil {
		if err := c.Neo4jDriver.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to close neo4j driver")
		}
	}

	if db, err := c.DB.DB(); err == nil {
		return db.Close()
	}

	return nil
}

func openDatabase(dsn string) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return gorm.Open(postgres.Open(dsn), gormConfig)
	}

	return gorm.Open(sqlite.Open(dsn), gormConfig)
}
