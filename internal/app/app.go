// Package app wires the process together: config, storage clients, the
// graph gateway, the ingestion and query surfaces, and the HTTP handlers
// that sit on top of them.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/yungbote/neurobridge-backend/internal/data/graph/assertiongraph"
	"github.com/yungbote/neurobridge-backend/internal/http/handlers"
	"github.com/yungbote/neurobridge-backend/internal/ingest/orchestrator"
	"github.com/yungbote/neurobridge-backend/internal/ingest/specloader"
	"github.com/yungbote/neurobridge-backend/internal/platform/logger"
	"github.com/yungbote/neurobridge-backend/internal/platform/neo4jdb"
	"github.com/yungbote/neurobridge-backend/internal/platform/postgresdb"
	"github.com/yungbote/neurobridge-backend/internal/platform/qdrant"
	"github.com/yungbote/neurobridge-backend/internal/platform/queue"
	"github.com/yungbote/neurobridge-backend/internal/query"
	"github.com/yungbote/neurobridge-backend/internal/workspace"
)

// App holds every long-lived collaborator the process needs to run and
// to shut down cleanly.
type App struct {
	Log *logger.Logger

	neo4j    *neo4jdb.Client
	queue    *queue.Client
	Handlers Handlers
}

type Handlers struct {
	Health    *handlers.HealthHandler
	Workspace *handlers.WorkspaceHandler
	Import    *handlers.ImportHandler
	ImportRun *handlers.ImportRunHandler
	Entity    *handlers.EntityHandler
}

// New wires the full dependency graph: Postgres (workspace bookkeeping),
// Neo4j (the evidence graph), the workspace registry, the ingestion
// orchestrator, and the query surface, then builds the HTTP handlers on
// top of them.
func New(cfg Config, log *logger.Logger) (*App, error) {
	pg, err := postgresdb.NewFromEnv(log)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pg.AutoMigrate(&workspace.Meta{}); err != nil {
		return nil, fmt.Errorf("automigrate workspace meta: %w", err)
	}

	neo4jClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		return nil, fmt.Errorf("open neo4j: %w", err)
	}
	if neo4jClient == nil {
		return nil, fmt.Errorf("open neo4j: NEO4J_URI is required")
	}

	// Vector store and queue are external collaborators the core only
	// ever touches through the health check: passed through unchanged
	// per spec.md's scope. A queue configuration or connection error here
	// is logged, not fatal to startup; with no client held, the health
	// check then reports the queue as "not_configured".
	queueClient, err := queue.NewFromEnv(log)
	if err != nil {
		log.Warn("queue collaborator unavailable", "error", err)
	}

	if err := os.MkdirAll(cfg.WorkspaceSpecRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace spec root: %w", err)
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	metaRepo := workspace.NewGormMetaRepo(pg)
	registry := workspace.New(cfg.WorkspaceSpecRoot)

	graph := assertiongraph.New(neo4jClient, log)
	if err := graph.EnsureSchema(context.Background()); err != nil {
		log.Warn("graph schema setup failed (continuing)", "error", err)
	}
	orch := orchestrator.New(graph, log)
	surface := query.New(graph)
	specs := newSpecLoaderFactory(filepath.Join(cfg.WorkspaceSpecRoot, "specs"))

	h := Handlers{
		Health:    handlers.NewHealthHandler(healthCheckers(log, neo4jClient, queueClient)),
		Workspace: handlers.NewWorkspaceHandler(registry, metaRepo),
		Import:    handlers.NewImportHandler(orch, specs, registry, cfg.UploadDir),
		ImportRun: handlers.NewImportRunHandler(graph, surface),
		Entity:    handlers.NewEntityHandler(surface),
	}

	return &App{Log: log, neo4j: neo4jClient, queue: queueClient, Handlers: h}, nil
}

func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		_ = a.queue.Close()
	}
	return a.neo4j.Close(ctx)
}

// healthCheckers builds the /health probe set. Vector has no long-lived
// client to hold onto (qdrant.NewVectorStore both connects and
// verifies readiness in one call), so its checker resolves config and
// connects fresh on every health request; that is acceptable for an
// operator-polled endpoint, not a hot path.
func healthCheckers(log *logger.Logger, neo4jClient *neo4jdb.Client, queueClient *queue.Client) handlers.ServiceCheckers {
	return handlers.ServiceCheckers{
		Graph: func(ctx context.Context) (string, error) {
			if neo4jClient == nil {
				return "not_configured", nil
			}
			if err := neo4jClient.Ping(ctx); err != nil {
				return "down", err
			}
			return "ok", nil
		},
		Vector: func(ctx context.Context) (string, error) {
			cfg, err := qdrant.ResolveConfigFromEnv()
			if err != nil {
				return "not_configured", nil
			}
			if _, err := qdrant.NewVectorStore(log, cfg); err != nil {
				return "down", err
			}
			return "ok", nil
		},
		Queue: func(ctx context.Context) (string, error) {
			if queueClient == nil {
				return "not_configured", nil
			}
			if err := queueClient.Ping(ctx); err != nil {
				return "down", err
			}
			return "ok", nil
		},
	}
}

// specLoaderFactory hands out one specloader.Loader per workspace, each
// rooted at its own subdirectory under the shared spec root, lazily
// created and cached for the life of the process.
type specLoaderFactory struct {
	root string

	mu      sync.Mutex
	loaders map[string]*specloader.Loader
}

func newSpecLoaderFactory(root string) *specLoaderFactory {
	return &specLoaderFactory{root: root, loaders: make(map[string]*specloader.Loader)}
}

func (f *specLoaderFactory) For(workspaceID string) *specloader.Loader {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.loaders[workspaceID]; ok {
		return l
	}
	l := specloader.New(filepath.Join(f.root, workspaceID))
	f.loaders[workspaceID] = l
	return l
}
