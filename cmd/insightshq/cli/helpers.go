package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/insightshq/nl2sql-processor/internal/agent"
	"github.com/insightshq/nl2sql-processor/internal/catalog"
	"github.com/insightshq/nl2sql-processor/internal/config"
	"github.com/insightshq/nl2sql-processor/internal/connector"
	"github.com/insightshq/nl2sql-processor/internal/connector/mssql"
	"github.com/insightshq/nl2sql-processor/internal/connector/mysql"
	"github.com/insightshq/nl2sql-processor/internal/connector/oracle"
	"github.com/insightshq/nl2sql-processor/internal/connector/postgres"
	"github.com/insightshq/nl2sql-processor/internal/connector/snowflake"
	"github.com/insightshq/nl2sql-processor/internal/connector/sqlite"
	"github.com/insightshq/nl2sql-processor/internal/llm"
	"github.com/insightshq/nl2sql-processor/internal/llm/anthropic"
	"github.com/insightshq/nl2sql-processor/internal/llm/openai"
	"github.com/insightshq/nl2sql-processor/internal/processor"
	"github.com/insightshq/nl2sql-processor/internal/queue/servicebus"
	"github.com/insightshq/nl2sql-processor/internal/store"
	"github.com/insightshq/nl2sql-processor/internal/store/mongo"
	sqlitestore "github.com/insightshq/nl2sql-processor/internal/store/sqlite"
	"github.com/insightshq/nl2sql-processor/internal/tools"
)

// ConfigFileName is looked up in the working directory and in
// $HOME/.insightshq when --config is not given.
const ConfigFileName = "insightshq.yaml"

// LogFileName is written under LOGS_DIR when it is set.
const LogFileName = "nl2sql_processor.log"

func findConfigFile() string {
	candidates := []string{ConfigFileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".insightshq", ConfigFileName))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// newLogger builds the process logger. Output always goes to stderr and,
// when a log directory is configured, to a file in it as well. The returned
// closer releases the file.
func newLogger(c config.LoggingConfig) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closer := func() {}
	if c.Dir != "" {
		if err := os.MkdirAll(c.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(c.Dir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closer = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if c.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), closer, nil
}

// openStore connects the configured backend and wraps it with retries.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Backend {
	case "sqlite":
		st, err = sqlitestore.NewStore(cfg.Store.SQLitePath)
	default:
		st, err = mongo.Open(ctx, mongo.Config{
			URI:                cfg.Store.MongoURI,
			Database:           cfg.Store.Database,
			RequestsCollection: cfg.Store.RequestsCollection,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	logger.Info("store connected", "backend", cfg.Store.Backend)
	return store.WithRetry(st, store.DefaultRetryPolicy(), logger), nil
}

// openQueue connects to the Service Bus queue.
func openQueue(cfg *config.Config, logger *slog.Logger) (*servicebus.Queue, error) {
	q, err := servicebus.Open(cfg.Queue.ConnectionString, cfg.Queue.QueueName)
	if err != nil {
		return nil, fmt.Errorf("open service bus queue: %w", err)
	}
	logger.Info("service bus connected", "queue", cfg.Queue.QueueName)
	return q, nil
}

// newRegistry creates a connector registry with every warehouse driver
// registered.
func newRegistry() *connector.Registry {
	registry := connector.NewRegistry()
	registry.RegisterDriver("mssql", mssql.New)
	registry.RegisterDriver("postgres", postgres.New)
	registry.RegisterDriver("mysql", mysql.New)
	registry.RegisterDriver("snowflake", snowflake.New)
	registry.RegisterDriver("oracle", oracle.New)
	registry.RegisterDriver("sqlite", sqlite.New)
	return registry
}

// connectWarehouses registers every configured datasource. A datasource
// that cannot be reached is logged and kept pending; the registry retries
// it on first use.
func connectWarehouses(cfg *config.Config, logger *slog.Logger) (*connector.Registry, error) {
	registry := newRegistry()
	sources, err := config.LoadDatasources(cfg.Warehouse)
	if err != nil {
		return nil, err
	}
	for _, ds := range sources {
		cc, err := connector.FromDatasource(ds)
		if err != nil {
			return nil, err
		}
		if err := registry.Connect(ds.ID, cc); err != nil {
			logger.Error("failed to connect datasource", "datasource", ds.ID, "driver", ds.Driver, "error", err)
			if aerr := registry.Add(ds.ID, cc); aerr != nil {
				return nil, aerr
			}
			continue
		}
		logger.Info("connected datasource", "datasource", ds.ID, "driver", ds.Driver)
	}
	return registry, nil
}

// newLLM builds the chat client, throttled to the configured rate, and the
// embedder used for catalog search when the provider offers one.
func newLLM(cfg *config.Config) (llm.Client, catalog.Embedder, func(error) bool, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		c, err := anthropic.New(anthropic.Config{
			APIKey: cfg.LLM.AnthropicAPIKey,
			Model:  cfg.LLM.AnthropicModel,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return llm.NewThrottled(c, cfg.LLM.RequestsPerSecond, cfg.LLM.Burst), nil, nil, nil
	default:
		c, err := openai.New(openai.Config{
			Azure:          cfg.LLM.Provider == "azure-openai",
			Endpoint:       cfg.LLM.Endpoint,
			APIKey:         cfg.LLM.APIKey,
			APIVersion:     cfg.LLM.APIVersion,
			Model:          cfg.LLM.Model,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		throttled := llm.NewThrottled(c, cfg.LLM.RequestsPerSecond, cfg.LLM.Burst)
		var embedder catalog.Embedder
		if cfg.LLM.EmbeddingModel != "" {
			embedder = throttled
		}
		return throttled, embedder, openai.IsRetryable, nil
	}
}

// stack is everything a command that answers questions needs.
type stack struct {
	catalog    *catalog.Catalog
	warehouses *connector.Registry
	toolbox    *tools.Toolbox
	client     llm.Client
	retryable  func(error) bool
}

func (s *stack) Close() {
	if s.warehouses != nil {
		s.warehouses.CloseAll()
	}
}

// buildToolbox loads the catalog, connects the warehouses and creates the
// toolbox. withLLM also builds the chat client, which the optional query
// verifier and the agent need.
func buildToolbox(cfg *config.Config, withLLM bool, logger *slog.Logger) (*stack, error) {
	cat, err := catalog.Load(cfg.Warehouse.CatalogDir)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	logger.Info("catalog loaded", "views", len(cat.Views()), "examples", len(cat.Examples()))

	registry, err := connectWarehouses(cfg, logger)
	if err != nil {
		return nil, err
	}
	s := &stack{catalog: cat, warehouses: registry}

	var embedder catalog.Embedder
	opts := tools.Options{
		MaxRows:           cfg.Warehouse.MaxRows,
		QueryTimeout:      cfg.Warehouse.QueryTimeout,
		DefaultDatasource: cfg.Warehouse.DefaultDatasource,
		Logger:            logger,
	}
	if withLLM {
		s.client, embedder, s.retryable, err = newLLM(cfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("create llm client: %w", err)
		}
		if cfg.Warehouse.VerifyWithLLM {
			opts.Verifier = tools.NewVerifier(s.client, cfg.Warehouse.MaxRows)
		}
	}

	s.toolbox = tools.New(catalog.NewSearcher(cat, embedder, logger), registry, opts)
	return s, nil
}

// newAgent renders the instructions for the warehouse dialect and builds
// the agent. st may be nil, in which case threads carry no history.
func newAgent(cfg *config.Config, s *stack, st store.Store, logger *slog.Logger) (*agent.Agent, error) {
	driver, err := config.DriverFor(cfg.Warehouse.DatabaseType)
	if err != nil {
		return nil, err
	}
	system, err := agent.RenderInstructions(agent.NewPromptData(driver, s.catalog, cfg.Warehouse.MaxRows))
	if err != nil {
		return nil, err
	}

	acfg := agent.DefaultConfig()
	acfg.Temperature = cfg.LLM.Temperature
	acfg.MaxTokens = cfg.LLM.MaxTokens
	acfg.MaxToolRounds = cfg.Worker.MaxToolRounds
	acfg.MaxRetries = cfg.Worker.MaxRetries
	acfg.RetryDelay = cfg.Worker.RetryDelay
	acfg.HistoryTurns = cfg.Worker.HistoryTurns
	acfg.Retryable = s.retryable

	var history agent.History
	if st != nil {
		history = processor.NewHistory(st)
	}
	return agent.New(s.client, s.toolbox, history, system, acfg, logger), nil
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}

// withTimeout is a short context for one-shot CLI calls.
func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 30 * time.Second
	}
	return context.WithTimeout(parent, d)
}

// cmdContext returns the command context, or Background when the command
// was executed without one.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
