// Package config loads processor settings from the environment, an optional
// YAML file, and command-line flags, all layered through viper.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved processor configuration.
type Config struct {
	Environment string
	ContainerID string

	Queue     QueueConfig
	Store     StoreConfig
	LLM       LLMConfig
	Warehouse WarehouseConfig
	Worker    WorkerConfig
	Health    HealthConfig
	Cleanup   CleanupConfig
	Server    ServerConfig
	Auth      AuthConfig
	Logging   LoggingConfig
}

// QueueConfig controls the Service Bus receiver.
type QueueConfig struct {
	ConnectionString  string
	QueueName         string
	MaxMessageCount   int
	MaxWaitTime       time.Duration
	LockRenewInterval time.Duration
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend            string // "mongo" or "sqlite"
	MongoURI           string
	Database           string
	RequestsCollection string
	SQLitePath         string
}

// LLMConfig configures the chat and embedding provider.
type LLMConfig struct {
	Provider          string // "azure-openai", "openai" or "anthropic"
	Endpoint          string
	APIKey            string
	APIVersion        string
	Model             string
	EmbeddingModel    string
	AnthropicAPIKey   string
	AnthropicModel    string
	Temperature       float32
	MaxTokens         int
	RequestsPerSecond float64
	Burst             int
}

// WarehouseConfig describes where SQL runs and where the view catalog lives.
type WarehouseConfig struct {
	DatabaseType      string
	TenantID          string
	ClientID          string
	ClientSecret      string
	Server            string
	Database          string
	DefaultDatasource string
	CatalogDir        string
	VerifyWithLLM     bool
	MaxRows           int
	QueryTimeout      time.Duration
}

// WorkerConfig bounds how questions are processed.
type WorkerConfig struct {
	MaxWorkers            int
	RequestTimeout        time.Duration
	SessionIdleTimeout    time.Duration
	HistoryTurns          int
	MaxToolRounds         int
	MaxRetries            int
	RetryDelay            time.Duration
	ConversationBatchSize int
}

// HealthConfig holds the thresholds of the self-monitoring loop.
type HealthConfig struct {
	CheckInterval          time.Duration
	NoMessageTimeout       time.Duration
	StuckWarnAfter         time.Duration
	StuckAlertAfter        time.Duration
	MaxConnectionErrors    int
	MaxBatchErrors         int
	ConnectionErrorBackoff time.Duration
	BatchErrorBackoff      time.Duration
	MetricsInterval        time.Duration
	HeartbeatTimeout       time.Duration
	ProbeURL               string
}

// CleanupConfig controls retention of persisted documents.
type CleanupConfig struct {
	RequestRetentionDays      int
	ConversationRetentionDays int
	HealthRetentionDays       int
	IntervalHours             int
}

// ServerConfig controls the status API.
type ServerConfig struct {
	Host               string
	Port               int
	CORSOrigins        []string
	RateLimitPerMinute int
	ShutdownTimeout    time.Duration
}

// AuthConfig holds status API credentials.
type AuthConfig struct {
	JWTSecret string
	JWTExpiry time.Duration
	APIKeys   []string
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string
	Format string
	Dir    string
}

// envBindings maps viper keys to the environment variables the deployment
// scripts already export.
var envBindings = map[string]string{
	"environment": "ENVIRONMENT",

	"queue.connection_string":   "AZURE_SERVICE_BUS_CONNECTION_STRING",
	"queue.name":                "AZURE_SERVICE_BUS_QUEUE_NAME",
	"queue.max_message_count":   "MAX_MESSAGE_COUNT",
	"queue.max_wait_time":       "MAX_WAIT_TIME",
	"queue.lock_renew_interval": "LOCK_RENEW_INTERVAL",

	"store.backend":             "STORE_BACKEND",
	"store.mongo_uri":           "MONGODB_CONNECTION_STRING",
	"store.database":            "MONGODB_DATABASE_NAME",
	"store.requests_collection": "MONGODB_COLLECTION_NAME",
	"store.sqlite_path":         "SQLITE_PATH",

	"llm.provider":            "LLM_PROVIDER",
	"llm.endpoint":            "AZURE_OPENAI_API_ENDPOINT",
	"llm.api_key":             "AZURE_OPENAI_API_KEY",
	"llm.api_version":         "AZURE_OPENAI_API_VERSION",
	"llm.model":               "AZURE_OPENAI_MODEL_NAME",
	"llm.embedding_model":     "AZURE_OPENAI_EMBEDDING_MODEL_NAME",
	"llm.anthropic_api_key":   "ANTHROPIC_API_KEY",
	"llm.anthropic_model":     "ANTHROPIC_MODEL_NAME",
	"llm.temperature":         "LLM_TEMPERATURE",
	"llm.max_tokens":          "LLM_MAX_TOKENS",
	"llm.requests_per_second": "LLM_REQUESTS_PER_SECOND",
	"llm.burst":               "LLM_BURST",

	"warehouse.database_type":      "DATABASE_TYPE",
	"warehouse.tenant_id":          "AZURE_TENANT_ID",
	"warehouse.client_id":          "AZURE_CLIENT_ID",
	"warehouse.client_secret":      "AZURE_CLIENT_SECRET",
	"warehouse.server":             "AZURE_FABRIC_SQL_SERVER",
	"warehouse.database":           "AZURE_FABRIC_SQL_DATABASE",
	"warehouse.default_datasource": "DEFAULT_DATASOURCE",
	"warehouse.catalog_dir":        "CATALOG_DIR",
	"warehouse.verify_with_llm":    "VERIFY_WITH_LLM",
	"warehouse.max_rows":           "MAX_QUERY_ROWS",
	"warehouse.query_timeout":      "QUERY_TIMEOUT",

	"worker.max_workers":             "MAX_WORKERS",
	"worker.request_timeout":         "REQUEST_TIMEOUT",
	"worker.session_idle_timeout":    "SESSION_IDLE_TIMEOUT",
	"worker.history_turns":           "HISTORY_TURNS",
	"worker.max_tool_rounds":         "MAX_TOOL_ROUNDS",
	"worker.max_retries":             "LLM_MAX_RETRIES",
	"worker.retry_delay":             "LLM_RETRY_DELAY",
	"worker.conversation_batch_size": "CONVERSATION_BATCH_SIZE",

	"health.check_interval":      "HEALTH_CHECK_INTERVAL",
	"health.no_message_timeout":  "NO_MESSAGE_TIMEOUT",
	"health.max_connection_errs": "MAX_CONNECTION_ERRORS",
	"health.max_batch_errs":      "MAX_BATCH_ERRORS",
	"health.metrics_interval":    "METRICS_INTERVAL",
	"health.heartbeat_timeout":   "HEARTBEAT_TIMEOUT",
	"health.probe_url":           "HEALTHCHECK_URL",

	"cleanup.days":                   "CLEANUP_DAYS",
	"cleanup.conversation_days":      "CONVERSATION_RETENTION_DAYS",
	"cleanup.health_days":            "HEALTH_RETENTION_DAYS",
	"cleanup.interval_hours":         "CLEANUP_INTERVAL_HOURS",
	"server.host":                    "HTTP_HOST",
	"server.port":                    "HTTP_PORT",
	"server.cors_origins":            "CORS_ORIGINS",
	"server.rate_limit_per_minute":   "RATE_LIMIT_PER_MINUTE",
	"auth.jwt_secret":                "AUTH_JWT_SECRET",
	"auth.jwt_expiry":                "AUTH_JWT_EXPIRY",
	"auth.api_keys":                  "AUTH_API_KEYS",
	"logging.level":                  "LOG_LEVEL",
	"logging.format":                 "LOG_FORMAT",
	"logging.dir":                    "LOGS_DIR",
}

// defaults mirrors the values the processor has always shipped with.
var defaults = map[string]interface{}{
	"queue.name":                "nl2sql-requests",
	"queue.max_message_count":   10,
	"queue.max_wait_time":       "5s",
	"queue.lock_renew_interval": "30s",

	"store.backend":             "mongo",
	"store.database":            "insightshq-db",
	"store.requests_collection": "requests",
	"store.sqlite_path":         "insightshq.db",

	"llm.provider":            "azure-openai",
	"llm.api_version":         "2024-08-01-preview",
	"llm.model":               "gpt-4o-mini",
	"llm.anthropic_model":     "claude-3-5-sonnet-latest",
	"llm.temperature":         0.01,
	"llm.max_tokens":          4096,
	"llm.requests_per_second": 5.0,
	"llm.burst":               5,

	"warehouse.database_type":      "fabric",
	"warehouse.default_datasource": "default",
	"warehouse.catalog_dir":        "nl2sql",
	"warehouse.max_rows":           50,
	"warehouse.query_timeout":      "60s",

	"worker.max_workers":             10,
	"worker.request_timeout":         "120s",
	"worker.session_idle_timeout":    "60m",
	"worker.history_turns":           3,
	"worker.max_tool_rounds":         12,
	"worker.max_retries":             5,
	"worker.retry_delay":             "20s",
	"worker.conversation_batch_size": 10,

	"health.check_interval":      "5m",
	"health.no_message_timeout":  "30m",
	"health.max_connection_errs": 10,
	"health.max_batch_errs":      20,
	"health.metrics_interval":    "1h",
	"health.heartbeat_timeout":   "5m",
	"health.probe_url":           "http://127.0.0.1:8080/healthz",

	"cleanup.days":              7,
	"cleanup.conversation_days": 30,
	"cleanup.health_days":       7,
	"cleanup.interval_hours":    1,

	"server.host":                  "0.0.0.0",
	"server.port":                  8080,
	"server.cors_origins":          []string{"*"},
	"server.rate_limit_per_minute": 120,

	"auth.jwt_expiry": "24h",

	"logging.level":  "info",
	"logging.format": "text",
}

// Bind registers environment bindings and defaults on v. It is idempotent.
func Bind(v *viper.Viper) {
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
}

// Load resolves a Config from v after binding the environment.
func Load(v *viper.Viper) (*Config, error) {
	Bind(v)

	var errs []string
	dur := func(key string) time.Duration {
		d, err := parseDuration(v.GetString(key))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
		return d
	}

	cfg := &Config{
		Environment: v.GetString("environment"),
		ContainerID: containerID(),
		Queue: QueueConfig{
			ConnectionString:  v.GetString("queue.connection_string"),
			QueueName:         v.GetString("queue.name"),
			MaxMessageCount:   v.GetInt("queue.max_message_count"),
			MaxWaitTime:       dur("queue.max_wait_time"),
			LockRenewInterval: dur("queue.lock_renew_interval"),
		},
		Store: StoreConfig{
			Backend:            strings.ToLower(v.GetString("store.backend")),
			MongoURI:           v.GetString("store.mongo_uri"),
			Database:           v.GetString("store.database"),
			RequestsCollection: v.GetString("store.requests_collection"),
			SQLitePath:         v.GetString("store.sqlite_path"),
		},
		LLM: LLMConfig{
			Provider:          strings.ToLower(v.GetString("llm.provider")),
			Endpoint:          v.GetString("llm.endpoint"),
			APIKey:            v.GetString("llm.api_key"),
			APIVersion:        v.GetString("llm.api_version"),
			Model:             v.GetString("llm.model"),
			EmbeddingModel:    v.GetString("llm.embedding_model"),
			AnthropicAPIKey:   v.GetString("llm.anthropic_api_key"),
			AnthropicModel:    v.GetString("llm.anthropic_model"),
			Temperature:       float32(v.GetFloat64("llm.temperature")),
			MaxTokens:         v.GetInt("llm.max_tokens"),
			RequestsPerSecond: v.GetFloat64("llm.requests_per_second"),
			Burst:             v.GetInt("llm.burst"),
		},
		Warehouse: WarehouseConfig{
			DatabaseType:      strings.ToLower(v.GetString("warehouse.database_type")),
			TenantID:          v.GetString("warehouse.tenant_id"),
			ClientID:          v.GetString("warehouse.client_id"),
			ClientSecret:      v.GetString("warehouse.client_secret"),
			Server:            v.GetString("warehouse.server"),
			Database:          v.GetString("warehouse.database"),
			DefaultDatasource: v.GetString("warehouse.default_datasource"),
			CatalogDir:        v.GetString("warehouse.catalog_dir"),
			VerifyWithLLM:     v.GetBool("warehouse.verify_with_llm"),
			MaxRows:           v.GetInt("warehouse.max_rows"),
			QueryTimeout:      dur("warehouse.query_timeout"),
		},
		Worker: WorkerConfig{
			MaxWorkers:            v.GetInt("worker.max_workers"),
			RequestTimeout:        dur("worker.request_timeout"),
			SessionIdleTimeout:    dur("worker.session_idle_timeout"),
			HistoryTurns:          v.GetInt("worker.history_turns"),
			MaxToolRounds:         v.GetInt("worker.max_tool_rounds"),
			MaxRetries:            v.GetInt("worker.max_retries"),
			RetryDelay:            dur("worker.retry_delay"),
			ConversationBatchSize: v.GetInt("worker.conversation_batch_size"),
		},
		Health: HealthConfig{
			CheckInterval:          dur("health.check_interval"),
			NoMessageTimeout:       dur("health.no_message_timeout"),
			StuckWarnAfter:         5 * time.Minute,
			StuckAlertAfter:        10 * time.Minute,
			MaxConnectionErrors:    v.GetInt("health.max_connection_errs"),
			MaxBatchErrors:         v.GetInt("health.max_batch_errs"),
			ConnectionErrorBackoff: 10 * time.Second,
			BatchErrorBackoff:      5 * time.Second,
			MetricsInterval:        dur("health.metrics_interval"),
			HeartbeatTimeout:       dur("health.heartbeat_timeout"),
			ProbeURL:               v.GetString("health.probe_url"),
		},
		Cleanup: CleanupConfig{
			RequestRetentionDays:      v.GetInt("cleanup.days"),
			ConversationRetentionDays: v.GetInt("cleanup.conversation_days"),
			HealthRetentionDays:       v.GetInt("cleanup.health_days"),
			IntervalHours:             v.GetInt("cleanup.interval_hours"),
		},
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Port:               v.GetInt("server.port"),
			CORSOrigins:        splitList(v.GetStringSlice("server.cors_origins")),
			RateLimitPerMinute: v.GetInt("server.rate_limit_per_minute"),
			ShutdownTimeout:    30 * time.Second,
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
			JWTExpiry: dur("auth.jwt_expiry"),
			APIKeys:   splitList(v.GetStringSlice("auth.api_keys")),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(v.GetString("logging.level")),
			Format: strings.ToLower(v.GetString("logging.format")),
			Dir:    v.GetString("logging.dir"),
		},
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// parseDuration accepts Go duration strings ("90s", "5m") as well as bare
// integers, which are read as seconds the way MAX_WAIT_TIME always was.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// splitList flattens comma separated entries that arrive as a single env
// value into individual items.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func containerID() string {
	if h := os.Getenv("HOSTNAME"); h != "" {
		return h
	}
	return "unknown"
}
