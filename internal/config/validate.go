package config

import "fmt"

// Needs is a bit set naming the subsystems a command depends on.
type Needs uint8

const (
	NeedQueue Needs = 1 << iota
	NeedStore
	NeedLLM
	NeedWarehouse
	NeedAuth
)

// Validate checks that everything the given subsystems require is present.
// All missing variables are reported together.
func (c *Config) Validate(needs Needs) error {
	var missing []string
	require := func(val, env string) {
		if val == "" {
			missing = append(missing, env)
		}
	}

	if needs&NeedQueue != 0 {
		require(c.Queue.ConnectionString, "AZURE_SERVICE_BUS_CONNECTION_STRING")
		require(c.Queue.QueueName, "AZURE_SERVICE_BUS_QUEUE_NAME")
	}

	if needs&NeedStore != 0 {
		switch c.Store.Backend {
		case "mongo":
			require(c.Store.MongoURI, "MONGODB_CONNECTION_STRING")
			require(c.Store.Database, "MONGODB_DATABASE_NAME")
		case "sqlite":
			require(c.Store.SQLitePath, "SQLITE_PATH")
		default:
			return fmt.Errorf("unsupported STORE_BACKEND %q (use mongo or sqlite)", c.Store.Backend)
		}
	}

	if needs&NeedLLM != 0 {
		switch c.LLM.Provider {
		case "azure-openai":
			require(c.LLM.Endpoint, "AZURE_OPENAI_API_ENDPOINT")
			require(c.LLM.APIKey, "AZURE_OPENAI_API_KEY")
			require(c.LLM.Model, "AZURE_OPENAI_MODEL_NAME")
		case "openai":
			require(c.LLM.APIKey, "AZURE_OPENAI_API_KEY")
			require(c.LLM.Model, "AZURE_OPENAI_MODEL_NAME")
		case "anthropic":
			require(c.LLM.AnthropicAPIKey, "ANTHROPIC_API_KEY")
		default:
			return fmt.Errorf("unsupported LLM_PROVIDER %q (use azure-openai, openai or anthropic)", c.LLM.Provider)
		}
	}

	if needs&NeedWarehouse != 0 {
		require(c.Warehouse.CatalogDir, "CATALOG_DIR")
	}

	if needs&NeedAuth != 0 {
		if c.Auth.JWTSecret == "" && len(c.Auth.APIKeys) == 0 {
			missing = append(missing, "AUTH_JWT_SECRET or AUTH_API_KEYS")
		}
	}

	if c.Worker.MaxWorkers < 1 {
		return fmt.Errorf("MAX_WORKERS must be at least 1, got %d", c.Worker.MaxWorkers)
	}
	if c.Queue.MaxMessageCount < 1 {
		return fmt.Errorf("MAX_MESSAGE_COUNT must be at least 1, got %d", c.Queue.MaxMessageCount)
	}

	if len(missing) > 0 {
		return &MissingConfigError{Vars: missing}
	}
	return nil
}

// Redacted returns a flat view of the configuration with secrets masked,
// suitable for printing.
func (c *Config) Redacted() map[string]interface{} {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	keys := make([]string, len(c.Auth.APIKeys))
	for i := range c.Auth.APIKeys {
		keys[i] = "********"
	}
	return map[string]interface{}{
		"environment":                  c.Environment,
		"container_id":                 c.ContainerID,
		"queue.connection_string":      mask(c.Queue.ConnectionString),
		"queue.name":                   c.Queue.QueueName,
		"queue.max_message_count":      c.Queue.MaxMessageCount,
		"queue.max_wait_time":          c.Queue.MaxWaitTime.String(),
		"store.backend":                c.Store.Backend,
		"store.mongo_uri":              mask(c.Store.MongoURI),
		"store.database":               c.Store.Database,
		"store.sqlite_path":            c.Store.SQLitePath,
		"llm.provider":                 c.LLM.Provider,
		"llm.endpoint":                 c.LLM.Endpoint,
		"llm.api_key":                  mask(c.LLM.APIKey),
		"llm.model":                    c.LLM.Model,
		"llm.embedding_model":          c.LLM.EmbeddingModel,
		"llm.anthropic_api_key":        mask(c.LLM.AnthropicAPIKey),
		"warehouse.database_type":      c.Warehouse.DatabaseType,
		"warehouse.server":             c.Warehouse.Server,
		"warehouse.database":           c.Warehouse.Database,
		"warehouse.client_secret":      mask(c.Warehouse.ClientSecret),
		"warehouse.catalog_dir":        c.Warehouse.CatalogDir,
		"warehouse.max_rows":           c.Warehouse.MaxRows,
		"worker.max_workers":           c.Worker.MaxWorkers,
		"worker.request_timeout":       c.Worker.RequestTimeout.String(),
		"worker.session_idle_timeout":  c.Worker.SessionIdleTimeout.String(),
		"cleanup.days":                 c.Cleanup.RequestRetentionDays,
		"cleanup.interval_hours":       c.Cleanup.IntervalHours,
		"server.port":                  c.Server.Port,
		"auth.jwt_secret":              mask(c.Auth.JWTSecret),
		"auth.api_keys":                keys,
		"logging.level":                c.Logging.Level,
		"logging.format":               c.Logging.Format,
		"logging.dir":                  c.Logging.Dir,
		"health.check_interval":        c.Health.CheckInterval.String(),
		"health.no_message_timeout":    c.Health.NoMessageTimeout.String(),
		"health.max_connection_errors": c.Health.MaxConnectionErrors,
	}
}
