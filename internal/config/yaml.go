package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of insightshq.yaml. Keys mirror the viper keys
// so any value can also come from the environment.
type File struct {
	Environment string          `yaml:"environment,omitempty"`
	Queue       QueueFile       `yaml:"queue"`
	Store       StoreFile       `yaml:"store"`
	LLM         LLMFile         `yaml:"llm"`
	Warehouse   WarehouseFile   `yaml:"warehouse"`
	Worker      WorkerFile      `yaml:"worker"`
	Cleanup     CleanupFile     `yaml:"cleanup"`
	Server      ServerFile      `yaml:"server"`
	Auth        AuthFile        `yaml:"auth"`
	Logging     LoggingFileConf `yaml:"logging"`
}

// QueueFile configures the Service Bus queue.
type QueueFile struct {
	ConnectionString string `yaml:"connection_string"`
	Name             string `yaml:"name"`
	MaxMessageCount  int    `yaml:"max_message_count"`
	MaxWaitTime      string `yaml:"max_wait_time"`
}

// StoreFile configures persistence.
type StoreFile struct {
	Backend    string `yaml:"backend"`
	MongoURI   string `yaml:"mongo_uri"`
	Database   string `yaml:"database"`
	SQLitePath string `yaml:"sqlite_path"`
}

// LLMFile configures the model provider.
type LLMFile struct {
	Provider       string `yaml:"provider"`
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	APIVersion     string `yaml:"api_version"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// WarehouseFile configures warehouse access and the catalog.
type WarehouseFile struct {
	DatabaseType string `yaml:"database_type"`
	Server       string `yaml:"server"`
	Database     string `yaml:"database"`
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CatalogDir   string `yaml:"catalog_dir"`
	MaxRows      int    `yaml:"max_rows"`
}

// WorkerFile bounds processing concurrency.
type WorkerFile struct {
	MaxWorkers     int    `yaml:"max_workers"`
	RequestTimeout string `yaml:"request_timeout"`
}

// CleanupFile controls retention.
type CleanupFile struct {
	Days             int `yaml:"days"`
	ConversationDays int `yaml:"conversation_days"`
	HealthDays       int `yaml:"health_days"`
	IntervalHours    int `yaml:"interval_hours"`
}

// ServerFile configures the status API.
type ServerFile struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// AuthFile holds status API credentials.
type AuthFile struct {
	JWTSecret string   `yaml:"jwt_secret"`
	APIKeys   []string `yaml:"api_keys"`
}

// LoggingFileConf controls log output.
type LoggingFileConf struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// ReadConfigFile loads a YAML file into v. Environment variables referenced
// as ${VAR_NAME} in the file are expanded before parsing.
func ReadConfigFile(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	content := os.ExpandEnv(string(data))

	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewBufferString(content)); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// DefaultFile returns a File pre-filled with defaults and ${VAR}
// placeholders for secrets.
func DefaultFile() *File {
	return &File{
		Queue: QueueFile{
			ConnectionString: "${AZURE_SERVICE_BUS_CONNECTION_STRING}",
			Name:             "nl2sql-requests",
			MaxMessageCount:  10,
			MaxWaitTime:      "5s",
		},
		Store: StoreFile{
			Backend:    "mongo",
			MongoURI:   "${MONGODB_CONNECTION_STRING}",
			Database:   "insightshq-db",
			SQLitePath: "insightshq.db",
		},
		LLM: LLMFile{
			Provider:   "azure-openai",
			Endpoint:   "${AZURE_OPENAI_API_ENDPOINT}",
			APIKey:     "${AZURE_OPENAI_API_KEY}",
			APIVersion: "2024-08-01-preview",
			Model:      "gpt-4o-mini",
		},
		Warehouse: WarehouseFile{
			DatabaseType: "fabric",
			Server:       "${AZURE_FABRIC_SQL_SERVER}",
			Database:     "${AZURE_FABRIC_SQL_DATABASE}",
			TenantID:     "${AZURE_TENANT_ID}",
			ClientID:     "${AZURE_CLIENT_ID}",
			ClientSecret: "${AZURE_CLIENT_SECRET}",
			CatalogDir:   "nl2sql",
			MaxRows:      50,
		},
		Worker: WorkerFile{
			MaxWorkers:     10,
			RequestTimeout: "120s",
		},
		Cleanup: CleanupFile{
			Days:             7,
			ConversationDays: 30,
			HealthDays:       7,
			IntervalHours:    1,
		},
		Server: ServerFile{
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Logging: LoggingFileConf{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file. It
// refuses to overwrite an existing file unless force is set.
func WriteDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	data, err := yaml.Marshal(DefaultFile())
	if err != nil {
		return err
	}
	header := []byte("# InsightsHQ NL2SQL processor configuration\n# Every key can also be set through its environment variable.\n\n")
	return os.WriteFile(path, append(header, data...), 0644)
}
