package model

import "time"

// Datasource describes one warehouse the agent may query. Fabric SQL
// datasources are addressed by server and database and authenticate with an
// Azure AD service principal; other drivers take a DSN.
type Datasource struct {
	ID             string     `json:"id" yaml:"id"`
	Label          string     `json:"label,omitempty" yaml:"label,omitempty"`
	Driver         string     `json:"driver" yaml:"driver"` // mssql, postgres, mysql, snowflake, sqlite, oracle
	Server         string     `json:"server,omitempty" yaml:"server,omitempty"`
	Database       string     `json:"database,omitempty" yaml:"database,omitempty"`
	TenantID       string     `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	ClientID       string     `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	ClientSecret   string     `json:"-" yaml:"-"`
	DSN            string     `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	Schema         string     `json:"schema,omitempty" yaml:"schema,omitempty"`
	PrivateKeyPath string     `json:"private_key_path,omitempty" yaml:"private_key_path,omitempty"`
	Pool           PoolConfig `json:"pool" yaml:"pool"`
}

// PoolConfig controls the database connection pool behavior for a datasource.
type PoolConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// DefaultPoolConfig returns pool defaults sized for a worker that runs at
// most a handful of concurrent warehouse queries.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}
