package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrNotConnected is returned by a connector used before Connect.
var ErrNotConnected = errors.New("connector not connected")

// Pool is the connection pool and default schema every driver embeds.
type Pool struct {
	Conn   *sqlx.DB
	Schema string
}

// Open connects with the named database/sql driver and applies the pool
// limits of cfg. label prefixes connection errors.
func (p *Pool) Open(driverName, label string, cfg ConnectionConfig) error {
	db, err := sqlx.Connect(driverName, cfg.DSN)
	if err != nil {
		return fmt.Errorf("%s connect: %w", label, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.SchemaName != "" {
		p.Schema = cfg.SchemaName
	}
	p.Conn = db
	return nil
}

// Disconnect closes the pool. It is a no-op before Connect.
func (p *Pool) Disconnect() error {
	if p.Conn == nil {
		return nil
	}
	err := p.Conn.Close()
	p.Conn = nil
	return err
}

// Ping checks the pool can reach the warehouse.
func (p *Pool) Ping(ctx context.Context) error {
	if p.Conn == nil {
		return ErrNotConnected
	}
	return p.Conn.PingContext(ctx)
}

// DB returns the sqlx pool, nil before Connect.
func (p *Pool) DB() *sqlx.DB { return p.Conn }
