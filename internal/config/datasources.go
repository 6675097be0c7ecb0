package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/insightshq/nl2sql-processor/internal/model"
)

// DatasourcesFile is the catalog-relative file listing warehouses.
const DatasourcesFile = "datasources.json"

// driverForDatabaseType maps DATABASE_TYPE values onto connector drivers.
var driverForDatabaseType = map[string]string{
	"fabric":     "mssql",
	"sqlserver":  "mssql",
	"mssql":      "mssql",
	"postgres":   "postgres",
	"postgresql": "postgres",
	"mysql":      "mysql",
	"snowflake":  "snowflake",
	"sqlite":     "sqlite",
	"oracle":     "oracle",
}

// DriverFor returns the connector driver for a DATABASE_TYPE value.
func DriverFor(databaseType string) (string, error) {
	d, ok := driverForDatabaseType[databaseType]
	if !ok {
		return "", fmt.Errorf("unsupported DATABASE_TYPE %q", databaseType)
	}
	return d, nil
}

// LoadDatasources reads <catalog_dir>/datasources.json and fills every entry
// from the warehouse environment. When the file is absent a single
// datasource is synthesized from AZURE_FABRIC_SQL_SERVER and
// AZURE_FABRIC_SQL_DATABASE, if those are set.
func LoadDatasources(w WarehouseConfig) ([]model.Datasource, error) {
	defaultDriver, err := DriverFor(w.DatabaseType)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(w.CatalogDir, DatasourcesFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if w.Server == "" || w.Database == "" {
			return nil, nil
		}
		ds := model.Datasource{ID: w.DefaultDatasource}
		fillDatasource(&ds, w, defaultDriver)
		return []model.Datasource{ds}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var entries []model.Datasource
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	seen := make(map[string]bool, len(entries))
	for i := range entries {
		ds := &entries[i]
		if ds.ID == "" {
			return nil, fmt.Errorf("%s: entry %d has no id", path, i)
		}
		if seen[ds.ID] {
			return nil, fmt.Errorf("%s: duplicate datasource id %q", path, ds.ID)
		}
		seen[ds.ID] = true
		fillDatasource(ds, w, defaultDriver)
	}
	return entries, nil
}

func fillDatasource(ds *model.Datasource, w WarehouseConfig, defaultDriver string) {
	if ds.Driver == "" {
		ds.Driver = defaultDriver
	}
	if ds.Server == "" && ds.DSN == "" {
		ds.Server = w.Server
	}
	if ds.Database == "" && ds.DSN == "" {
		ds.Database = w.Database
	}
	if ds.TenantID == "" {
		ds.TenantID = w.TenantID
	}
	if ds.ClientID == "" {
		ds.ClientID = w.ClientID
	}
	ds.ClientSecret = w.ClientSecret
	if ds.Schema == "" && ds.Driver == "mssql" {
		ds.Schema = "dbo"
	}
	if ds.Pool == (model.PoolConfig{}) {
		ds.Pool = model.DefaultPoolConfig()
	}
}
