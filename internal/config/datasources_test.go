package config

import (
	"os"
	"path/filepath"
	"testing"
)

func warehouse(dir string) WarehouseConfig {
	return WarehouseConfig{
		DatabaseType:      "fabric",
		TenantID:          "tenant",
		ClientID:          "client",
		ClientSecret:      "secret",
		Server:            "abc.datawarehouse.fabric.microsoft.com",
		Database:          "sales",
		DefaultDatasource: "default",
		CatalogDir:        dir,
	}
}

func TestLoadDatasourcesSynthesized(t *testing.T) {
	dss, err := LoadDatasources(warehouse(t.TempDir()))
	if err != nil {
		t.Fatalf("LoadDatasources: %v", err)
	}
	if len(dss) != 1 {
		t.Fatalf("got %d datasources, want 1", len(dss))
	}
	ds := dss[0]
	if ds.ID != "default" || ds.Driver != "mssql" || ds.Schema != "dbo" {
		t.Errorf("unexpected datasource: %+v", ds)
	}
	if ds.ClientSecret != "secret" {
		t.Error("client secret should be taken from the environment")
	}
	if ds.Pool.MaxOpenConns == 0 {
		t.Error("default pool should be applied")
	}
}

func TestLoadDatasourcesNoneConfigured(t *testing.T) {
	w := warehouse(t.TempDir())
	w.Server = ""
	dss, err := LoadDatasources(w)
	if err != nil {
		t.Fatalf("LoadDatasources: %v", err)
	}
	if dss != nil {
		t.Errorf("expected no datasources, got %v", dss)
	}
}

func TestLoadDatasourcesFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `[
		{"id": "Sales", "database": "sales_wh"},
		{"id": "local", "driver": "sqlite", "dsn": "file:local.db"}
	]`
	if err := os.WriteFile(filepath.Join(dir, DatasourcesFile), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	dss, err := LoadDatasources(warehouse(dir))
	if err != nil {
		t.Fatalf("LoadDatasources: %v", err)
	}
	if len(dss) != 2 {
		t.Fatalf("got %d datasources, want 2", len(dss))
	}
	if dss[0].Database != "sales_wh" || dss[0].Server == "" {
		t.Errorf("sales datasource not filled: %+v", dss[0])
	}
	if dss[1].Driver != "sqlite" || dss[1].Server != "" || dss[1].Schema != "" {
		t.Errorf("dsn datasource should keep its own settings: %+v", dss[1])
	}
}

func TestLoadDatasourcesRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing id", `[{"database": "x"}]`},
		{"duplicate id", `[{"id": "a"}, {"id": "a"}]`},
		{"bad json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, DatasourcesFile), []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadDatasources(warehouse(dir)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDriverFor(t *testing.T) {
	tests := map[string]string{
		"fabric":     "mssql",
		"postgresql": "postgres",
		"oracle":     "oracle",
		"snowflake":  "snowflake",
	}
	for in, want := range tests {
		got, err := DriverFor(in)
		if err != nil || got != want {
			t.Errorf("DriverFor(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := DriverFor("db2"); err == nil {
		t.Error("expected error for unsupported type")
	}
}
