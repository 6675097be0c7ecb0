// Package catalog holds the curated documentation of the warehouse views the
// agent may query, together with example question/query pairs used as
// retrieval material.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/insightshq/nl2sql-processor/internal/model"
)

// Sub-directories of the catalog directory.
const (
	TablesDir  = "tables"
	QueriesDir = "queries"
)

// ErrNoCatalog is returned when the tables directory does not exist.
var ErrNoCatalog = errors.New("catalog tables directory not found")

// Catalog is an immutable, in-memory view catalog.
type Catalog struct {
	views    []model.ViewDoc
	examples []model.ExampleQuery
	index    map[string]int
}

// New builds a catalog from already decoded entries.
func New(views []model.ViewDoc, examples []model.ExampleQuery) *Catalog {
	c := &Catalog{
		views:    views,
		examples: examples,
		index:    make(map[string]int, len(views)),
	}
	for i, v := range views {
		c.index[key(v.Datasource, v.Table)] = i
	}
	return c
}

// Load reads every view document under dir/tables and every example file
// under dir/queries. The queries directory is optional. A file that fails
// to parse aborts loading with an error naming it.
func Load(dir string) (*Catalog, error) {
	tablesDir := filepath.Join(dir, TablesDir)
	if _, err := os.Stat(tablesDir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoCatalog, tablesDir)
		}
		return nil, err
	}

	var views []model.ViewDoc
	err := eachJSON(tablesDir, func(path string, data []byte) error {
		var v model.ViewDoc
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("failed to parse JSON file '%s': %w", filepath.Base(path), err)
		}
		if v.Table == "" {
			return fmt.Errorf("view file '%s' has no table name", filepath.Base(path))
		}
		views = append(views, v)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var examples []model.ExampleQuery
	queriesDir := filepath.Join(dir, QueriesDir)
	if _, err := os.Stat(queriesDir); err == nil {
		err = eachJSON(queriesDir, func(path string, data []byte) error {
			batch, err := decodeExamples(data)
			if err != nil {
				return fmt.Errorf("failed to parse JSON file '%s': %w", filepath.Base(path), err)
			}
			examples = append(examples, batch...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return New(views, examples), nil
}

// eachJSON calls fn for every *.json file in dir in name order.
func eachJSON(dir string, fn func(path string, data []byte) error) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return err
	}
	sort.Strings(paths)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		if err := fn(p, data); err != nil {
			return err
		}
	}
	return nil
}

// decodeExamples accepts either a JSON array of examples or a single object.
func decodeExamples(data []byte) ([]model.ExampleQuery, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var out []model.ExampleQuery
		err := json.Unmarshal(trimmed, &out)
		return out, err
	}
	var one model.ExampleQuery
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []model.ExampleQuery{one}, nil
}

func key(datasource, view string) string {
	return strings.ToLower(datasource) + "\x00" + strings.ToLower(view)
}

// Lookup returns the documented view for a datasource. Names compare
// case-insensitively.
func (c *Catalog) Lookup(datasource, view string) (model.ViewDoc, bool) {
	i, ok := c.index[key(datasource, view)]
	if !ok {
		return model.ViewDoc{}, false
	}
	return c.views[i], true
}

// Views returns all documented views in load order.
func (c *Catalog) Views() []model.ViewDoc { return c.views }

// Examples returns all example queries in load order.
func (c *Catalog) Examples() []model.ExampleQuery { return c.examples }

// Datasources returns the distinct datasource ids referenced by views.
func (c *Catalog) Datasources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range c.views {
		if !seen[v.Datasource] {
			seen[v.Datasource] = true
			out = append(out, v.Datasource)
		}
	}
	sort.Strings(out)
	return out
}

// ViewsFor returns the views documented for one datasource.
func (c *Catalog) ViewsFor(datasource string) []model.ViewDoc {
	var out []model.ViewDoc
	for _, v := range c.views {
		if strings.EqualFold(v.Datasource, datasource) {
			out = append(out, v)
		}
	}
	return out
}
