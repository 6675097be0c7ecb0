package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/insightshq/nl2sql-processor/internal/connector"
	"github.com/insightshq/nl2sql-processor/internal/model"
)

// Severity classifies how a drift affects generated SQL.
type Severity string

const (
	// SeverityAdditive means the warehouse has more than is documented.
	SeverityAdditive Severity = "additive"
	// SeverityBreaking means documented objects no longer match.
	SeverityBreaking Severity = "breaking"
)

// DriftItem describes one difference between a view document and the
// live warehouse.
type DriftItem struct {
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"` // column_missing, column_undocumented, type_changed, view_missing
	View        string   `json:"view"`
	Column      string   `json:"column,omitempty"`
	Documented  string   `json:"documented,omitempty"`
	Live        string   `json:"live,omitempty"`
	Description string   `json:"description"`
}

// DriftReport summarizes the differences for one view.
type DriftReport struct {
	Datasource    string      `json:"datasource"`
	View          string      `json:"view"`
	HasDrift      bool        `json:"has_drift"`
	HasBreaking   bool        `json:"has_breaking"`
	AdditiveCount int         `json:"additive_count"`
	BreakingCount int         `json:"breaking_count"`
	Items         []DriftItem `json:"items"`
	CheckedAt     time.Time   `json:"checked_at"`
}

// VerifyReport summarizes drift across the whole catalog.
type VerifyReport struct {
	TotalViews   int           `json:"total_views"`
	DriftedViews int           `json:"drifted_views"`
	Breaking     int           `json:"breaking"`
	Views        []DriftReport `json:"views"`
}

// ConnectorSource resolves a datasource id to a connector. The connector
// registry satisfies it.
type ConnectorSource interface {
	Get(id string) (connector.Connector, error)
}

// DiffView compares a documented view with its live structure. Column names
// compare case-insensitively; types compare on their base name.
func DiffView(doc model.ViewDoc, live model.TableSchema) DriftReport {
	report := DriftReport{
		Datasource: doc.Datasource,
		View:       doc.Table,
		CheckedAt:  time.Now().UTC(),
	}

	liveByName := make(map[string]model.Column, len(live.Columns))
	for _, col := range live.Columns {
		liveByName[strings.ToLower(col.Name)] = col
	}
	documented := make(map[string]bool, len(doc.Columns))

	for _, col := range doc.Columns {
		documented[strings.ToLower(col.Name)] = true
		liveCol, ok := liveByName[strings.ToLower(col.Name)]
		if !ok {
			report.Items = append(report.Items, DriftItem{
				Severity:    SeverityBreaking,
				Category:    "column_missing",
				View:        doc.Table,
				Column:      col.Name,
				Documented:  col.Type,
				Description: fmt.Sprintf("Documented column %q does not exist in %q", col.Name, doc.Table),
			})
			continue
		}
		if col.Type != "" && baseType(col.Type) != baseType(liveCol.Type) {
			report.Items = append(report.Items, DriftItem{
				Severity:    SeverityBreaking,
				Category:    "type_changed",
				View:        doc.Table,
				Column:      col.Name,
				Documented:  col.Type,
				Live:        liveCol.Type,
				Description: fmt.Sprintf("Column %q is documented as %q but is %q", col.Name, col.Type, liveCol.Type),
			})
		}
	}

	for _, col := range live.Columns {
		if !documented[strings.ToLower(col.Name)] {
			report.Items = append(report.Items, DriftItem{
				Severity:    SeverityAdditive,
				Category:    "column_undocumented",
				View:        doc.Table,
				Column:      col.Name,
				Live:        col.Type,
				Description: fmt.Sprintf("Column %q of %q is not documented", col.Name, doc.Table),
			})
		}
	}

	report.summarize()
	return report
}

func (r *DriftReport) summarize() {
	r.AdditiveCount, r.BreakingCount = 0, 0
	for _, item := range r.Items {
		switch item.Severity {
		case SeverityAdditive:
			r.AdditiveCount++
		case SeverityBreaking:
			r.BreakingCount++
		}
	}
	r.HasDrift = len(r.Items) > 0
	r.HasBreaking = r.BreakingCount > 0
}

// Verify introspects every documented view and diffs it with its document.
// Views whose datasource cannot be reached or that cannot be introspected
// are reported as view_missing.
func Verify(ctx context.Context, cat *Catalog, src ConnectorSource) VerifyReport {
	report := VerifyReport{TotalViews: len(cat.views)}

	for _, doc := range cat.views {
		var dr DriftReport
		live, err := introspect(ctx, src, doc)
		if err != nil {
			dr = DriftReport{
				Datasource: doc.Datasource,
				View:       doc.Table,
				CheckedAt:  time.Now().UTC(),
				Items: []DriftItem{{
					Severity:    SeverityBreaking,
					Category:    "view_missing",
					View:        doc.Table,
					Description: err.Error(),
				}},
			}
			dr.summarize()
		} else {
			dr = DiffView(doc, *live)
		}

		report.Views = append(report.Views, dr)
		if dr.HasDrift {
			report.DriftedViews++
		}
		report.Breaking += dr.BreakingCount
	}
	return report
}

func introspect(ctx context.Context, src ConnectorSource, doc model.ViewDoc) (*model.TableSchema, error) {
	conn, err := src.Get(doc.Datasource)
	if err != nil {
		return nil, fmt.Errorf("datasource %q unavailable: %w", doc.Datasource, err)
	}
	return conn.IntrospectView(ctx, doc.Table)
}

// baseType lowercases a type name and drops any length or precision.
func baseType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}
