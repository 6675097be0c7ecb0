package agent

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/insightshq/nl2sql-processor/internal/catalog"
	"github.com/insightshq/nl2sql-processor/internal/model"
)

//go:embed templates/instructions.tmpl
var instructionsSource string

var instructionsTmpl = template.Must(template.New("instructions").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(instructionsSource))

// FallbackAnswer is what the model must answer after the last failed query
// attempt.
const FallbackAnswer = "I could not find a reliable answer to your question with the available data. " +
	"Please rephrase it or add more detail, for example the period or the entity you are interested in."

// MaxQueryAttempts is how many failing run_sql_query calls the model may
// make before giving the fallback answer.
const MaxQueryAttempts = 3

// PromptData fills the instructions template.
type PromptData struct {
	Warehouse        string
	MaxRows          int
	LimitHint        string
	QualifiedExample string
	MaxAttempts      int
	Fallback         string
	HasExamples      bool
	Datasources      []string
	Views            []model.ViewDoc
}

// NewPromptData derives the template data for a warehouse driver and a
// catalog.
func NewPromptData(driver string, cat *catalog.Catalog, maxRows int) PromptData {
	d := PromptData{
		MaxRows:     maxRows,
		MaxAttempts: MaxQueryAttempts,
		Fallback:    FallbackAnswer,
	}
	switch driver {
	case "mssql":
		d.Warehouse = "Microsoft Fabric SQL (T-SQL)"
		d.LimitHint = fmt.Sprintf("Always use SELECT TOP %d.", maxRows)
		d.QualifiedExample = "[dbo].[ViewName]"
	case "oracle":
		d.Warehouse = "Oracle"
		d.LimitHint = fmt.Sprintf("Always end the query with FETCH FIRST %d ROWS ONLY.", maxRows)
		d.QualifiedExample = `"SCHEMA"."VIEW_NAME"`
	case "snowflake":
		d.Warehouse = "Snowflake"
		d.LimitHint = fmt.Sprintf("Always end the query with LIMIT %d.", maxRows)
		d.QualifiedExample = `"SCHEMA"."VIEW_NAME"`
	case "mysql":
		d.Warehouse = "MySQL"
		d.LimitHint = fmt.Sprintf("Always end the query with LIMIT %d.", maxRows)
		d.QualifiedExample = "`database`.`view_name`"
	case "sqlite":
		d.Warehouse = "SQLite"
		d.LimitHint = fmt.Sprintf("Always end the query with LIMIT %d.", maxRows)
		d.QualifiedExample = `"view_name"`
	default:
		d.Warehouse = "PostgreSQL"
		d.LimitHint = fmt.Sprintf("Always end the query with LIMIT %d.", maxRows)
		d.QualifiedExample = `"public"."view_name"`
	}
	if cat != nil {
		d.Datasources = cat.Datasources()
		d.Views = cat.Views()
		d.HasExamples = len(cat.Examples()) > 0
	}
	return d
}

// RenderInstructions renders the system prompt.
func RenderInstructions(data PromptData) (string, error) {
	var b strings.Builder
	if err := instructionsTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render instructions: %w", err)
	}
	return b.String(), nil
}
