package openapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/insightshq/nl2sql-processor/internal/model"
)

const ref = "#/components/schemas/"

// GenerateSpec builds the OpenAPI 3.1 document of the status API. Every
// documented warehouse view also gets a component schema describing its
// rows, so API consumers can see what the agent queries.
func GenerateSpec(baseURL, version string, views []model.ViewDoc) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "InsightsHQ NL2SQL API",
			Description: "Submit natural-language questions and read their answers, conversations and processor health.",
			Version:     version,
		},
		Servers: openapi3.Servers{{URL: baseURL}},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{
		"apiKey": &openapi3.SecuritySchemeRef{Value: &openapi3.SecurityScheme{
			Type: "apiKey", In: "header", Name: "X-API-Key",
		}},
		"bearerAuth": &openapi3.SecuritySchemeRef{Value: &openapi3.SecurityScheme{
			Type: "http", Scheme: "bearer", BearerFormat: "JWT",
		}},
	}
	doc.Components = &components
	doc.Security = openapi3.SecurityRequirements{
		{"apiKey": {}},
		{"bearerAuth": {}},
	}
	doc.Paths = openapi3.NewPaths()

	addModelSchemas(doc)
	addProbePaths(doc)
	addRequestPaths(doc)
	addHistoryPaths(doc)
	addViewPaths(doc)
	for _, v := range views {
		doc.Components.Schemas[viewSchemaName(v.Datasource, v.Table)] = viewRowSchema(v)
	}
	return doc
}

func addModelSchemas(doc *openapi3.T) {
	s := doc.Components.Schemas
	str := openapi3.NewStringSchema
	unix := func() *openapi3.Schema {
		return openapi3.NewInt64Schema().WithMin(0)
	}

	s["ErrorResponse"] = openapi3.NewSchemaRef("", openapi3.NewObjectSchema().
		WithProperty("error", openapi3.NewObjectSchema().
			WithProperty("code", openapi3.NewInt32Schema()).
			WithProperty("message", str()).
			WithProperty("context", openapi3.NewObjectSchema())))

	submit := openapi3.NewObjectSchema().
		WithProperty("question", str().WithMinLength(1)).
		WithProperty("user_email", str()).
		WithProperty("assistant_id", str()).
		WithProperty("thread_id", str()).
		WithProperty("request_type", str()).
		WithProperty("report_name", str())
	submit.Required = []string{"question"}
	s["SubmitRequest"] = openapi3.NewSchemaRef("", submit)

	s["SubmitResponse"] = openapi3.NewSchemaRef("", openapi3.NewObjectSchema().
		WithProperty("request_id", str()).
		WithProperty("status", statusSchema()))

	s["Usage"] = openapi3.NewSchemaRef("", openapi3.NewObjectSchema().
		WithProperty("prompt_tokens", openapi3.NewInt32Schema()).
		WithProperty("completion_tokens", openapi3.NewInt32Schema()))

	result := openapi3.NewObjectSchema().
		WithProperty("status", str().WithEnum(string(model.ResultSuccess), string(model.ResultError))).
		WithProperty("response", str()).
		WithProperty("message", str()).
		WithProperty("error", str()).
		WithProperty("assistant_id", str()).
		WithProperty("thread_id", str()).
		WithProperty("context", str())
	result.Properties["usage"] = openapi3.NewSchemaRef(ref+"Usage", nil)
	s["Result"] = openapi3.NewSchemaRef("", result)

	req := openapi3.NewObjectSchema().
		WithProperty("request_id", str()).
		WithProperty("status", statusSchema()).
		WithProperty("request_type", str()).
		WithProperty("user_email", str()).
		WithProperty("assistant_id", str()).
		WithProperty("thread_id", str()).
		WithProperty("created_at", unix()).
		WithProperty("updated_at", unix())
	req.Properties["result"] = openapi3.NewSchemaRef(ref+"Result", nil)
	s["Request"] = openapi3.NewSchemaRef("", req)

	s["Conversation"] = openapi3.NewSchemaRef("", openapi3.NewObjectSchema().
		WithProperty("request_id", str()).
		WithProperty("question", str()).
		WithProperty("answer", str()).
		WithProperty("user_email", str()).
		WithProperty("assistant_id", str()).
		WithProperty("thread_id", str()).
		WithProperty("report_name", str()).
		WithProperty("request_type", str()).
		WithProperty("context", str()).
		WithProperty("created_at", unix()).
		WithProperty("updated_at", unix()))

	s["HealthEvent"] = openapi3.NewSchemaRef("", openapi3.NewObjectSchema().
		WithProperty("type", str()).
		WithProperty("error_type", str()).
		WithProperty("details", openapi3.NewObjectSchema()).
		WithProperty("timestamp", unix()).
		WithProperty("container_id", str()))

	col := openapi3.NewObjectSchema().
		WithProperty("name", str()).
		WithProperty("description", str()).
		WithProperty("type", str())
	s["ViewDoc"] = openapi3.NewSchemaRef("", openapi3.NewObjectSchema().
		WithProperty("table", str()).
		WithProperty("description", str()).
		WithProperty("datasource", str()).
		WithProperty("columns", openapi3.NewArraySchema().WithItems(col)))
}

func statusSchema() *openapi3.Schema {
	return openapi3.NewStringSchema().WithEnum(
		string(model.StatusPending), string(model.StatusProcessing),
		string(model.StatusCompleted), string(model.StatusError))
}

func addProbePaths(doc *openapi3.T) {
	probe := openapi3.NewObjectSchema().
		WithProperty("status", openapi3.NewStringSchema()).
		WithProperty("checks", openapi3.NewObjectSchema())
	noAuth := openapi3.NewSecurityRequirements()

	doc.AddOperation("/healthz", http.MethodGet, &openapi3.Operation{
		Tags:        []string{"probes"},
		Summary:     "Liveness",
		Description: "HEALTHY while the processing loop heartbeat is fresh, 503 UNHEALTHY otherwise.",
		OperationID: "healthz",
		Security:    noAuth,
		Responses:   newResponses("200", "Processor alive", openapi3.NewSchemaRef("", probe)),
	})
	doc.AddOperation("/readyz", http.MethodGet, &openapi3.Operation{
		Tags:        []string{"probes"},
		Summary:     "Readiness",
		Description: "Checks the document store, the queue and every configured warehouse.",
		OperationID: "readyz",
		Security:    noAuth,
		Responses:   newResponses("200", "All dependencies reachable", openapi3.NewSchemaRef("", probe)),
	})
}

func addRequestPaths(doc *openapi3.T) {
	doc.AddOperation("/api/v1/requests", http.MethodPost, &openapi3.Operation{
		Tags:        []string{"requests"},
		Summary:     "Submit a question",
		Description: "Records the request as pending and enqueues it for the processor. Poll the request to read the answer.",
		OperationID: "submit_request",
		RequestBody: &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithJSONSchemaRef(openapi3.NewSchemaRef(ref+"SubmitRequest", nil))},
		Responses: newResponses("202", "Question enqueued", openapi3.NewSchemaRef(ref+"SubmitResponse", nil)),
	})
	doc.AddOperation("/api/v1/requests", http.MethodGet, &openapi3.Operation{
		Tags:        []string{"requests"},
		Summary:     "List a user's requests",
		OperationID: "list_requests",
		Parameters: openapi3.Parameters{
			queryParam("user_email", "Requests of this user, newest first. Required unless the token names a user.", openapi3.NewStringSchema()),
			limitParam(),
		},
		Responses: newResponses("200", "Requests", listSchema("Request")),
	})
	doc.AddOperation("/api/v1/requests/{request_id}", http.MethodGet, &openapi3.Operation{
		Tags:        []string{"requests"},
		Summary:     "Get a request and its result",
		OperationID: "get_request",
		Parameters:  openapi3.Parameters{pathParam("request_id")},
		Responses:   newResponses("200", "Request", openapi3.NewSchemaRef(ref+"Request", nil)),
	})
}

func addHistoryPaths(doc *openapi3.T) {
	doc.AddOperation("/api/v1/conversations", http.MethodGet, &openapi3.Operation{
		Tags:        []string{"history"},
		Summary:     "List answered questions",
		OperationID: "list_conversations",
		Parameters: openapi3.Parameters{
			queryParam("user_email", "Filter by user.", openapi3.NewStringSchema()),
			queryParam("assistant_id", "Filter by assistant session.", openapi3.NewStringSchema()),
			queryParam("thread_id", "Filter by thread.", openapi3.NewStringSchema()),
			limitParam(),
		},
		Responses: newResponses("200", "Conversations, newest first", listSchema("Conversation")),
	})
	doc.AddOperation("/api/v1/health-events", http.MethodGet, &openapi3.Operation{
		Tags:        []string{"health"},
		Summary:     "List container health events",
		OperationID: "list_health_events",
		Parameters: openapi3.Parameters{
			queryParam("hours", "Look back this many hours (default 24).", openapi3.NewInt32Schema()),
			queryParam("container_id", "Filter by container.", openapi3.NewStringSchema()),
			queryParam("error_type", "Filter by event type.", openapi3.NewStringSchema()),
			limitParam(),
		},
		Responses: newResponses("200", "Health events, newest first", listSchema("HealthEvent")),
	})
}

func addViewPaths(doc *openapi3.T) {
	doc.AddOperation("/api/v1/views", http.MethodGet, &openapi3.Operation{
		Tags:        []string{"catalog"},
		Summary:     "List documented warehouse views",
		OperationID: "list_views",
		Parameters: openapi3.Parameters{
			queryParam("datasource", "Only views of this datasource.", openapi3.NewStringSchema()),
		},
		Responses: newResponses("200", "Views", listSchema("ViewDoc")),
	})
	doc.AddOperation("/api/v1/views/{datasource}/{view}", http.MethodGet, &openapi3.Operation{
		Tags:        []string{"catalog"},
		Summary:     "Get the documented schema of a view",
		OperationID: "get_view",
		Parameters:  openapi3.Parameters{pathParam("datasource"), pathParam("view")},
		Responses:   newResponses("200", "View", openapi3.NewSchemaRef(ref+"ViewDoc", nil)),
	})
}

// viewRowSchema describes one row of a documented view.
func viewRowSchema(v model.ViewDoc) *openapi3.SchemaRef {
	s := openapi3.NewObjectSchema()
	s.Description = v.Description
	cols := append([]model.ColumnDoc(nil), v.Columns...)
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	for _, c := range cols {
		prop := columnTypeSchema(MapDBType(c.Type))
		prop.Description = c.Description
		s.WithProperty(c.Name, prop)
	}
	return openapi3.NewSchemaRef("", s)
}

func columnTypeSchema(m TypeMapping) *openapi3.Schema {
	s := &openapi3.Schema{Type: &openapi3.Types{m.Type}, Format: m.Format}
	if m.Type == "array" {
		s.Items = &openapi3.SchemaRef{Value: &openapi3.Schema{}}
	}
	return s
}

func queryParam(name, desc string, schema *openapi3.Schema) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: openapi3.NewQueryParameter(name).
		WithDescription(desc).
		WithSchema(schema)}
}

func pathParam(name string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: openapi3.NewPathParameter(name).
		WithRequired(true).
		WithSchema(openapi3.NewStringSchema())}
}

func limitParam() *openapi3.ParameterRef {
	return queryParam("limit", "Maximum number of records to return (default 50).",
		openapi3.NewInt32Schema().WithMin(1))
}

// listSchema is the {"resource": [...], "meta": {...}} envelope.
func listSchema(item string) *openapi3.SchemaRef {
	meta := openapi3.NewObjectSchema().
		WithProperty("count", openapi3.NewInt32Schema()).
		WithProperty("limit", openapi3.NewInt32Schema()).
		WithProperty("took_ms", openapi3.NewFloat64Schema())
	env := openapi3.NewObjectSchema().WithProperty("meta", meta)
	env.Properties["resource"] = openapi3.NewSchemaRef("", &openapi3.Schema{
		Type:  &openapi3.Types{"array"},
		Items: openapi3.NewSchemaRef(ref+item, nil),
	})
	return openapi3.NewSchemaRef("", env)
}

// newResponses builds the success response plus the standard errors.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()
	responses.Set(statusCode, &openapi3.ResponseRef{Value: openapi3.NewResponse().
		WithDescription(description).
		WithContent(openapi3.NewContentWithJSONSchemaRef(schema))})

	errorRef := openapi3.NewSchemaRef(ref+"ErrorResponse", nil)
	for code, desc := range map[string]string{
		"400": "Bad request",
		"401": "Unauthorized",
		"404": "Not found",
		"500": "Internal server error",
		"503": "Service unavailable",
	} {
		responses.Set(code, &openapi3.ResponseRef{Value: openapi3.NewResponse().
			WithDescription(desc).
			WithContent(openapi3.NewContentWithJSONSchemaRef(errorRef))})
	}
	return responses
}

// viewSchemaName creates a component name such as "View_Default_BudgetingView".
func viewSchemaName(datasource, view string) string {
	s := "View_" + capitalize(datasource) + "_" + capitalize(view)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

