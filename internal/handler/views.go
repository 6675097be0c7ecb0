package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"

	"github.com/insightshq/nl2sql-processor/internal/catalog"
	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/openapi"
)

// ViewHandler exposes the documented view catalog the agent works from.
type ViewHandler struct {
	catalog *catalog.Catalog
}

// NewViewHandler creates a ViewHandler.
func NewViewHandler(cat *catalog.Catalog) *ViewHandler {
	return &ViewHandler{catalog: cat}
}

// List returns every documented view, optionally of one datasource.
// GET /api/v1/views
func (h *ViewHandler) List(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var views []model.ViewDoc
	if ds := queryString(r, "datasource"); ds != "" {
		views = h.catalog.ViewsFor(ds)
	} else {
		views = h.catalog.Views()
	}
	if views == nil {
		views = []model.ViewDoc{}
	}
	writeList(w, views, len(views), 0, start)
}

// Get returns the documentation of one view.
// GET /api/v1/views/{datasource}/{view}
func (h *ViewHandler) Get(w http.ResponseWriter, r *http.Request) {
	ds, name := chi.URLParam(r, "datasource"), chi.URLParam(r, "view")
	v, ok := h.catalog.Lookup(ds, name)
	if !ok {
		writeError(w, http.StatusNotFound, "View not found", map[string]interface{}{
			"datasource": ds,
			"view":       name,
		})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// OpenAPIHandler serves the API description. The document only depends on
// the catalog, so it is built once.
type OpenAPIHandler struct {
	catalog *catalog.Catalog
	version string

	once sync.Once
	doc  *openapi3.T
}

// NewOpenAPIHandler creates an OpenAPIHandler.
func NewOpenAPIHandler(cat *catalog.Catalog, version string) *OpenAPIHandler {
	return &OpenAPIHandler{catalog: cat, version: version}
}

// ServeSpec returns the OpenAPI document.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	h.once.Do(func() {
		h.doc = openapi.GenerateSpec("/", h.version, h.catalog.Views())
	})
	writeJSON(w, http.StatusOK, h.doc)
}
