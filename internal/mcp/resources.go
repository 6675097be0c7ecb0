package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/insightshq/nl2sql-processor/internal/catalog"
)

const (
	datasourcesURI  = "insightshq://datasources"
	viewURIPrefix   = "insightshq://views/"
	viewURITemplate = viewURIPrefix + "{datasource}/{view}"
)

// registerResources adds the read-only catalog documents clients can load
// into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {
	srv.AddResource(
		mcp.NewResource(
			datasourcesURI,
			"Datasources",
			mcp.WithResourceDescription(
				"Connected warehouse datasources and the documented views of each.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleDatasourcesResource,
	)

	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			viewURITemplate,
			"View Schema",
			mcp.WithTemplateDescription(
				"Documented schema of one view: description, columns, types and column descriptions.",
			),
			mcp.WithTemplateMIMEType("text/plain"),
		),
		s.handleViewResource,
	)
}

type datasourceInfo struct {
	ID        string   `json:"id"`
	Connected bool     `json:"connected"`
	Views     []string `json:"views"`
}

func (s *MCPServer) handleDatasourcesResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {
	cat := s.toolbox.Catalog()

	connected := make(map[string]bool)
	order := []string{}
	for _, id := range s.toolbox.Warehouses().Datasources() {
		connected[id] = true
		order = append(order, id)
	}
	views := make(map[string][]string)
	for _, v := range cat.Views() {
		if _, seen := views[v.Datasource]; !seen && !connected[v.Datasource] {
			order = append(order, v.Datasource)
		}
		views[v.Datasource] = append(views[v.Datasource], v.Table)
	}

	items := make([]datasourceInfo, 0, len(order))
	for _, id := range order {
		names := views[id]
		if names == nil {
			names = []string{}
		}
		items = append(items, datasourceInfo{ID: id, Connected: connected[id], Views: names})
	}
	return jsonResource(datasourcesURI, items)
}

func (s *MCPServer) handleViewResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	ds, view, ok := strings.Cut(strings.TrimPrefix(uri, viewURIPrefix), "/")
	if !strings.HasPrefix(uri, viewURIPrefix) || !ok || ds == "" || view == "" {
		return nil, fmt.Errorf("invalid view URI %q: expected %s", uri, viewURITemplate)
	}

	doc, found := s.toolbox.Catalog().Lookup(ds, view)
	if !found {
		return nil, fmt.Errorf("view %q not documented for datasource %q", view, ds)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     catalog.FormatSchema(doc),
		},
	}, nil
}
