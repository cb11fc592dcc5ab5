package dbxapi

import (
	"context"
	"net/http"
	"net/url"

	"dpm/internal/domain"
)

// ListCatalogs returns the names of all catalogs in the metastore.
func (c *Client) ListCatalogs(ctx context.Context) ([]string, error) {
	out := c.exec.Execute(ctx, Request{Method: http.MethodGet, URL: c.workspaceURL("/api/2.1/unity-catalog/catalogs")})
	if !out.OK() {
		return nil, out.DomainError()
	}
	return namesOf(resourceList(out.Body, "catalogs")), nil
}

// ListSchemas returns the schema names in a catalog.
func (c *Client) ListSchemas(ctx context.Context, catalog string) ([]string, error) {
	q := url.Values{"catalog_name": {catalog}}
	out := c.exec.Execute(ctx, Request{Method: http.MethodGet, URL: c.workspaceURL("/api/2.1/unity-catalog/schemas"), Query: q})
	if !out.OK() {
		return nil, out.DomainError()
	}
	return namesOf(resourceList(out.Body, "schemas")), nil
}

// ListTables returns the table names in a schema.
func (c *Client) ListTables(ctx context.Context, catalog, schema string) ([]string, error) {
	q := url.Values{"catalog_name": {catalog}, "schema_name": {schema}}
	out := c.exec.Execute(ctx, Request{Method: http.MethodGet, URL: c.workspaceURL("/api/2.1/unity-catalog/tables"), Query: q})
	if !out.OK() {
		return nil, out.DomainError()
	}
	return namesOf(resourceList(out.Body, "tables")), nil
}

// DescribeTable fetches a table's column schema from the catalog API
// without requiring a running warehouse.
func (c *Client) DescribeTable(ctx context.Context, fullName string) ([]domain.TableColumn, error) {
	out := c.exec.Execute(ctx, Request{Method: http.MethodGet, URL: c.workspaceURL("/api/2.1/unity-catalog/tables/" + fullName)})
	if !out.OK() {
		return nil, out.DomainError()
	}
	var columns []domain.TableColumn
	for _, col := range resourceList(out.Body, "columns") {
		colType := stringField(col, "type_text")
		if colType == "" {
			colType = stringField(col, "type_name")
		}
		columns = append(columns, domain.TableColumn{
			Name: stringField(col, "name"),
			Type: colType,
		})
	}
	return columns, nil
}

func namesOf(resources []map[string]interface{}) []string {
	names := make([]string, 0, len(resources))
	for _, r := range resources {
		if name := stringField(r, "name"); name != "" {
			names = append(names, name)
		}
	}
	return names
}
