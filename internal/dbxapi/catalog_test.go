package dbxapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dpm/internal/domain"
)

// fakeCatalog serves the unity-catalog metadata APIs.
type fakeCatalog struct {
	catalogs []string
	schemas  map[string][]string            // catalog -> schema names
	tables   map[string][]string            // "catalog.schema" -> table names
	columns  map[string][]map[string]string // full table name -> column objects
}

func (f *fakeCatalog) handler() http.HandlerFunc {
	named := func(names []string) []map[string]interface{} {
		out := make([]map[string]interface{}, 0, len(names))
		for _, n := range names {
			out = append(out, map[string]interface{}{"name": n})
		}
		return out
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		q := r.URL.Query()

		switch {
		case r.URL.Path == "/api/2.1/unity-catalog/catalogs":
			enc.Encode(map[string]interface{}{"catalogs": named(f.catalogs)}) //nolint:errcheck

		case r.URL.Path == "/api/2.1/unity-catalog/schemas":
			enc.Encode(map[string]interface{}{"schemas": named(f.schemas[q.Get("catalog_name")])}) //nolint:errcheck

		case r.URL.Path == "/api/2.1/unity-catalog/tables":
			key := q.Get("catalog_name") + "." + q.Get("schema_name")
			enc.Encode(map[string]interface{}{"tables": named(f.tables[key])}) //nolint:errcheck

		case strings.HasPrefix(r.URL.Path, "/api/2.1/unity-catalog/tables/"):
			fullName := strings.TrimPrefix(r.URL.Path, "/api/2.1/unity-catalog/tables/")
			cols, ok := f.columns[fullName]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				enc.Encode(map[string]interface{}{"error_code": "TABLE_DOES_NOT_EXIST"}) //nolint:errcheck
				return
			}
			enc.Encode(map[string]interface{}{"name": fullName, "columns": cols}) //nolint:errcheck

		default:
			http.NotFound(w, r)
		}
	}
}

func TestListCatalogs(t *testing.T) {
	srv := httptest.NewServer((&fakeCatalog{catalogs: []string{"main", "dev"}}).handler())
	defer srv.Close()

	names, err := newTestClient(srv).ListCatalogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "dev"}, names)
}

func TestListSchemasScopedToCatalog(t *testing.T) {
	cat := &fakeCatalog{schemas: map[string][]string{
		"main": {"sales", "finance"},
		"dev":  {"scratch"},
	}}
	srv := httptest.NewServer(cat.handler())
	defer srv.Close()
	client := newTestClient(srv)
	ctx := context.Background()

	names, err := client.ListSchemas(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"sales", "finance"}, names)

	names, err = client.ListSchemas(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, []string{"scratch"}, names)
}

func TestListTables(t *testing.T) {
	cat := &fakeCatalog{tables: map[string][]string{"main.sales": {"orders", "refunds"}}}
	srv := httptest.NewServer(cat.handler())
	defer srv.Close()

	names, err := newTestClient(srv).ListTables(context.Background(), "main", "sales")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "refunds"}, names)
}

func TestDescribeTableTypeFallback(t *testing.T) {
	cat := &fakeCatalog{columns: map[string][]map[string]string{
		"main.sales.orders": {
			{"name": "order_id", "type_text": "bigint", "type_name": "LONG"},
			{"name": "region", "type_name": "STRING"},
		},
	}}
	srv := httptest.NewServer(cat.handler())
	defer srv.Close()

	cols, err := newTestClient(srv).DescribeTable(context.Background(), "main.sales.orders")
	require.NoError(t, err)
	require.Len(t, cols, 2)

	// type_text wins; type_name fills in when it is absent.
	assert.Equal(t, domain.TableColumn{Name: "order_id", Type: "bigint"}, cols[0])
	assert.Equal(t, domain.TableColumn{Name: "region", Type: "STRING"}, cols[1])
}

func TestDescribeTableMissingIsRemoteError(t *testing.T) {
	srv := httptest.NewServer((&fakeCatalog{}).handler())
	defer srv.Close()

	_, err := newTestClient(srv).DescribeTable(context.Background(), "main.sales.ghost")

	var remote *domain.RemoteAPIError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusNotFound, remote.StatusCode)
}
