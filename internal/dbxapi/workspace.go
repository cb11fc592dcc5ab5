package dbxapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"dpm/internal/domain"
)

// CreateProjectFolder creates the project's workspace folder and returns
// its path. Creating an existing folder is a no-op on the platform side.
func (c *Client) CreateProjectFolder(ctx context.Context, applicationName string) (string, error) {
	path := "/Workspace/" + applicationName
	out := c.exec.Execute(ctx, Request{
		Method: http.MethodPost,
		URL:    c.workspaceURL("/api/2.0/workspace/mkdirs"),
		Body:   map[string]string{"path": path},
	})
	if !out.OK() {
		return "", out.DomainError()
	}
	return path, nil
}

// LookupObjectID resolves a workspace object (folder, notebook) to its
// numeric id. The object is a required reference, so a 404 is a
// NotFoundError.
func (c *Client) LookupObjectID(ctx context.Context, path string) (string, error) {
	q := url.Values{"path": {path}}
	out := c.exec.Execute(ctx, Request{Method: http.MethodGet, URL: c.workspaceURL("/api/2.0/workspace/get-status"), Query: q})
	if out.StatusCode == http.StatusNotFound {
		return "", domain.ErrNotFound("workspace object not found at path %q", path)
	}
	if !out.OK() {
		return "", out.DomainError()
	}
	id := objectIDField(out.Body)
	if id == "" {
		return "", fmt.Errorf("object_id missing from response for path %q", path)
	}
	return id, nil
}

// SetFolderPermissions replaces the folder's access control list in a
// single PUT.
func (c *Client) SetFolderPermissions(ctx context.Context, path string, acl []domain.AccessControl) error {
	objectID, err := c.LookupObjectID(ctx, path)
	if err != nil {
		return err
	}
	return c.putPermissions(ctx, "/api/2.0/permissions/directories/"+objectID, acl)
}

// SetClusterPermissions replaces the cluster's access control list.
func (c *Client) SetClusterPermissions(ctx context.Context, clusterID string, acl []domain.AccessControl) error {
	if clusterID == "" {
		return domain.ErrValidation("cluster id required for permission assignment")
	}
	return c.putPermissions(ctx, "/api/2.0/permissions/clusters/"+clusterID, acl)
}

// SetWarehousePermissions replaces the SQL warehouse's access control list.
func (c *Client) SetWarehousePermissions(ctx context.Context, warehouseID string, acl []domain.AccessControl) error {
	if warehouseID == "" {
		return domain.ErrValidation("warehouse id required for permission assignment")
	}
	return c.putPermissions(ctx, "/api/2.0/permissions/sql/warehouses/"+warehouseID, acl)
}

func (c *Client) putPermissions(ctx context.Context, path string, acl []domain.AccessControl) error {
	out := c.exec.Execute(ctx, Request{
		Method: http.MethodPut,
		URL:    c.workspaceURL(path),
		Body:   map[string]interface{}{"access_control_list": acl},
	})
	if !out.OK() {
		return out.DomainError()
	}
	return nil
}

// objectIDField tolerates both numeric and string object ids.
func objectIDField(body map[string]interface{}) string {
	switch v := body["object_id"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
