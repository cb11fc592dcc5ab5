package dbxapi

import (
	"context"
	"fmt"
	"net/http"

	"dpm/internal/domain"
)

const clusterSparkVersion = "16.4.x-scala2.12"

// LookupPolicyID resolves a cluster policy by name. The policy is a
// required reference object, so absence is a NotFoundError.
func (c *Client) LookupPolicyID(ctx context.Context, name string) (string, error) {
	out := c.exec.Execute(ctx, Request{Method: http.MethodGet, URL: c.workspaceURL("/api/2.0/policies/clusters/list")})
	if !out.OK() {
		return "", out.DomainError()
	}
	for _, policy := range resourceList(out.Body, "policies") {
		if stringField(policy, "name") == name {
			return stringField(policy, "policy_id"), nil
		}
	}
	return "", domain.ErrNotFound("cluster policy %q not found in the workspace", name)
}

// LookupClusterID resolves a cluster by exact name. Absence is a normal
// negative result ("", nil) that triggers the create path.
func (c *Client) LookupClusterID(ctx context.Context, name string) (string, error) {
	out := c.exec.Execute(ctx, Request{Method: http.MethodGet, URL: c.workspaceURL("/api/2.0/clusters/list")})
	if !out.OK() {
		return "", out.DomainError()
	}
	for _, cluster := range resourceList(out.Body, "clusters") {
		if stringField(cluster, "cluster_name") == name {
			return stringField(cluster, "cluster_id"), nil
		}
	}
	return "", nil
}

// CreateAllPurposeCluster provisions an all-purpose cluster named after
// the application, reusing an existing cluster of the same name.
func (c *Client) CreateAllPurposeCluster(ctx context.Context, spec domain.ClusterSpec) (string, error) {
	existing, err := c.LookupClusterID(ctx, spec.ApplicationName)
	if err != nil {
		return "", err
	}
	if existing != "" {
		c.logger.Info("cluster already exists, reusing",
			"cluster", spec.ApplicationName, "cluster_id", existing)
		return existing, nil
	}

	workers := spec.BaseWorkers
	if workers < 1 {
		workers = 1
	}
	payload := map[string]interface{}{
		"cluster_name":            spec.ApplicationName,
		"spark_version":           clusterSparkVersion,
		"node_type_id":            spec.NodeTypeID,
		"driver_node_type_id":     spec.NodeTypeID,
		"autotermination_minutes": 10,
		"autoscale": map[string]int{
			"min_workers": maxInt(1, workers),
			"max_workers": maxInt(2, 2*workers),
		},
		"spark_env_vars":     map[string]string{"ENV_NAME": spec.Environment},
		"custom_tags":        spec.Tags.Map(),
		"data_security_mode": "USER_ISOLATION",
		"policy_id":          spec.PolicyID,
	}

	out := c.exec.Execute(ctx, Request{Method: http.MethodPost, URL: c.workspaceURL("/api/2.0/clusters/create"), Body: payload})
	if !out.OK() {
		return "", out.DomainError()
	}
	id := stringField(out.Body, "cluster_id")
	if id == "" {
		return "", fmt.Errorf("cluster create returned no cluster_id for %q: %s", spec.ApplicationName, out.BodyText())
	}
	c.logger.Info("cluster created", "cluster", spec.ApplicationName, "cluster_id", id)
	return id, nil
}

// LookupWarehouseID resolves a SQL warehouse by exact name. Absence is a
// normal negative result ("", nil).
func (c *Client) LookupWarehouseID(ctx context.Context, name string) (string, error) {
	out := c.exec.Execute(ctx, Request{Method: http.MethodGet, URL: c.workspaceURL("/api/2.0/sql/warehouses")})
	if !out.OK() {
		return "", out.DomainError()
	}
	for _, wh := range resourceList(out.Body, "warehouses") {
		if stringField(wh, "name") == name {
			return stringField(wh, "id"), nil
		}
	}
	return "", nil
}

// CreateSQLWarehouse provisions the project reporting warehouse, reusing
// an existing warehouse of the same name.
func (c *Client) CreateSQLWarehouse(ctx context.Context, spec domain.WarehouseSpec) (string, error) {
	name := spec.ApplicationName + "_Reporting_wh"

	existing, err := c.LookupWarehouseID(ctx, name)
	if err != nil {
		return "", err
	}
	if existing != "" {
		c.logger.Info("sql warehouse already exists, reusing",
			"warehouse", name, "warehouse_id", existing)
		return existing, nil
	}

	var tagList []map[string]string
	for k, v := range spec.Tags.Map() {
		if v == "" {
			continue
		}
		tagList = append(tagList, map[string]string{"key": k, "value": v})
	}
	payload := map[string]interface{}{
		"name":                      name,
		"cluster_size":              spec.ClusterSize,
		"auto_stop_mins":            10,
		"min_num_clusters":          1,
		"max_num_clusters":          2,
		"enable_serverless_compute": true,
		"tags":                      map[string]interface{}{"custom_tags": tagList},
	}

	out := c.exec.Execute(ctx, Request{Method: http.MethodPost, URL: c.workspaceURL("/api/2.0/sql/warehouses"), Body: payload})
	if !out.OK() {
		return "", out.DomainError()
	}
	id := stringField(out.Body, "id")
	if id == "" {
		return "", fmt.Errorf("warehouse create returned no id for %q: %s", name, out.BodyText())
	}
	c.logger.Info("sql warehouse created", "warehouse", name, "warehouse_id", id)
	return id, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
