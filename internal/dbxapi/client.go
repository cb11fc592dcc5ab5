package dbxapi

import (
	"log/slog"
	"strings"

	"dpm/internal/domain"
)

// ClientConfig holds the platform endpoints the client talks to. The
// workspace host falls back to the account host when unset. Account-level
// identity paths are used only when both the account host and account id
// are configured.
type ClientConfig struct {
	AccountHost   string
	WorkspaceHost string
	AccountID     string
}

// Client implements domain.ResourceOps over the platform REST API.
type Client struct {
	exec   *Executor
	cfg    ClientConfig
	logger *slog.Logger
}

// NewClient creates a platform client on top of the executor.
func NewClient(exec *Executor, cfg ClientConfig, logger *slog.Logger) *Client {
	cfg.AccountHost = strings.TrimRight(cfg.AccountHost, "/")
	cfg.WorkspaceHost = strings.TrimRight(cfg.WorkspaceHost, "/")
	return &Client{
		exec:   exec,
		cfg:    cfg,
		logger: logger.With("component", "platform-client"),
	}
}

// workspaceURL builds a workspace-level API URL.
func (c *Client) workspaceURL(path string) string {
	base := c.cfg.WorkspaceHost
	if base == "" {
		base = c.cfg.AccountHost
	}
	return base + path
}

// scimURL builds an identity-directory URL for the given resource type
// ("Users" or "Groups"), preferring the account-level directory.
func (c *Client) scimURL(resource string) string {
	if c.cfg.AccountHost != "" && c.cfg.AccountID != "" {
		return c.cfg.AccountHost + "/api/2.1/accounts/" + c.cfg.AccountID + "/scim/v2/" + resource
	}
	return c.workspaceURL("/api/2.0/preview/scim/v2/" + resource)
}

var _ domain.ResourceOps = (*Client)(nil)
