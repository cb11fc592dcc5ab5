package domain

// User is an identity principal on the remote platform.
type User struct {
	ID          string
	UserName    string
	DisplayName string
}

// Group is a group principal on the remote platform.
type Group struct {
	ID          string
	DisplayName string
}

// PatchOperation is one identity-directory patch operation.
type PatchOperation struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// EnsureUserResult is the outcome of an idempotent user create. When the
// user already existed, Existed is true and no mutation was issued.
type EnsureUserResult struct {
	User       User
	Existed    bool
	StatusCode int                    // create response status; 0 when Existed
	Payload    map[string]interface{} // create request payload; nil when Existed
	Body       map[string]interface{} // create response body
}

// GroupCreation is the outcome of a group create with members.
type GroupCreation struct {
	Group        Group
	MembersAdded int
	StatusCode   int
	Payload      map[string]interface{}
}

// MemberAddition is the outcome of a batched member add.
type MemberAddition struct {
	Added      int
	StatusCode int
	Payload    map[string]interface{}
}

// Per-member removal statuses.
const (
	MemberRemoved = "removed"
	MemberSkipped = "skipped"
	MemberFailed  = "failed"
)

// Aggregate removal statuses.
const (
	RemovalPartial = "partial"
	RemovalAll     = "removed_all"
)

// MemberRemoval is the independently observable outcome for one member.
type MemberRemoval struct {
	Member string `json:"member"`
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// RemovalResult aggregates per-member removal outcomes. Status is
// RemovalAll when every member was removed, RemovalPartial otherwise.
type RemovalResult struct {
	Status  string
	Members []MemberRemoval
}

// ProjectTags is the fixed tag set attached to provisioned compute.
type ProjectTags struct {
	ApplicationName string
	Environment     string
	CostCenter      string
	Department      string
	BusinessOwner   string
}

// Map returns the tags keyed the way the platform expects them.
func (t ProjectTags) Map() map[string]string {
	return map[string]string{
		"application_name": t.ApplicationName,
		"environment":      t.Environment,
		"cost_center":      t.CostCenter,
		"department":       t.Department,
		"business_owner":   t.BusinessOwner,
	}
}

// ClusterSpec describes an all-purpose compute cluster to provision.
type ClusterSpec struct {
	ApplicationName string
	PolicyID        string
	NodeTypeID      string
	BaseWorkers     int
	Environment     string
	Tags            ProjectTags
}

// WarehouseSpec describes a SQL warehouse to provision.
type WarehouseSpec struct {
	ApplicationName string
	ClusterSize     string
	Tags            ProjectTags
}

// AccessControl is one entry of a permissions access_control_list.
type AccessControl struct {
	GroupName       string `json:"group_name,omitempty"`
	UserName        string `json:"user_name,omitempty"`
	PermissionLevel string `json:"permission_level"`
}

// TableColumn is one column of a catalog table schema.
type TableColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}
