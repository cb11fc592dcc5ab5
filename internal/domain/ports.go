package domain

import "context"

// TokenProvider supplies a bearer token for the remote platform, cached
// until near expiry. Concurrent refreshes are tolerable because a refresh
// is idempotent and yields an equivalent token.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// ResourceOps is the capability surface the orchestrator needs from the
// platform client. Injected so tests can substitute fakes.
type ResourceOps interface {
	// FindUserByEmail resolves a user by exact userName match, then exact
	// emails.value match. Returns (nil, nil) when absent — absence of an
	// optional pre-existing user is a normal negative result, not an error.
	FindUserByEmail(ctx context.Context, email string) (*User, error)

	// EnsureUser creates the user unless it already exists (idempotent).
	EnsureUser(ctx context.Context, email, displayName string) (*EnsureUserResult, error)

	// UpdateUser applies patch operations to an existing user and returns
	// the response status code.
	UpdateUser(ctx context.Context, id string, ops []PatchOperation) (int, error)

	// DeleteUser removes a user by platform id.
	DeleteUser(ctx context.Context, id string) error

	// FindGroupByName resolves a group by exact display name.
	// Returns (nil, nil) when absent.
	FindGroupByName(ctx context.Context, name string) (*Group, error)

	// CreateGroupWithMembers creates a group, failing with a ConflictError
	// when the display name already exists and atomically when any member
	// email is unresolved. Members are added via one batched patch after
	// creation; a patch failure surfaces without rolling back the group.
	CreateGroupWithMembers(ctx context.Context, name string, memberEmails []string) (*GroupCreation, error)

	// AddMembersToGroup adds members to an existing group in one batched
	// patch; fails atomically when any member is unresolved.
	AddMembersToGroup(ctx context.Context, name string, memberEmails []string) (*MemberAddition, error)

	// RemoveMembersFromGroup removes members one at a time; unresolved
	// members are skipped, not batch-fatal.
	RemoveMembersFromGroup(ctx context.Context, name string, memberEmails []string) (*RemovalResult, error)

	// LookupPolicyID resolves a cluster policy by name. The policy is a
	// required reference — absence is a NotFoundError.
	LookupPolicyID(ctx context.Context, name string) (string, error)

	// CreateAllPurposeCluster provisions a compute cluster, reusing an
	// existing cluster of the same name. Returns the cluster id.
	CreateAllPurposeCluster(ctx context.Context, spec ClusterSpec) (string, error)

	// CreateSQLWarehouse provisions a SQL warehouse, reusing an existing
	// warehouse of the same name. Returns the warehouse id.
	CreateSQLWarehouse(ctx context.Context, spec WarehouseSpec) (string, error)
}

// AuditTrail records one durable entry per attempted operation. Append
// never returns an error to the caller — write failures fall back to
// secondary storage.
type AuditTrail interface {
	Append(ctx context.Context, actx AuditContext, e AuditEntry)
	Read(ctx context.Context, limit int, f AuditFilter) ([]AuditRecord, error)
}
