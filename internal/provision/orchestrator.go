package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"dpm/internal/domain"
)

// Cluster policy every all-purpose project cluster must attach to.
const allPurposePolicyName = "Unified-All-Purpose-Compute"

// Principal types recorded in audit entries and results.
const (
	principalUser      = "user"
	principalGroup     = "group"
	principalProject   = "project"
	principalCluster   = "cluster"
	principalWarehouse = "sql_warehouse"
	principalUnknown   = "unknown"
)

// Orchestrator maps one input row to platform operations. Every dispatch
// produces exactly one result and at least one audit record; no error
// propagates past a single row.
type Orchestrator struct {
	ops    domain.ResourceOps
	trail  domain.AuditTrail
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator over the given capability surface.
func NewOrchestrator(ops domain.ResourceOps, trail domain.AuditTrail, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		ops:    ops,
		trail:  trail,
		logger: logger.With("component", "orchestrator"),
	}
}

// auditedError marks an error whose terminal audit record was already
// written by the handler, so Dispatch does not write a second one.
type auditedError struct {
	err error
}

func (e auditedError) Error() string { return e.err.Error() }
func (e auditedError) Unwrap() error { return e.err }

func audited(err error) error { return auditedError{err: err} }

// Dispatch runs one row's requested action. Any error, including a panic,
// is contained to this row: it becomes one audited FAILED record plus an
// error result.
func (o *Orchestrator) Dispatch(ctx context.Context, actx domain.AuditContext, row domain.Row) (res domain.OperationResult) {
	action := row.Action()
	res = domain.OperationResult{Action: string(action)}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("dispatch panic recovered", "action", action, "panic", r)
			err := fmt.Errorf("internal error: %v", r)
			o.trail.Append(ctx, actx, domain.AuditEntry{
				Action:        string(action),
				PrincipalType: res.PrincipalType,
				Identifier:    res.Identifier,
				Status:        domain.AuditFailed,
				Details:       err.Error(),
			})
			res.Result = map[string]interface{}{"error": err.Error()}
		}
	}()

	var (
		result map[string]interface{}
		err    error
	)
	switch action {
	case domain.ActionCreateUser:
		res.PrincipalType = principalUser
		res.Identifier = strings.ToLower(row.Get("user_email"))
		result, err = o.createUser(ctx, actx, row)
	case domain.ActionUpdateUser:
		res.PrincipalType = principalUser
		res.Identifier = strings.ToLower(row.Get("user_email"))
		result, err = o.updateUser(ctx, actx, row)
	case domain.ActionDeleteUser:
		res.PrincipalType = principalUser
		res.Identifier = o.deleteIdentifier(row)
		result, err = o.deleteUser(ctx, actx, row, &res.Identifier)
	case domain.ActionCreateGroup, domain.ActionAddToGroup, domain.ActionRemoveFromGroup:
		res.PrincipalType = principalGroup
		var name string
		name, err = GroupName(row)
		res.Identifier = name
		if err == nil {
			switch action {
			case domain.ActionCreateGroup:
				result, err = o.createGroup(ctx, actx, row, name)
			case domain.ActionAddToGroup:
				result, err = o.addToGroup(ctx, actx, row, name)
			default:
				result, err = o.removeFromGroup(ctx, actx, row, name)
			}
		}
	case domain.ActionOnboardProject:
		res.PrincipalType = principalProject
		res.Identifier = row.Get("application_name")
		result, err = o.onboardProject(ctx, actx, row)
	default:
		res.PrincipalType = principalUnknown
		err = domain.ErrValidation("unknown action %q", row.Get("action"))
	}

	if err != nil {
		var already auditedError
		if !errors.As(err, &already) {
			o.trail.Append(ctx, actx, domain.AuditEntry{
				Action:        string(action),
				PrincipalType: res.PrincipalType,
				Identifier:    res.Identifier,
				Status:        domain.AuditFailed,
				Details:       err.Error(),
			})
		}
		res.Result = map[string]interface{}{"error": err.Error()}
		return res
	}
	res.Result = result
	return res
}

func (o *Orchestrator) createUser(ctx context.Context, actx domain.AuditContext, row domain.Row) (map[string]interface{}, error) {
	email := strings.ToLower(row.Get("user_email"))
	if email == "" {
		return nil, domain.ErrValidation("user_email required")
	}
	display := composedName(row)
	if display == "" {
		display = email
	}

	result, err := o.ops.EnsureUser(ctx, email, display)
	if err != nil {
		return nil, err
	}
	if result.Existed {
		o.trail.Append(ctx, actx, domain.AuditEntry{
			Action: string(domain.ActionCreateUser), PrincipalType: principalUser,
			Identifier: email, Status: domain.AuditSkipped, Details: "already exists",
		})
		return map[string]interface{}{"status": "skipped", "id": result.User.ID}, nil
	}
	o.trail.Append(ctx, actx, domain.AuditEntry{
		Action: string(domain.ActionCreateUser), PrincipalType: principalUser,
		Identifier: email, Status: domain.AuditSuccess, Details: "created",
		ResponseCode: result.StatusCode, ResponseBody: result.Body, RequestPayload: result.Payload,
	})
	return map[string]interface{}{"status": "created", "id": result.User.ID}, nil
}

func (o *Orchestrator) updateUser(ctx context.Context, actx domain.AuditContext, row domain.Row) (map[string]interface{}, error) {
	email := strings.ToLower(row.Get("user_email"))
	if email == "" {
		return nil, domain.ErrValidation("user_email required")
	}
	user, err := o.ops.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		o.trail.Append(ctx, actx, domain.AuditEntry{
			Action: string(domain.ActionUpdateUser), PrincipalType: principalUser,
			Identifier: email, Status: domain.AuditNotFound, Details: "user not found",
		})
		return nil, audited(domain.ErrNotFound("user %q not found", email))
	}

	ops, err := buildUserPatchOps(row)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		o.trail.Append(ctx, actx, domain.AuditEntry{
			Action: string(domain.ActionUpdateUser), PrincipalType: principalUser,
			Identifier: email, Status: domain.AuditNoop, Details: "nothing to update",
		})
		return map[string]interface{}{"status": "noop"}, nil
	}

	code, err := o.ops.UpdateUser(ctx, user.ID, ops)
	if err != nil {
		return nil, err
	}
	o.trail.Append(ctx, actx, domain.AuditEntry{
		Action: string(domain.ActionUpdateUser), PrincipalType: principalUser,
		Identifier: email, Status: domain.AuditSuccess, Details: "patched",
		ResponseCode: code, RequestPayload: ops,
	})
	return map[string]interface{}{"status": "updated"}, nil
}

func (o *Orchestrator) deleteIdentifier(row domain.Row) string {
	if email := strings.ToLower(row.Get("user_email")); email != "" {
		return email
	}
	if email := strings.ToLower(row.Get("email")); email != "" {
		return email
	}
	return row.Get("user_id")
}

func (o *Orchestrator) deleteUser(ctx context.Context, actx domain.AuditContext, row domain.Row, identifier *string) (map[string]interface{}, error) {
	userID := row.Get("user_id")
	if userID == "" {
		email := o.deleteIdentifier(row)
		if email == "" {
			return nil, domain.ErrValidation("user_id or user_email required")
		}
		user, err := o.ops.FindUserByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if user == nil {
			o.trail.Append(ctx, actx, domain.AuditEntry{
				Action: string(domain.ActionDeleteUser), PrincipalType: principalUser,
				Identifier: email, Status: domain.AuditNotFound, Details: "user not found",
			})
			return nil, audited(domain.ErrNotFound("user %q not found", email))
		}
		userID = user.ID
		*identifier = email
	}

	if err := o.ops.DeleteUser(ctx, userID); err != nil {
		return nil, err
	}
	o.trail.Append(ctx, actx, domain.AuditEntry{
		Action: string(domain.ActionDeleteUser), PrincipalType: principalUser,
		Identifier: *identifier, Status: domain.AuditSuccess, Details: "deleted",
		ResponseCode: 204,
	})
	return map[string]interface{}{"status": "deleted", "id": userID}, nil
}

func (o *Orchestrator) createGroup(ctx context.Context, actx domain.AuditContext, row domain.Row, name string) (map[string]interface{}, error) {
	members := splitMembers(row.Get("group_members"))

	creation, err := o.ops.CreateGroupWithMembers(ctx, name, members)
	if err != nil {
		return nil, err
	}
	o.trail.Append(ctx, actx, domain.AuditEntry{
		Action: string(domain.ActionCreateGroup), PrincipalType: principalGroup,
		Identifier: name, Status: domain.AuditSuccess,
		Details:      fmt.Sprintf("created, added %d members", creation.MembersAdded),
		ResponseCode: creation.StatusCode, RequestPayload: creation.Payload,
	})
	return map[string]interface{}{
		"status":        "created",
		"id":            creation.Group.ID,
		"members_added": creation.MembersAdded,
	}, nil
}

func (o *Orchestrator) addToGroup(ctx context.Context, actx domain.AuditContext, row domain.Row, name string) (map[string]interface{}, error) {
	members := splitMembers(row.Get("group_members"))
	if len(members) == 0 {
		o.trail.Append(ctx, actx, domain.AuditEntry{
			Action: string(domain.ActionAddToGroup), PrincipalType: principalGroup,
			Identifier: name, Status: domain.AuditNoop, Details: "no members specified",
		})
		return map[string]interface{}{"status": "noop"}, nil
	}

	group, err := o.ops.FindGroupByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if group == nil {
		o.trail.Append(ctx, actx, domain.AuditEntry{
			Action: string(domain.ActionAddToGroup), PrincipalType: principalGroup,
			Identifier: name, Status: domain.AuditNotFound, Details: "group not found",
		})
		return nil, audited(domain.ErrNotFound("group %q not found", name))
	}

	addition, err := o.ops.AddMembersToGroup(ctx, name, members)
	if err != nil {
		return nil, err
	}
	o.trail.Append(ctx, actx, domain.AuditEntry{
		Action: string(domain.ActionAddToGroup), PrincipalType: principalGroup,
		Identifier: name, Status: domain.AuditSuccess,
		Details:      fmt.Sprintf("added %d members", addition.Added),
		ResponseCode: addition.StatusCode, RequestPayload: addition.Payload,
	})
	return map[string]interface{}{"status": "added", "members_added": addition.Added}, nil
}

func (o *Orchestrator) removeFromGroup(ctx context.Context, actx domain.AuditContext, row domain.Row, name string) (map[string]interface{}, error) {
	members := splitMembers(row.Get("group_members"))
	if len(members) == 0 {
		o.trail.Append(ctx, actx, domain.AuditEntry{
			Action: string(domain.ActionRemoveFromGroup), PrincipalType: principalGroup,
			Identifier: name, Status: domain.AuditNoop, Details: "no members specified",
		})
		return map[string]interface{}{"status": "noop"}, nil
	}

	group, err := o.ops.FindGroupByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if group == nil {
		o.trail.Append(ctx, actx, domain.AuditEntry{
			Action: string(domain.ActionRemoveFromGroup), PrincipalType: principalGroup,
			Identifier: name, Status: domain.AuditNotFound, Details: "group not found",
		})
		return nil, audited(domain.ErrNotFound("group %q not found", name))
	}

	result, err := o.ops.RemoveMembersFromGroup(ctx, name, members)
	if err != nil {
		return nil, err
	}

	removed, skipped, failed := 0, 0, 0
	for _, m := range result.Members {
		switch m.Status {
		case domain.MemberRemoved:
			removed++
		case domain.MemberSkipped:
			skipped++
		default:
			failed++
		}
	}
	status := domain.AuditSuccess
	if result.Status == domain.RemovalPartial {
		status = domain.AuditPartial
	}
	o.trail.Append(ctx, actx, domain.AuditEntry{
		Action: string(domain.ActionRemoveFromGroup), PrincipalType: principalGroup,
		Identifier: name, Status: status,
		Details:      fmt.Sprintf("removed %d, skipped %d, failed %d", removed, skipped, failed),
		ResponseBody: result.Members,
	})
	return map[string]interface{}{"status": result.Status, "results": result.Members}, nil
}

func (o *Orchestrator) onboardProject(ctx context.Context, actx domain.AuditContext, row domain.Row) (map[string]interface{}, error) {
	appName := row.Get("application_name")
	if appName == "" {
		return nil, domain.ErrValidation("application_name required")
	}
	environment := strings.ToLower(row.Get("environment"))
	clusterType := strings.ToLower(row.Get("cluster_type"))

	tags := domain.ProjectTags{
		ApplicationName: appName,
		Environment:     environment,
		CostCenter:      row.Get("cost_center"),
		Department:      row.Get("department"),
		BusinessOwner:   row.Get("business_owner"),
	}

	switch clusterType {
	case "all-purpose":
		policyID, err := o.ops.LookupPolicyID(ctx, allPurposePolicyName)
		if err != nil {
			return nil, err
		}
		baseWorkers, _ := strconv.Atoi(row.Get("base_workers"))
		clusterID, err := o.ops.CreateAllPurposeCluster(ctx, domain.ClusterSpec{
			ApplicationName: appName,
			PolicyID:        policyID,
			NodeTypeID:      row.Get("node_type_id"),
			BaseWorkers:     baseWorkers,
			Environment:     environment,
			Tags:            tags,
		})
		if err != nil {
			return nil, err
		}
		o.trail.Append(ctx, actx, domain.AuditEntry{
			Action: string(domain.ActionOnboardProject), PrincipalType: principalCluster,
			Identifier: appName, Status: domain.AuditSuccess,
			Details: fmt.Sprintf("all-purpose cluster created: %s", clusterID),
		})
		return map[string]interface{}{
			"application_name": appName,
			"cluster_id":       clusterID,
			"cluster_type":     clusterType,
			"environment":      environment,
			"status":           domain.AuditSuccess,
		}, nil

	case "job":
		warehouseID, err := o.ops.CreateSQLWarehouse(ctx, domain.WarehouseSpec{
			ApplicationName: appName,
			ClusterSize:     row.Get("sql_wh_size"),
			Tags:            tags,
		})
		if err != nil {
			return nil, err
		}
		o.trail.Append(ctx, actx, domain.AuditEntry{
			Action: string(domain.ActionOnboardProject), PrincipalType: principalWarehouse,
			Identifier: appName, Status: domain.AuditSuccess,
			Details: fmt.Sprintf("sql warehouse created: %s", warehouseID),
		})
		return map[string]interface{}{
			"application_name": appName,
			"sql_wh_id":        warehouseID,
			"cluster_type":     clusterType,
			"environment":      environment,
			"status":           domain.AuditSuccess,
		}, nil

	default:
		return nil, domain.ErrValidation("invalid cluster_type %q", row.Get("cluster_type"))
	}
}

// buildUserPatchOps derives patch operations from the row: a JSON
// attribute blob (displayName, active) plus first/last name fields.
func buildUserPatchOps(row domain.Row) ([]domain.PatchOperation, error) {
	var ops []domain.PatchOperation

	if attrsJSON := row.Get("attributes_json"); attrsJSON != "" {
		var attrs map[string]interface{}
		if err := json.Unmarshal([]byte(attrsJSON), &attrs); err != nil {
			return nil, domain.ErrValidation("invalid attributes_json: %v", err)
		}
		if v, ok := attrs["displayName"]; ok {
			ops = append(ops, domain.PatchOperation{Op: "replace", Path: "displayName", Value: v})
		}
		if v, ok := attrs["active"]; ok {
			active, _ := v.(bool)
			ops = append(ops, domain.PatchOperation{Op: "replace", Path: "active", Value: active})
		}
	}

	if composed := composedName(row); composed != "" && !hasNameOp(ops) {
		ops = append(ops, domain.PatchOperation{Op: "replace", Path: "name.formatted", Value: composed})
	}
	return ops, nil
}

func hasNameOp(ops []domain.PatchOperation) bool {
	for _, op := range ops {
		if op.Path == "displayName" || op.Path == "name.formatted" {
			return true
		}
	}
	return false
}

// composedName joins the row's first and last name fields.
func composedName(row domain.Row) string {
	first := row.Get("first_name")
	last := row.Get("last_name")
	return strings.TrimSpace(first + " " + last)
}
