package dbxapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"dpm/internal/domain"
)

// Identity-directory schema URNs.
const (
	scimUserSchema  = "urn:ietf:params:scim:schemas:core:2.0:User"
	scimGroupSchema = "urn:ietf:params:scim:schemas:core:2.0:Group"
	scimPatchSchema = "urn:ietf:params:scim:api:messages:2.0:PatchOp"
)

// listIdentity runs a filtered list against the directory and returns the
// matching resources.
func (c *Client) listIdentity(ctx context.Context, resource, filter string) ([]map[string]interface{}, error) {
	q := url.Values{}
	if filter != "" {
		q.Set("filter", filter)
	}
	out := c.exec.Execute(ctx, Request{Method: http.MethodGet, URL: c.scimURL(resource), Query: q})
	if !out.OK() {
		return nil, out.DomainError()
	}
	return resourceList(out.Body, "Resources"), nil
}

// FindUserByEmail resolves a user by exact userName match, then by exact
// emails.value match. Returns (nil, nil) when the user does not exist.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	for _, filter := range []string{
		fmt.Sprintf("userName eq %q", email),
		fmt.Sprintf("emails.value eq %q", email),
	} {
		resources, err := c.listIdentity(ctx, "Users", filter)
		if err != nil {
			return nil, err
		}
		if len(resources) > 0 {
			return userFromResource(resources[0]), nil
		}
	}
	return nil, nil
}

// EnsureUser creates the user unless it already exists. The existing user
// is returned without any mutating call.
func (c *Client) EnsureUser(ctx context.Context, email, displayName string) (*domain.EnsureUserResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, domain.ErrValidation("user email required")
	}

	existing, err := c.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &domain.EnsureUserResult{User: *existing, Existed: true}, nil
	}

	display := strings.TrimSpace(displayName)
	if display == "" {
		display = email
	}
	given, family := splitDisplayName(display)
	payload := map[string]interface{}{
		"schemas":  []string{scimUserSchema},
		"userName": email,
		"name": map[string]string{
			"givenName":  given,
			"familyName": family,
			"formatted":  display,
		},
		"emails": []map[string]interface{}{
			{"value": email, "primary": true},
		},
		"active": true,
	}

	out := c.exec.Execute(ctx, Request{Method: http.MethodPost, URL: c.scimURL("Users"), Body: payload})
	if !out.OK() {
		return nil, out.DomainError()
	}
	id := stringField(out.Body, "id")
	if id == "" {
		return nil, fmt.Errorf("user create returned no id for %q: %s", email, out.BodyText())
	}
	return &domain.EnsureUserResult{
		User:       domain.User{ID: id, UserName: email, DisplayName: display},
		Existed:    false,
		StatusCode: out.StatusCode,
		Payload:    payload,
		Body:       out.Body,
	}, nil
}

// UpdateUser applies patch operations to an existing user.
func (c *Client) UpdateUser(ctx context.Context, id string, ops []domain.PatchOperation) (int, error) {
	payload := patchPayload(ops)
	out := c.exec.Execute(ctx, Request{
		Method: http.MethodPatch,
		URL:    c.scimURL("Users") + "/" + id,
		Body:   payload,
	})
	if !out.OK() {
		return out.StatusCode, out.DomainError()
	}
	return out.StatusCode, nil
}

// DeleteUser removes a user by platform id.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	out := c.exec.Execute(ctx, Request{Method: http.MethodDelete, URL: c.scimURL("Users") + "/" + id})
	if !out.OK() {
		return out.DomainError()
	}
	return nil
}

// FindGroupByName resolves a group by exact display name. Returns
// (nil, nil) when the group does not exist.
func (c *Client) FindGroupByName(ctx context.Context, name string) (*domain.Group, error) {
	if name == "" {
		return nil, nil
	}
	resources, err := c.listIdentity(ctx, "Groups", fmt.Sprintf("displayName eq %q", name))
	if err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, nil
	}
	return &domain.Group{
		ID:          stringField(resources[0], "id"),
		DisplayName: stringField(resources[0], "displayName"),
	}, nil
}

// CreateGroupWithMembers creates a group with the given members. An
// existing display name is a ConflictError with zero mutating calls, and
// any unresolved member fails atomically before the group is created.
// When the post-create member patch fails, the created group is returned
// alongside the error so callers can observe the partial state.
func (c *Client) CreateGroupWithMembers(ctx context.Context, name string, memberEmails []string) (*domain.GroupCreation, error) {
	existing, err := c.FindGroupByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrConflict("group %q already exists, use add_to_group to add members", name)
	}

	memberIDs, err := c.resolveMembers(ctx, memberEmails)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"schemas":     []string{scimGroupSchema},
		"displayName": name,
	}
	out := c.exec.Execute(ctx, Request{Method: http.MethodPost, URL: c.scimURL("Groups"), Body: payload})
	if !out.OK() {
		return nil, out.DomainError()
	}
	groupID := stringField(out.Body, "id")
	if groupID == "" {
		return nil, fmt.Errorf("group create returned no id for %q: %s", name, out.BodyText())
	}

	creation := &domain.GroupCreation{
		Group:      domain.Group{ID: groupID, DisplayName: name},
		StatusCode: out.StatusCode,
		Payload:    payload,
	}
	if len(memberIDs) == 0 {
		return creation, nil
	}

	if err := c.patchAddMembers(ctx, groupID, memberIDs); err != nil {
		// The group exists at this point; it is not rolled back.
		return creation, fmt.Errorf("group %q created but member patch failed: %w", name, err)
	}
	creation.MembersAdded = len(memberIDs)
	return creation, nil
}

// AddMembersToGroup adds members to an existing group in one batched
// patch. The group must already exist and every member must resolve.
func (c *Client) AddMembersToGroup(ctx context.Context, name string, memberEmails []string) (*domain.MemberAddition, error) {
	group, err := c.FindGroupByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, domain.ErrNotFound("group %q not found", name)
	}

	memberIDs, err := c.resolveMembers(ctx, memberEmails)
	if err != nil {
		return nil, err
	}
	if len(memberIDs) == 0 {
		return &domain.MemberAddition{}, nil
	}

	payload := addMembersPayload(memberIDs)
	out := c.exec.Execute(ctx, Request{
		Method: http.MethodPatch,
		URL:    c.scimURL("Groups") + "/" + group.ID,
		Body:   payload,
	})
	if !out.OK() {
		return nil, out.DomainError()
	}
	return &domain.MemberAddition{
		Added:      len(memberIDs),
		StatusCode: out.StatusCode,
		Payload:    payload,
	}, nil
}

// RemoveMembersFromGroup removes members one at a time. An unresolved
// member is recorded as skipped rather than failing the batch, and each
// member's outcome is independently observable in the result.
func (c *Client) RemoveMembersFromGroup(ctx context.Context, name string, memberEmails []string) (*domain.RemovalResult, error) {
	group, err := c.FindGroupByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, domain.ErrNotFound("group %q not found", name)
	}

	result := &domain.RemovalResult{Status: domain.RemovalAll}
	for _, email := range memberEmails {
		user, err := c.FindUserByEmail(ctx, email)
		if err != nil {
			result.Members = append(result.Members, domain.MemberRemoval{
				Member: email, Status: domain.MemberFailed, Error: err.Error(),
			})
			result.Status = domain.RemovalPartial
			continue
		}
		if user == nil {
			result.Members = append(result.Members, domain.MemberRemoval{
				Member: email, Status: domain.MemberSkipped,
			})
			result.Status = domain.RemovalPartial
			continue
		}

		payload := patchPayload([]domain.PatchOperation{{
			Op:   "remove",
			Path: fmt.Sprintf("members[value eq %q]", user.ID),
		}})
		out := c.exec.Execute(ctx, Request{
			Method: http.MethodPatch,
			URL:    c.scimURL("Groups") + "/" + group.ID,
			Body:   payload,
		})
		if !out.OK() {
			result.Members = append(result.Members, domain.MemberRemoval{
				Member: email, ID: user.ID, Status: domain.MemberFailed, Error: out.Err,
			})
			result.Status = domain.RemovalPartial
			continue
		}
		result.Members = append(result.Members, domain.MemberRemoval{
			Member: email, ID: user.ID, Status: domain.MemberRemoved,
		})
	}
	return result, nil
}

// resolveMembers maps every email to a user id, failing atomically when
// any member does not exist.
func (c *Client) resolveMembers(ctx context.Context, emails []string) ([]string, error) {
	var (
		ids     []string
		missing []string
	)
	for _, email := range emails {
		user, err := c.FindUserByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if user == nil {
			missing = append(missing, email)
			continue
		}
		ids = append(ids, user.ID)
	}
	if len(missing) > 0 {
		return nil, domain.ErrNotFound("these users do not exist: %s", strings.Join(missing, ", "))
	}
	return ids, nil
}

func (c *Client) patchAddMembers(ctx context.Context, groupID string, memberIDs []string) error {
	out := c.exec.Execute(ctx, Request{
		Method: http.MethodPatch,
		URL:    c.scimURL("Groups") + "/" + groupID,
		Body:   addMembersPayload(memberIDs),
	})
	if !out.OK() {
		return out.DomainError()
	}
	return nil
}

func addMembersPayload(memberIDs []string) map[string]interface{} {
	values := make([]map[string]interface{}, 0, len(memberIDs))
	for _, id := range memberIDs {
		values = append(values, map[string]interface{}{"value": id, "type": "User"})
	}
	return patchPayload([]domain.PatchOperation{{Op: "add", Path: "members", Value: values}})
}

func patchPayload(ops []domain.PatchOperation) map[string]interface{} {
	return map[string]interface{}{
		"schemas":    []string{scimPatchSchema},
		"Operations": ops,
	}
}

func userFromResource(res map[string]interface{}) *domain.User {
	return &domain.User{
		ID:          stringField(res, "id"),
		UserName:    stringField(res, "userName"),
		DisplayName: stringField(res, "displayName"),
	}
}

// splitDisplayName splits a display name on the first whitespace into
// given and family names.
func splitDisplayName(display string) (given, family string) {
	if i := strings.IndexAny(display, " \t"); i >= 0 {
		return display[:i], strings.TrimSpace(display[i+1:])
	}
	return display, ""
}
