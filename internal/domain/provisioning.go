package domain

import "strings"

// Action is a requested provisioning operation.
type Action string

// Supported row actions.
const (
	ActionCreateUser      Action = "CREATE_USER"
	ActionDeleteUser      Action = "DELETE_USER"
	ActionUpdateUser      Action = "UPDATE_USER"
	ActionCreateGroup     Action = "CREATE_GROUP"
	ActionAddToGroup      Action = "ADD_TO_GROUP"
	ActionRemoveFromGroup Action = "REMOVE_FROM_GROUP"
	ActionOnboardProject  Action = "ONBOARD_PROJECT"
)

// GroupAction reports whether the action's principal identifier is a
// constructed group name rather than a user email.
func (a Action) GroupAction() bool {
	switch a {
	case ActionCreateGroup, ActionAddToGroup, ActionRemoveFromGroup:
		return true
	}
	return false
}

// Row is one input row: a string-keyed mapping of field name to value,
// including "action" plus action-specific fields. Ephemeral — it exists
// only for the duration of one dispatch call.
type Row map[string]string

// Get returns the trimmed value for key, or "" when absent.
func (r Row) Get(key string) string {
	return strings.TrimSpace(r[key])
}

// Action returns the row's requested action, upper-cased.
func (r Row) Action() Action {
	return Action(strings.ToUpper(r.Get("action")))
}

// OperationResult is the per-row output contract. Result holds either a
// success payload specific to the action or {"error": message}.
type OperationResult struct {
	Row           int                    `json:"row"`
	Action        string                 `json:"action"`
	PrincipalType string                 `json:"principal_type"`
	Identifier    string                 `json:"identifier"`
	Result        map[string]interface{} `json:"result"`
}

// Failed reports whether the result carries an error payload.
func (r OperationResult) Failed() bool {
	_, ok := r.Result["error"]
	return ok
}
