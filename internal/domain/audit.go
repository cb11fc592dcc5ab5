package domain

import "time"

// Audit statuses. One record is written per attempted operation.
const (
	AuditSuccess  = "SUCCESS"
	AuditFailed   = "FAILED"
	AuditSkipped  = "SKIPPED"
	AuditNotFound = "NOT_FOUND"
	AuditNoop     = "NOOP"
	AuditPartial  = "PARTIAL"
)

// AuditRecord is one durable, append-only audit row. Structured fields
// (payloads, bodies) are serialized to JSON text before storage.
type AuditRecord struct {
	RunID               string
	TS                  time.Time
	Admin               string
	FilePath            string
	RowID               string
	Action              string
	PrincipalType       string
	PrincipalIdentifier string
	Status              string
	Details             string
	RequestPayload      string
	ResponseCode        string
	ResponseBody        string
}

// AuditContext carries per-unit-of-work state consumed by the audit trail
// when explicit entry fields are absent. It is an explicit value threaded
// through the dispatcher and orchestrator, never process-global state.
type AuditContext struct {
	RunID          string
	Admin          string
	FilePath       string
	RowID          string
	RequestPayload interface{}
	ResponseCode   int
	ResponseBody   interface{}
}

// WithRow returns a copy of the context with row-level fields set.
func (c AuditContext) WithRow(rowID string, payload interface{}) AuditContext {
	c.RowID = rowID
	c.RequestPayload = payload
	return c
}

// AuditEntry is the input to Trail.Append. Zero-valued optional fields fall
// back to the ambient AuditContext.
type AuditEntry struct {
	Action         string
	PrincipalType  string
	Identifier     string
	Status         string
	Details        string
	ResponseCode   int
	ResponseBody   interface{}
	RequestPayload interface{}
}

// AuditFilter selects audit records by exact-match equality. Nil fields
// are not filtered on.
type AuditFilter struct {
	RunID         *string
	Action        *string
	Status        *string
	PrincipalType *string
	Admin         *string
}
