// Package api provides HTTP handlers for the provisioning admin API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"dpm/internal/domain"
	"dpm/internal/provision"
)

// Handler serves the admin API: batch provisioning and audit trail reads.
type Handler struct {
	runner       *provision.Runner
	trail        domain.AuditTrail
	defaultAdmin string
	logger       *slog.Logger
}

// NewHandler creates a Handler. defaultAdmin is recorded on audit entries
// when the request omits an admin.
func NewHandler(runner *provision.Runner, trail domain.AuditTrail, defaultAdmin string, logger *slog.Logger) *Handler {
	return &Handler{
		runner:       runner,
		trail:        trail,
		defaultAdmin: defaultAdmin,
		logger:       logger.With("component", "api"),
	}
}

// ProvisionRequest is the body of POST /api/v1/provision.
type ProvisionRequest struct {
	Admin    string              `json:"admin"`
	FilePath string              `json:"file_path"`
	Rows     []map[string]string `json:"rows"`
}

// Provision runs a batch of provisioning rows and returns the per-row
// results. Row-level failures are reported in the results, not as an HTTP
// error — the batch itself succeeding is the 200.
func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	var req ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "rows must not be empty")
		return
	}
	admin := req.Admin
	if admin == "" {
		admin = h.defaultAdmin
	}

	rows := make([]domain.Row, len(req.Rows))
	for i, m := range req.Rows {
		rows[i] = domain.Row(m)
	}

	report := h.runner.Run(r.Context(), admin, req.FilePath, rows)
	writeJSON(w, http.StatusOK, report)
}

// auditRecordResponse is the wire form of one audit record.
type auditRecordResponse struct {
	RunID               string    `json:"run_id"`
	TS                  time.Time `json:"ts"`
	Admin               string    `json:"admin"`
	FilePath            string    `json:"file_path,omitempty"`
	RowID               string    `json:"row_id,omitempty"`
	Action              string    `json:"action"`
	PrincipalType       string    `json:"principal_type"`
	PrincipalIdentifier string    `json:"principal_identifier"`
	Status              string    `json:"status"`
	Details             string    `json:"details,omitempty"`
	RequestPayload      string    `json:"request_payload,omitempty"`
	ResponseCode        string    `json:"response_code,omitempty"`
	ResponseBody        string    `json:"response_body,omitempty"`
}

// ListAudit returns audit records newest-first, filtered by the query
// parameters run_id, action, status, principal_type, and admin.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	filter := domain.AuditFilter{
		RunID:         queryParam(r, "run_id"),
		Action:        queryParam(r, "action"),
		Status:        queryParam(r, "status"),
		PrincipalType: queryParam(r, "principal_type"),
		Admin:         queryParam(r, "admin"),
	}

	records, err := h.trail.Read(r.Context(), limit, filter)
	if err != nil {
		h.logger.Error("audit read failed", "error", err)
		writeError(w, httpStatusFromDomainError(err), err.Error())
		return
	}

	out := make([]auditRecordResponse, len(records))
	for i, rec := range records {
		out[i] = auditRecordToAPI(rec)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": out,
		"count":   len(out),
	})
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func auditRecordToAPI(rec domain.AuditRecord) auditRecordResponse {
	return auditRecordResponse{
		RunID:               rec.RunID,
		TS:                  rec.TS,
		Admin:               rec.Admin,
		FilePath:            rec.FilePath,
		RowID:               rec.RowID,
		Action:              rec.Action,
		PrincipalType:       rec.PrincipalType,
		PrincipalIdentifier: rec.PrincipalIdentifier,
		Status:              rec.Status,
		Details:             rec.Details,
		RequestPayload:      rec.RequestPayload,
		ResponseCode:        rec.ResponseCode,
		ResponseBody:        rec.ResponseBody,
	}
}

// queryParam returns a pointer to the named query parameter, or nil when
// it is absent or blank.
func queryParam(r *http.Request, name string) *string {
	if v := r.URL.Query().Get(name); v != "" {
		return &v
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]interface{}{"code": code, "message": message})
}
