package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"dpm/internal/domain"
)

// Store is one audit backend. The primary is SQL-backed, the fallback is a
// flat CSV file.
type Store interface {
	Insert(ctx context.Context, rec domain.AuditRecord) error
	Read(ctx context.Context, limit int, f domain.AuditFilter) ([]domain.AuditRecord, error)
}

// Trail writes every record to the primary store and falls back to the
// secondary when the primary is unavailable. Append never returns an error:
// an operation outcome is never lost while at least one backend is writable,
// and a record that cannot be written anywhere is logged and dropped rather
// than failing the provisioning work it describes.
type Trail struct {
	primary  Store
	fallback Store
	logger   *slog.Logger
	now      func() time.Time
}

// NewTrail creates a Trail. Either store may be nil when that backend is
// not configured.
func NewTrail(primary, fallback Store, logger *slog.Logger) *Trail {
	return &Trail{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With("component", "audit"),
		now:      time.Now,
	}
}

// Append records one operation outcome. Explicit entry fields win over the
// ambient context; the context supplies run identity and defaults for the
// payload and response fields.
func (t *Trail) Append(ctx context.Context, actx domain.AuditContext, e domain.AuditEntry) {
	rec := t.buildRecord(actx, e)

	if t.primary != nil {
		err := t.primary.Insert(ctx, rec)
		if err == nil {
			return
		}
		if t.fallback == nil {
			t.logger.Error("audit record dropped, primary write failed and no fallback configured",
				"action", rec.Action, "identifier", rec.PrincipalIdentifier, "error", err)
			return
		}
		t.logger.Warn("primary audit write failed, using fallback",
			"action", rec.Action, "error", err)
	}
	if t.fallback != nil {
		if err := t.fallback.Insert(ctx, rec); err != nil {
			t.logger.Error("audit record dropped, all backends failed",
				"action", rec.Action, "identifier", rec.PrincipalIdentifier, "error", err)
		}
		return
	}
	t.logger.Error("audit record dropped, no backend configured",
		"action", rec.Action, "identifier", rec.PrincipalIdentifier)
}

// Read returns up to limit records newest-first. It prefers the primary
// store and falls back to the file store on error; when both are
// unavailable it returns an empty result rather than an error.
func (t *Trail) Read(ctx context.Context, limit int, f domain.AuditFilter) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if t.primary != nil {
		recs, err := t.primary.Read(ctx, limit, f)
		if err == nil {
			return recs, nil
		}
		t.logger.Warn("primary audit read failed, using fallback", "error", err)
	}
	if t.fallback != nil {
		recs, err := t.fallback.Read(ctx, limit, f)
		if err == nil {
			return recs, nil
		}
		t.logger.Warn("fallback audit read failed", "error", err)
	}
	return []domain.AuditRecord{}, nil
}

func (t *Trail) buildRecord(actx domain.AuditContext, e domain.AuditEntry) domain.AuditRecord {
	payload := e.RequestPayload
	if payload == nil {
		payload = actx.RequestPayload
	}
	code := e.ResponseCode
	if code == 0 {
		code = actx.ResponseCode
	}
	body := e.ResponseBody
	if body == nil {
		body = actx.ResponseBody
	}

	return domain.AuditRecord{
		RunID:               actx.RunID,
		TS:                  t.now().UTC(),
		Admin:               actx.Admin,
		FilePath:            actx.FilePath,
		RowID:               actx.RowID,
		Action:              e.Action,
		PrincipalType:       e.PrincipalType,
		PrincipalIdentifier: e.Identifier,
		Status:              e.Status,
		Details:             e.Details,
		RequestPayload:      serialize(payload),
		ResponseCode:        formatCode(code),
		ResponseBody:        serialize(body),
	}
}

// serialize renders structured values as JSON text. Plain strings pass
// through unquoted so stored bodies stay greppable.
func serialize(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

func formatCode(code int) string {
	if code == 0 {
		return ""
	}
	return strconv.Itoa(code)
}
