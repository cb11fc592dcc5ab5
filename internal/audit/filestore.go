package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"dpm/internal/domain"
)

// csvHeader is the fixed column order of the fallback file. Records written
// by older runs remain readable as long as the order is stable.
var csvHeader = []string{
	"run_id", "ts", "admin", "file_path", "row_id", "action",
	"principal_type", "principal_identifier", "status", "details",
	"request_payload", "response_code", "response_body",
}

// FileStore is the CSV fallback backend. It appends one row per record and
// writes the header only when creating a new file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore writing to the given path. The file and
// its parent directory are created lazily on the first append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Insert appends one record to the CSV file.
func (s *FileStore) Insert(_ context.Context, rec domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create audit directory: %w", err)
		}
	}

	_, statErr := os.Stat(s.path)
	writeHeader := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("write audit header: %w", err)
		}
	}
	row := []string{
		rec.RunID, rec.TS.UTC().Format(time.RFC3339Nano), rec.Admin,
		rec.FilePath, rec.RowID, rec.Action, rec.PrincipalType,
		rec.PrincipalIdentifier, rec.Status, rec.Details,
		rec.RequestPayload, rec.ResponseCode, rec.ResponseBody,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write audit row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush audit row: %w", err)
	}
	return f.Close()
}

// Read returns up to limit records newest-first, applying the same
// exact-match filters as the primary store.
func (s *FileStore) Read(_ context.Context, limit int, filter domain.AuditFilter) ([]domain.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(csvHeader)

	var records []domain.AuditRecord
	first := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read audit file: %w", err)
		}
		if first {
			first = false
			if row[0] == csvHeader[0] {
				continue
			}
		}
		rec := recordFromRow(row)
		if matches(rec, filter) {
			records = append(records, rec)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].TS.After(records[j].TS)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func recordFromRow(row []string) domain.AuditRecord {
	ts, _ := time.Parse(time.RFC3339Nano, row[1])
	return domain.AuditRecord{
		RunID:               row[0],
		TS:                  ts,
		Admin:               row[2],
		FilePath:            row[3],
		RowID:               row[4],
		Action:              row[5],
		PrincipalType:       row[6],
		PrincipalIdentifier: row[7],
		Status:              row[8],
		Details:             row[9],
		RequestPayload:      row[10],
		ResponseCode:        row[11],
		ResponseBody:        row[12],
	}
}

func matches(rec domain.AuditRecord, f domain.AuditFilter) bool {
	if f.RunID != nil && rec.RunID != *f.RunID {
		return false
	}
	if f.Action != nil && rec.Action != *f.Action {
		return false
	}
	if f.Status != nil && rec.Status != *f.Status {
		return false
	}
	if f.PrincipalType != nil && rec.PrincipalType != *f.PrincipalType {
		return false
	}
	if f.Admin != nil && rec.Admin != *f.Admin {
		return false
	}
	return true
}
