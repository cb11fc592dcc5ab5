package provision

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"dpm/internal/domain"
)

// Summary counts row outcomes for one run.
type Summary struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// RunReport is the aggregate result of one batch run.
type RunReport struct {
	RunID   string                   `json:"run_id"`
	Summary Summary                  `json:"summary"`
	Results []domain.OperationResult `json:"results"`
}

// Runner drives a batch of rows through the orchestrator, strictly in
// input order. The audit record for a row is written before the next row
// begins, so an operation and its audit entry are totally ordered.
type Runner struct {
	orch   *Orchestrator
	logger *slog.Logger
	now    func() time.Time
}

// NewRunner creates a batch runner.
func NewRunner(orch *Orchestrator, logger *slog.Logger) *Runner {
	return &Runner{
		orch:   orch,
		logger: logger.With("component", "batch"),
		now:    time.Now,
	}
}

// Run processes the rows under a fresh run id and returns the per-row
// results in input order.
func (r *Runner) Run(ctx context.Context, admin, filePath string, rows []domain.Row) RunReport {
	report := RunReport{
		RunID:   r.newRunID(),
		Results: make([]domain.OperationResult, 0, len(rows)),
	}
	actx := domain.AuditContext{
		RunID:    report.RunID,
		Admin:    admin,
		FilePath: filePath,
	}
	r.logger.Info("batch run started", "run_id", report.RunID, "rows", len(rows), "admin", admin)

	for i, row := range rows {
		rowID := strconv.Itoa(i + 1)
		res := r.orch.Dispatch(ctx, actx.WithRow(rowID, map[string]string(row)), row)
		res.Row = i + 1
		report.Results = append(report.Results, res)
		if res.Failed() {
			report.Summary.Failed++
		}
	}
	report.Summary.Total = len(rows)

	r.logger.Info("batch run finished",
		"run_id", report.RunID, "total", report.Summary.Total, "failed", report.Summary.Failed)
	return report
}

// newRunID builds a sortable, collision-resistant run id.
func (r *Runner) newRunID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return fmt.Sprintf("sync_%s_%s", r.now().UTC().Format("20060102T150405Z"), suffix)
}

// ReadRowsCSV parses provisioning rows from CSV input. The first record
// is the header; every following record becomes one Row keyed by header.
func ReadRowsCSV(input io.Reader) ([]domain.Row, error) {
	reader := csv.NewReader(input)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []domain.Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(rows)+2, err)
		}
		row := domain.Row{}
		for i, value := range record {
			if i < len(header) && header[i] != "" {
				row[header[i]] = value
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
