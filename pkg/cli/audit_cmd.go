package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"dpm/internal/domain"
)

func newAuditCmd() *cobra.Command {
	var (
		limit  int
		runID  string
		action string
		status string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the audit trail, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := buildApp("")
			if err != nil {
				return err
			}
			defer a.Close()

			filter := domain.AuditFilter{
				RunID:  optFlag(runID),
				Action: optFlag(action),
				Status: optFlag(status),
			}
			records, err := a.Trail.Read(cmd.Context(), limit, filter)
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, records)
			}
			printAuditRecords(records)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of records")
	cmd.Flags().StringVar(&runID, "run-id", "", "Filter by run id")
	cmd.Flags().StringVar(&action, "action", "", "Filter by action")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	return cmd
}

func optFlag(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func printAuditRecords(records []domain.AuditRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TS\tRUN\tACTION\tIDENTIFIER\tSTATUS\tDETAILS")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.TS.Format(time.RFC3339), rec.RunID, rec.Action,
			rec.PrincipalIdentifier, rec.Status, rec.Details)
	}
	_ = w.Flush()
}
