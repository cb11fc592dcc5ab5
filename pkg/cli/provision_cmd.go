package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dpm/internal/provision"
)

func newProvisionCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Run a CSV batch of provisioning rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open %s: %w", file, err)
			}
			rows, err := provision.ReadRowsCSV(f)
			_ = f.Close()
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return fmt.Errorf("%s contains no rows", file)
			}

			a, _, err := buildApp("")
			if err != nil {
				return err
			}
			defer a.Close()

			admin := getAdmin(cmd)
			if admin == "" {
				admin = a.Cfg.AdminEmail
			}
			report := a.Runner.Run(cmd.Context(), admin, file, rows)

			if getOutputFormat(cmd) == "json" {
				if err := printJSON(os.Stdout, report); err != nil {
					return err
				}
			} else {
				printRunReport(report)
			}
			if report.Summary.Failed > 0 {
				return fmt.Errorf("%d of %d rows failed", report.Summary.Failed, report.Summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file of provisioning rows (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printRunReport(report provision.RunReport) {
	fmt.Printf("Run %s: %d rows, %d failed\n\n", report.RunID, report.Summary.Total, report.Summary.Failed)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROW\tACTION\tIDENTIFIER\tRESULT")
	for _, res := range report.Results {
		outcome := "ok"
		if msg, failed := res.Result["error"]; failed {
			outcome = fmt.Sprintf("error: %v", msg)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", res.Row, res.Action, res.Identifier, outcome)
	}
	_ = w.Flush()
}
