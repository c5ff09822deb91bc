package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/iyou00/chatui/internal/models"
	"github.com/iyou00/chatui/internal/store"
	"github.com/spf13/cobra"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report commands",
	}

	cmd.AddCommand(newReportListCmd())
	return cmd
}

func newReportListCmd() *cobra.Command {
	var (
		configPath string
		filters    store.ReportFilters
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReportList(cmd, configPath, filters)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to chatui config file")
	cmd.Flags().StringVar(&filters.TaskID, "task", "", "filter by task ID")
	cmd.Flags().StringVar(&filters.RunID, "run", "", "filter by run ID")
	cmd.Flags().StringVar(&filters.Status, "status", "", "filter by status (success, failed)")
	cmd.Flags().IntVarP(&filters.Limit, "limit", "n", 20, "maximum number of reports")
	return cmd
}

func runReportList(cmd *cobra.Command, configPath string, filters store.ReportFilters) error {
	_, st, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	reports, err := st.ListReports(context.Background(), filters)
	if err != nil {
		return err
	}
	writeReportTable(cmd, reports)
	return nil
}

func writeReportTable(cmd *cobra.Command, reports []models.Report) {
	out := cmd.OutOrStdout()
	if len(reports) == 0 {
		fmt.Fprintln(out, "No reports found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTASK\tROOM\tWINDOW\tSTATUS\tMESSAGES\tCREATED\tLOCATION")
	for _, r := range reports {
		room := "(task)"
		if r.Room != nil {
			room = *r.Room
		}
		location := r.FilePath
		if r.Status == models.ReportFailed && r.Error != "" {
			location = truncate(r.Error, 60)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.TaskID, room, r.Window, r.Status, r.MessageCount,
			r.CreatedAt.Format("2006-01-02 15:04"), location)
	}
	w.Flush()
}
