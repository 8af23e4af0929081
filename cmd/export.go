package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/maint/internal/export"
	"github.com/joescharf/maint/internal/models"
	"github.com/joescharf/maint/internal/output"
	"github.com/joescharf/maint/internal/tracker"
	"github.com/joescharf/maint/internal/view"
)

var (
	exportFormat string
	exportType   string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export issues and events as JSON, CSV, Markdown or Excel",
	Long: `Export the issues and events visible to you.

The xlsx format writes one workbook with Issues, Comments and Events sheets
and requires --out. The other formats print one data type to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun()
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv, markdown, xlsx")
	exportCmd.Flags().StringVar(&exportType, "type", "issues", "Data type for json/csv/markdown: issues, events")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (required for xlsx)")
	addFilterFlags(exportCmd)
	rootCmd.AddCommand(exportCmd)
}

func exportRun() error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	ctx := context.Background()
	caller := currentCaller()

	f, err := view.ParseFilter(issueSearch, issueFilterU, issueStatus)
	if err != nil {
		return err
	}
	issues, err := t.Issues.List(ctx, caller)
	if err != nil {
		return err
	}
	issues = view.FilterIssues(issues, f)

	if exportFormat == "xlsx" {
		return exportWorkbook(ctx, t, caller, issues)
	}

	switch exportType {
	case "issues":
		return exportIssues(issues)
	case "events":
		events, err := t.Events.List(ctx, caller)
		if err != nil {
			return err
		}
		return exportEvents(events)
	default:
		return fmt.Errorf("unknown export type: %s (use: issues, events)", exportType)
	}
}

func exportWorkbook(ctx context.Context, t *tracker.Tracker, caller models.Caller, issues []*models.Issue) error {
	if exportOut == "" {
		return errors.New("xlsx export needs --out <file.xlsx>")
	}
	events, err := t.Events.List(ctx, caller)
	if err != nil {
		return err
	}
	data, err := export.Workbook(issues, events, t.Events.Location())
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would write %d issue(s) and %d event(s) to %s", len(issues), len(events), exportOut)
		return nil
	}
	if err := os.WriteFile(exportOut, data, 0o644); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	ui.Success("Exported %d issue(s) and %d event(s) to %s", len(issues), len(events), exportOut)
	return nil
}

func exportIssues(issues []*models.Issue) error {
	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(issues)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"ID", "Title", "Urgency", "Status", "Location", "Comments", "Created"})
		for _, i := range issues {
			_ = w.Write([]string{i.ID, i.Title, fmt.Sprint(i.Urgency), string(i.Status),
				output.Location(i.LocationName, i.LocationID), fmt.Sprint(len(i.Comments)), i.CreatedAt.Format("2006-01-02")})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Issues")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| Title | Urgency | Status | Location |")
		fmt.Fprintln(ui.Out, "|-------|---------|--------|----------|")
		for _, i := range issues {
			fmt.Fprintf(ui.Out, "| %s | %d | %s | %s |\n", mdCell(i.Title), i.Urgency, i.Status, mdCell(output.Location(i.LocationName, i.LocationID)))
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}

func exportEvents(events []*models.Event) error {
	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"ID", "Title", "ScheduledAt", "Location", "RelatedIssue"})
		for _, e := range events {
			related := ""
			if e.RelatedIssue != nil {
				related = e.RelatedIssue.ID
			}
			_ = w.Write([]string{e.ID, e.Title, e.ScheduledAt.Format("2006-01-02 15:04"), output.Location(e.LocationName, e.LocationID), related})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Events")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| When | Title | Location |")
		fmt.Fprintln(ui.Out, "|------|-------|----------|")
		for _, e := range events {
			fmt.Fprintf(ui.Out, "| %s | %s | %s |\n", e.ScheduledAt.Format("2006-01-02 15:04"), mdCell(e.Title), mdCell(output.Location(e.LocationName, e.LocationID)))
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}

func mdCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
