package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/maint/internal/daemon"
	"github.com/joescharf/maint/internal/images"
	"github.com/joescharf/maint/internal/models"
	"github.com/joescharf/maint/internal/output"
	"github.com/joescharf/maint/internal/tracker"
	"github.com/joescharf/maint/internal/view"
)

var (
	issueTitle   string
	issueDesc    string
	issueUrgency int
	issueImages  []string
	issueSearch  string
	issueFilterU string
	issueStatus  string
	issueDate    string
	issueTime    string
	issueComment bool
	issueForce   bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Report and manage maintenance issues",
	Long:  "Report maintenance issues, comment on them and move them through pending, in-progress, scheduled and completed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Report a new issue at your location",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun()
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues visible to you",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details and comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0])
	},
}

var issueStatusCmd = &cobra.Command{
	Use:   "status <issue-id> <status>",
	Short: "Set an issue's status (maintenance only)",
	Long:  "Set an issue's status to pending, in-progress, scheduled or completed.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueStatusRun(args[0], args[1])
	},
}

var issueCommentCmd = &cobra.Command{
	Use:   "comment <issue-id> <text>",
	Short: "Add a comment to an issue",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueCommentRun(args[0], strings.Join(args[1:], " "))
	},
}

var issueScheduleCmd = &cobra.Command{
	Use:   "schedule <issue-id>",
	Short: "Schedule a maintenance visit for an issue (maintenance only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueScheduleRun(args[0])
	},
}

var issueRmCmd = &cobra.Command{
	Use:     "rm <issue-id>",
	Aliases: []string{"delete"},
	Short:   "Delete an issue and its photos (maintenance only)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueRmRun(args[0])
	},
}

var issueTriageCmd = &cobra.Command{
	Use:   "triage <issue-id>",
	Short: "Ask the LLM for an urgency assessment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueTriageRun(args[0])
	},
}

var issueWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the issue list live until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), daemon.ShutdownSignals...)
		defer stop()
		return issueWatchRun(ctx)
	},
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&issueSearch, "search", "s", "", "Match text in title or description")
	cmd.Flags().StringVarP(&issueFilterU, "urgency", "u", "", "Filter by urgency 1-5 (or all)")
	cmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status (or all)")
}

func init() {
	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueAddCmd.Flags().StringVar(&issueDesc, "desc", "", "Issue description")
	issueAddCmd.Flags().IntVar(&issueUrgency, "urgency", 0, "Urgency 1-5 (default: triage suggestion or 3)")
	issueAddCmd.Flags().StringArrayVar(&issueImages, "image", nil, "Photo to attach (repeatable)")
	_ = issueAddCmd.MarkFlagRequired("title")

	addFilterFlags(issueListCmd)
	addFilterFlags(issueWatchCmd)

	issueScheduleCmd.Flags().StringVar(&issueDate, "date", "", "Visit date YYYY-MM-DD (required)")
	issueScheduleCmd.Flags().StringVar(&issueTime, "time", tracker.DefaultTimeOfDay, "Visit time HH:MM")
	_ = issueScheduleCmd.MarkFlagRequired("date")

	issueTriageCmd.Flags().BoolVar(&issueComment, "comment", false, "Record the assessment as a comment")
	issueRmCmd.Flags().BoolVarP(&issueForce, "force", "f", false, "Delete even if the issue is scheduled")

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueStatusCmd)
	issueCmd.AddCommand(issueCommentCmd)
	issueCmd.AddCommand(issueScheduleCmd)
	issueCmd.AddCommand(issueRmCmd)
	issueCmd.AddCommand(issueTriageCmd)
	issueCmd.AddCommand(issueWatchCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueAddRun() error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	caller := currentCaller()
	if err := tracker.CanCreateIssue(caller).Error(); err != nil {
		return err
	}

	in := tracker.NewIssue{Title: issueTitle, Description: issueDesc, Urgency: issueUrgency}
	limits := configLimits()
	for _, path := range issueImages {
		data, err := readImageFile(path, limits.MaxImageBytes)
		if err != nil {
			return err
		}
		in.Images = append(in.Images, tracker.Upload{Filename: filepath.Base(path), Data: data})
	}

	if dryRun {
		ui.DryRunMsg("Would report issue %q at %s with %d photo(s)", issueTitle, caller.LocationID, len(in.Images))
		return nil
	}

	issue, err := t.Issues.Create(context.Background(), caller, in)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	ui.Success("Reported issue %s: %s (urgency %s)", output.Cyan(output.ShortID(issue.ID)), issue.Title, output.UrgencyColor(issue.Urgency))
	return nil
}

func readImageFile(path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	data, err := images.Read(f, maxBytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

func issueListRun() error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	f, err := view.ParseFilter(issueSearch, issueFilterU, issueStatus)
	if err != nil {
		return err
	}

	all, err := t.Issues.List(context.Background(), currentCaller())
	if err != nil {
		return err
	}
	renderIssues(all, view.FilterIssues(all, f), f)
	return nil
}

func renderIssues(all, visible []*models.Issue, f view.Filter) {
	if len(visible) == 0 {
		if f.Active() && len(all) > 0 {
			ui.Info("No issues match the filter (%d hidden).", len(all))
		} else {
			ui.Info("No issues found.")
		}
		return
	}

	table := ui.Table([]string{"ID", "Title", "Urgency", "Status", "Location", "Comments", "Reported"})
	for _, issue := range visible {
		_ = table.Append([]string{
			output.ShortID(issue.ID),
			issue.Title,
			output.UrgencyColor(issue.Urgency),
			output.StatusColor(issue.Status),
			output.Location(issue.LocationName, issue.LocationID),
			fmt.Sprint(len(issue.Comments)),
			output.Ago(issue.CreatedAt, time.Now()),
		})
	}
	_ = table.Render()
	if f.Active() {
		ui.VerboseLog("%d of %d issues shown", len(visible), len(all))
	}
}

func issueShowRun(id string) error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	issue, err := t.Issues.Resolve(context.Background(), currentCaller(), id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(output.ShortID(issue.ID)), issue.Title)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(issue.Status))
	fmt.Fprintf(ui.Out, "  Urgency:    %s\n", output.UrgencyColor(issue.Urgency))
	fmt.Fprintf(ui.Out, "  Location:   %s\n", output.Location(issue.LocationName, issue.LocationID))
	if issue.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", issue.Description)
	}
	if issue.ScheduledDate != nil {
		fmt.Fprintf(ui.Out, "  Scheduled:  %s\n", output.When(*issue.ScheduledDate))
	}
	for _, img := range issue.Images {
		fmt.Fprintf(ui.Out, "  Photo:      %s\n", img.URL)
	}
	fmt.Fprintf(ui.Out, "  Reported:   %s by %s\n", issue.CreatedAt.Format(time.RFC3339), issue.CreatedBy.Name)
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", issue.ID)

	if len(issue.Comments) > 0 {
		fmt.Fprintln(ui.Out)
		fmt.Fprintf(ui.Out, "  Comments (%d):\n", len(issue.Comments))
		for _, c := range issue.Comments {
			fmt.Fprintf(ui.Out, "    %s %s (%s): %s\n", c.CreatedAt.Format("2006-01-02 15:04"), c.Author.Name, c.Author.Role, c.Text)
		}
	}
	return nil
}

func issueStatusRun(id, status string) error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	caller := currentCaller()
	if err := tracker.CanSetStatus(caller).Error(); err != nil {
		return err
	}
	st := models.IssueStatus(strings.ToLower(status))
	if !st.Valid() {
		return fmt.Errorf("unknown status %q (want pending, in-progress, scheduled or completed)", status)
	}

	ctx := context.Background()
	issue, err := t.Issues.Resolve(ctx, caller, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would set issue %s to %s", output.ShortID(issue.ID), st)
		return nil
	}
	if err := t.Issues.SetStatus(ctx, issue.ID, st); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	ui.Success("Issue %s is now %s", output.Cyan(output.ShortID(issue.ID)), output.StatusColor(st))
	return nil
}

func issueCommentRun(id, text string) error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	caller := currentCaller()
	ctx := context.Background()

	issue, err := t.Issues.Resolve(ctx, caller, id)
	if err != nil {
		return err
	}
	if err := tracker.CanComment(caller, issue).Error(); err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would comment on issue %s: %s", output.ShortID(issue.ID), text)
		return nil
	}
	if _, err := t.Issues.AppendComment(ctx, issue.ID, text, caller.Author()); err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	ui.Success("Commented on issue %s", output.Cyan(output.ShortID(issue.ID)))
	return nil
}

func issueScheduleRun(id string) error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	caller := currentCaller()
	if err := tracker.CanSchedule(caller).Error(); err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := t.Issues.Resolve(ctx, caller, id)
	if err != nil {
		return err
	}
	at, err := tracker.ParseSchedule(issueDate, issueTime, t.Events.Location())
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would schedule issue %s for %s", output.ShortID(issue.ID), output.When(at))
		return nil
	}

	ev, err := t.Coordinator.Schedule(ctx, caller, issue.ID, issueDate, issueTime)
	var partial *tracker.PartialFailureError
	if errors.As(err, &partial) {
		ui.Warning("%s", partial.Error())
		return err
	}
	if err != nil {
		return fmt.Errorf("schedule issue: %w", err)
	}
	ui.Success("Scheduled issue %s for %s (event %s)", output.Cyan(output.ShortID(issue.ID)), output.When(ev.ScheduledAt), output.ShortID(ev.ID))
	return nil
}

func issueRmRun(id string) error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	caller := currentCaller()
	if err := tracker.CanDeleteIssue(caller).Error(); err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := t.Issues.Resolve(ctx, caller, id)
	if err != nil {
		return err
	}
	if issue.Status == models.IssueStatusScheduled && !issueForce {
		return fmt.Errorf("issue %s is scheduled; delete its event first or use --force", output.ShortID(issue.ID))
	}

	if dryRun {
		ui.DryRunMsg("Would delete issue %s: %s (%d photo(s))", output.ShortID(issue.ID), issue.Title, len(issue.Images))
		return nil
	}
	if err := t.Coordinator.DeleteIssue(ctx, issue.ID); err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	ui.Success("Deleted issue %s: %s", output.Cyan(output.ShortID(issue.ID)), issue.Title)
	return nil
}

func issueTriageRun(id string) error {
	client := triageClient()
	if client == nil {
		return errors.New("no Anthropic API key configured (set anthropic.api_key or ANTHROPIC_API_KEY)")
	}
	t, err := getTracker()
	if err != nil {
		return err
	}
	caller := currentCaller()
	ctx := context.Background()

	issue, err := t.Issues.Resolve(ctx, caller, id)
	if err != nil {
		return err
	}
	comments := make([]string, len(issue.Comments))
	for i, c := range issue.Comments {
		comments[i] = c.Text
	}

	ui.VerboseLog("Triaging issue %s", output.ShortID(issue.ID))
	result, err := client.Triage(ctx, issue.Title, issue.Description, comments)
	if err != nil {
		return fmt.Errorf("triage: %w", err)
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(output.ShortID(issue.ID)), issue.Title)
	fmt.Fprintf(ui.Out, "  Current:    %s\n", output.UrgencyColor(issue.Urgency))
	fmt.Fprintf(ui.Out, "  Suggested:  %s\n", output.UrgencyColor(result.Urgency))
	fmt.Fprintf(ui.Out, "  Summary:    %s\n", result.Summary)
	fmt.Fprintf(ui.Out, "  Reason:     %s\n", result.Reason)

	if !issueComment {
		return nil
	}
	if err := tracker.CanComment(caller, issue).Error(); err != nil {
		return err
	}
	text := fmt.Sprintf("Triage: urgency %d. %s", result.Urgency, result.Reason)
	if dryRun {
		ui.DryRunMsg("Would comment on issue %s: %s", output.ShortID(issue.ID), text)
		return nil
	}
	if _, err := t.Issues.AppendComment(ctx, issue.ID, text, caller.Author()); err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	ui.Success("Recorded triage on issue %s", output.Cyan(output.ShortID(issue.ID)))
	return nil
}

// issueWatchRun re-renders the filtered list on every snapshot until ctx ends.
func issueWatchRun(ctx context.Context) error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	f, err := view.ParseFilter(issueSearch, issueFilterU, issueStatus)
	if err != nil {
		return err
	}

	board := view.NewIssueBoard()
	board.SetFilter(f)
	updates := make(chan struct{}, 1)
	unsub, err := t.Issues.Subscribe(ctx, currentCaller(), func(issues []*models.Issue) {
		board.ApplySnapshot(issues)
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-updates:
			st := board.State()
			fmt.Fprintf(ui.Out, "\n%s  %d issue(s)\n", output.Cyan(time.Now().Format("15:04:05")), len(st.Visible))
			renderIssues(st.Issues, st.Visible, st.Filter)
		}
	}
}
