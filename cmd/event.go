package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/maint/internal/output"
	"github.com/joescharf/maint/internal/tracker"
)

var (
	eventTitle    string
	eventDesc     string
	eventDate     string
	eventTime     string
	eventLocation string
	eventLocName  string
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Manage scheduled maintenance events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return eventListRun()
	},
}

var eventAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Schedule a standalone event (maintenance only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return eventAddRun()
	},
}

var eventListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List upcoming and past events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return eventListRun()
	},
}

var eventRmCmd = &cobra.Command{
	Use:     "rm <event-id>",
	Aliases: []string{"delete"},
	Short:   "Delete an event and reset its issue to pending (maintenance only)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return eventRmRun(args[0])
	},
}

func init() {
	eventAddCmd.Flags().StringVar(&eventTitle, "title", "", "Event title (required)")
	eventAddCmd.Flags().StringVar(&eventDesc, "desc", "", "Event description")
	eventAddCmd.Flags().StringVar(&eventDate, "date", "", "Date YYYY-MM-DD (required)")
	eventAddCmd.Flags().StringVar(&eventTime, "time", tracker.DefaultTimeOfDay, "Time HH:MM")
	eventAddCmd.Flags().StringVar(&eventLocation, "location", "", "Location ID (default: your location)")
	eventAddCmd.Flags().StringVar(&eventLocName, "location-name", "", "Location display name")
	_ = eventAddCmd.MarkFlagRequired("title")
	_ = eventAddCmd.MarkFlagRequired("date")

	eventCmd.AddCommand(eventAddCmd)
	eventCmd.AddCommand(eventListCmd)
	eventCmd.AddCommand(eventRmCmd)
	rootCmd.AddCommand(eventCmd)
}

func eventAddRun() error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	caller := currentCaller()
	if err := tracker.CanManageEvents(caller).Error(); err != nil {
		return err
	}
	at, err := tracker.ParseSchedule(eventDate, eventTime, t.Events.Location())
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would schedule %q for %s", eventTitle, output.When(at))
		return nil
	}

	ev, err := t.Events.Create(context.Background(), caller, tracker.NewEvent{
		Title:        eventTitle,
		Description:  eventDesc,
		Date:         eventDate,
		Time:         eventTime,
		LocationID:   eventLocation,
		LocationName: eventLocName,
	})
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	ui.Success("Scheduled event %s: %s on %s", output.Cyan(output.ShortID(ev.ID)), ev.Title, output.When(ev.ScheduledAt))
	return nil
}

func eventListRun() error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	events, err := t.Events.List(context.Background(), currentCaller())
	if err != nil {
		return err
	}
	if len(events) == 0 {
		ui.Info("No events scheduled.")
		return nil
	}

	table := ui.Table([]string{"ID", "When", "Title", "Location", "Issue"})
	for _, ev := range events {
		related := ""
		if ev.RelatedIssue != nil {
			related = output.ShortID(ev.RelatedIssue.ID)
		}
		_ = table.Append([]string{
			output.ShortID(ev.ID),
			output.When(ev.ScheduledAt),
			ev.Title,
			output.Location(ev.LocationName, ev.LocationID),
			related,
		})
	}
	_ = table.Render()
	return nil
}

func eventRmRun(id string) error {
	t, err := getTracker()
	if err != nil {
		return err
	}
	caller := currentCaller()
	if err := tracker.CanManageEvents(caller).Error(); err != nil {
		return err
	}
	ctx := context.Background()

	ev, err := t.Events.Resolve(ctx, caller, id)
	if err != nil {
		return err
	}

	if dryRun {
		what := "event " + output.ShortID(ev.ID)
		if ev.RelatedIssue != nil {
			what += " and reset issue " + output.ShortID(ev.RelatedIssue.ID) + " to pending"
		}
		ui.DryRunMsg("Would delete %s", what)
		return nil
	}

	err = t.Coordinator.Unschedule(ctx, ev.ID)
	var partial *tracker.PartialFailureError
	if errors.As(err, &partial) {
		ui.Warning("%s", strings.TrimSpace(partial.Error()))
		return err
	}
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	ui.Success("Deleted event %s: %s", output.Cyan(output.ShortID(ev.ID)), ev.Title)
	return nil
}
