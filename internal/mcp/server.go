package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/maint/internal/models"
	"github.com/joescharf/maint/internal/tracker"
	"github.com/joescharf/maint/internal/view"
)

// Server exposes the tracker as MCP tools. Every call acts as one caller,
// taken from the configured user.
type Server struct {
	tracker *tracker.Tracker
	caller  models.Caller
	now     func() time.Time
}

// NewServer creates the MCP server wrapper.
func NewServer(t *tracker.Tracker, caller models.Caller) *Server {
	return &Server{tracker: t, caller: caller, now: time.Now}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("maint", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.addCommentTool())
	srv.AddTool(s.setStatusTool())
	srv.AddTool(s.scheduleIssueTool())
	srv.AddTool(s.listEventsTool())
	srv.AddTool(s.calendarTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Output shapes
// ---------------------------------------------------------------------------

type commentOut struct {
	Author    string `json:"author"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

type issueOut struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	Urgency       int          `json:"urgency"`
	Status        string       `json:"status"`
	Location      string       `json:"location"`
	CreatedBy     string       `json:"created_by"`
	CreatedAt     string       `json:"created_at"`
	ScheduledDate string       `json:"scheduled_date,omitempty"`
	Images        []string     `json:"images,omitempty"`
	Comments      []commentOut `json:"comments,omitempty"`
}

func toIssueOut(i *models.Issue, withComments bool) issueOut {
	out := issueOut{
		ID:          i.ID,
		Title:       i.Title,
		Description: i.Description,
		Urgency:     i.Urgency,
		Status:      string(i.Status),
		Location:    locationOf(i.LocationName, i.LocationID),
		CreatedBy:   i.CreatedBy.Name,
		CreatedAt:   i.CreatedAt.Format(time.RFC3339),
	}
	if i.ScheduledDate != nil {
		out.ScheduledDate = i.ScheduledDate.Format(time.RFC3339)
	}
	for _, img := range i.Images {
		out.Images = append(out.Images, img.URL)
	}
	if withComments {
		for _, c := range i.Comments {
			out.Comments = append(out.Comments, commentOut{
				Author:    c.Author.Name,
				Role:      string(c.Author.Role),
				Text:      c.Text,
				CreatedAt: c.CreatedAt.Format(time.RFC3339),
			})
		}
	}
	return out
}

type eventOut struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	ScheduledAt  string `json:"scheduled_at"`
	Location     string `json:"location"`
	RelatedIssue string `json:"related_issue,omitempty"`
}

func toEventOut(e *models.Event) eventOut {
	out := eventOut{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		ScheduledAt: e.ScheduledAt.Format(time.RFC3339),
		Location:    locationOf(e.LocationName, e.LocationID),
	}
	if e.RelatedIssue != nil {
		out.RelatedIssue = e.RelatedIssue.ID
	}
	return out
}

func locationOf(name, id string) string {
	if name != "" {
		return name
	}
	return id
}

func jsonResult(v any, what string) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal %s: %v", what, err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// trackerError turns a tracker error into a tool error result.
func trackerError(action string, err error) *mcp.CallToolResult {
	var verr *tracker.ValidationError
	switch {
	case errors.As(err, &verr):
		return mcp.NewToolResultError(fmt.Sprintf("invalid input: %v", verr))
	case errors.Is(err, tracker.ErrForbidden), errors.Is(err, tracker.ErrNotFound), errors.Is(err, tracker.ErrConflict):
		return mcp.NewToolResultError(err.Error())
	default:
		return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err))
	}
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// maint_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("maint_list_issues",
		mcp.WithDescription("List maintenance issues visible to the configured user, newest first. Returns a JSON array with id, title, description, urgency (1-5), status (pending/in-progress/scheduled/completed), location and scheduled_date."),
		mcp.WithString("search", mcp.Description("Case-insensitive text to match in title or description")),
		mcp.WithString("urgency", mcp.Description("Urgency filter: 1-5 or all")),
		mcp.WithString("status", mcp.Description("Status filter: pending, in-progress, scheduled, completed or all")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter, err := view.ParseFilter(
		request.GetString("search", ""),
		request.GetString("urgency", ""),
		request.GetString("status", ""),
	)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	issues, err := s.tracker.Issues.List(ctx, s.caller)
	if err != nil {
		return trackerError("list issues", err), nil
	}

	visible := view.FilterIssues(issues, filter)
	out := make([]issueOut, len(visible))
	for i, issue := range visible {
		out[i] = toIssueOut(issue, false)
	}
	return jsonResult(out, "issues")
}

// maint_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("maint_create_issue",
		mcp.WithDescription("Report a maintenance issue at the configured user's location. Returns the created issue as JSON."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short title of the problem")),
		mcp.WithString("description", mcp.Description("What is wrong and where")),
		mcp.WithNumber("urgency", mcp.Description("Urgency 1 (low) to 5 (critical); omitted means suggested or 3")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	if err := tracker.CanCreateIssue(s.caller).Error(); err != nil {
		return trackerError("create issue", err), nil
	}

	issue, err := s.tracker.Issues.Create(ctx, s.caller, tracker.NewIssue{
		Title:       title,
		Description: request.GetString("description", ""),
		Urgency:     request.GetInt("urgency", 0),
	})
	if err != nil {
		return trackerError("create issue", err), nil
	}
	return jsonResult(toIssueOut(issue, false), "issue")
}

// maint_add_comment
func (s *Server) addCommentTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("maint_add_comment",
		mcp.WithDescription("Append a comment to an issue. Returns the issue with its comments as JSON."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full ULID or unique prefix)")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Comment text")),
	)
	return tool, s.handleAddComment
}

func (s *Server) handleAddComment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}

	issue, err := s.tracker.Issues.Resolve(ctx, s.caller, issueID)
	if err != nil {
		return trackerError("find issue", err), nil
	}
	if _, err := s.tracker.Issues.AppendComment(ctx, issue.ID, text, s.caller.Author()); err != nil {
		return trackerError("add comment", err), nil
	}
	issue, err = s.tracker.Issues.Get(ctx, issue.ID)
	if err != nil {
		return trackerError("reload issue", err), nil
	}
	return jsonResult(toIssueOut(issue, true), "issue")
}

// maint_set_status
func (s *Server) setStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("maint_set_status",
		mcp.WithDescription("Change an issue's status. Maintenance only. Returns the updated issue as JSON."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full ULID or unique prefix)")),
		mcp.WithString("status", mcp.Required(), mcp.Description("New status: pending, in-progress, scheduled, completed")),
	)
	return tool, s.handleSetStatus
}

func (s *Server) handleSetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	status, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: status"), nil
	}
	if err := tracker.CanSetStatus(s.caller).Error(); err != nil {
		return trackerError("set status", err), nil
	}

	issue, err := s.tracker.Issues.Resolve(ctx, s.caller, issueID)
	if err != nil {
		return trackerError("find issue", err), nil
	}
	if err := s.tracker.Issues.SetStatus(ctx, issue.ID, models.IssueStatus(status)); err != nil {
		return trackerError("set status", err), nil
	}
	issue, err = s.tracker.Issues.Get(ctx, issue.ID)
	if err != nil {
		return trackerError("reload issue", err), nil
	}
	return jsonResult(toIssueOut(issue, false), "issue")
}

// maint_schedule_issue
func (s *Server) scheduleIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("maint_schedule_issue",
		mcp.WithDescription("Schedule a maintenance visit for an issue. Creates a calendar event linked to the issue and marks the issue scheduled. Maintenance only. Returns the event as JSON."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full ULID or unique prefix)")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Date as YYYY-MM-DD")),
		mcp.WithString("time", mcp.Description("Time of day as HH:MM (default 09:00)")),
	)
	return tool, s.handleScheduleIssue
}

func (s *Server) handleScheduleIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	date, err := request.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: date"), nil
	}
	if err := tracker.CanSchedule(s.caller).Error(); err != nil {
		return trackerError("schedule issue", err), nil
	}

	issue, err := s.tracker.Issues.Resolve(ctx, s.caller, issueID)
	if err != nil {
		return trackerError("find issue", err), nil
	}
	ev, err := s.tracker.Coordinator.Schedule(ctx, s.caller, issue.ID, date, request.GetString("time", ""))
	if err != nil {
		return trackerError("schedule issue", err), nil
	}
	return jsonResult(toEventOut(ev), "event")
}

// maint_list_events
func (s *Server) listEventsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("maint_list_events",
		mcp.WithDescription("List calendar events visible to the configured user in date order. Returns a JSON array with id, title, scheduled_at, location and related_issue."),
	)
	return tool, s.handleListEvents
}

func (s *Server) handleListEvents(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	events, err := s.tracker.Events.List(ctx, s.caller)
	if err != nil {
		return trackerError("list events", err), nil
	}
	out := make([]eventOut, len(events))
	for i, e := range events {
		out[i] = toEventOut(e)
	}
	return jsonResult(out, "events")
}

// maint_calendar
func (s *Server) calendarTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("maint_calendar",
		mcp.WithDescription("Show one calendar month: every day that has events, with those events in time order. Defaults to the current month."),
		mcp.WithNumber("year", mcp.Description("Year, e.g. 2024")),
		mcp.WithNumber("month", mcp.Description("Month 1-12")),
	)
	return tool, s.handleCalendar
}

func (s *Server) handleCalendar(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	now := s.now().In(s.tracker.Events.Location())
	year := request.GetInt("year", now.Year())
	month := request.GetInt("month", int(now.Month()))
	if month < 1 || month > 12 {
		return mcp.NewToolResultError(fmt.Sprintf("month must be 1-12, got %d", month)), nil
	}

	events, err := s.tracker.Events.List(ctx, s.caller)
	if err != nil {
		return trackerError("list events", err), nil
	}
	grid := view.BuildMonth(year, time.Month(month), events, now)

	type dayOut struct {
		Date   string     `json:"date"`
		Today  bool       `json:"today,omitempty"`
		Events []eventOut `json:"events"`
	}
	days := []dayOut{}
	for _, cell := range grid.Cells {
		if cell.Empty() || len(cell.Events) == 0 {
			continue
		}
		d := dayOut{Date: cell.Date.Format(tracker.DateLayout), Today: cell.Today}
		for _, e := range cell.Events {
			d.Events = append(d.Events, toEventOut(e))
		}
		days = append(days, d)
	}

	return jsonResult(map[string]any{
		"year":         year,
		"month":        month,
		"days_in":      view.DaysIn(year, time.Month(month)),
		"first_offset": grid.Leading,
		"days":         days,
	}, "calendar")
}
