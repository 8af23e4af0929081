package view

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/joescharf/maint/internal/models"
)

// ErrBusy is returned by Submit while another submission is in flight.
var ErrBusy = errors.New("a submission is already in progress")

// Mode is the issue screen's current view.
type Mode string

const (
	ModeList     Mode = "list"
	ModeDetail   Mode = "detail"
	ModeCreate   Mode = "create"
	ModeSchedule Mode = "schedule"
)

// IssueBoard is the state of the issue screen. The synchronized snapshot
// and the composition state (filter, drafts, mode) are separate fields, and
// ApplySnapshot only ever replaces the snapshot.
type IssueBoard struct {
	mu       sync.Mutex
	issues   []*models.Issue
	filter   Filter
	mode     Mode
	selected string
	drafts   map[string]string
	busy     bool
	lastErr  error
}

// BoardState is a copy of the board for rendering.
type BoardState struct {
	Issues   []*models.Issue
	Visible  []*models.Issue
	Filter   Filter
	Mode     Mode
	Selected *models.Issue
	Drafts   map[string]string
	Busy     bool
	Err      error
}

func NewIssueBoard() *IssueBoard {
	return &IssueBoard{mode: ModeList, drafts: make(map[string]string)}
}

// ApplySnapshot replaces the issue list. If the selected issue is gone the
// board returns to the list.
func (b *IssueBoard) ApplySnapshot(issues []*models.Issue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.issues = issues
	if b.selected != "" && b.find(b.selected) == nil {
		b.mode, b.selected = ModeList, ""
	}
}

func (b *IssueBoard) find(id string) *models.Issue {
	for _, i := range b.issues {
		if i.ID == id {
			return i
		}
	}
	return nil
}

func (b *IssueBoard) SetFilter(f Filter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter = f
}

// Open shows the detail view of an issue in the current snapshot.
func (b *IssueBoard) Open(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.find(id) == nil {
		return false
	}
	b.mode, b.selected = ModeDetail, id
	return true
}

// StartSchedule shows the scheduling form for an issue.
func (b *IssueBoard) StartSchedule(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.find(id) == nil {
		return false
	}
	b.mode, b.selected = ModeSchedule, id
	return true
}

func (b *IssueBoard) StartCreate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mode, b.selected = ModeCreate, ""
}

// Close returns to the list. Drafts are kept.
func (b *IssueBoard) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mode, b.selected = ModeList, ""
}

func (b *IssueBoard) SetDraft(issueID, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if text == "" {
		delete(b.drafts, issueID)
		return
	}
	b.drafts[issueID] = text
}

func (b *IssueBoard) Draft(issueID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drafts[issueID]
}

// Submit runs call with the busy flag set. The flag is cleared however call
// returns, panics included.
func (b *IssueBoard) Submit(ctx context.Context, call func(context.Context) error) error {
	b.mu.Lock()
	if b.busy {
		b.mu.Unlock()
		return ErrBusy
	}
	b.busy, b.lastErr = true, nil
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.busy = false
		b.mu.Unlock()
	}()

	err := call(ctx)
	b.mu.Lock()
	b.lastErr = err
	b.mu.Unlock()
	return err
}

func (b *IssueBoard) State() BoardState {
	b.mu.Lock()
	defer b.mu.Unlock()
	drafts := make(map[string]string, len(b.drafts))
	for k, v := range b.drafts {
		drafts[k] = v
	}
	return BoardState{
		Issues:   b.issues,
		Visible:  FilterIssues(b.issues, b.filter),
		Filter:   b.filter,
		Mode:     b.mode,
		Selected: b.find(b.selected),
		Drafts:   drafts,
		Busy:     b.busy,
		Err:      b.lastErr,
	}
}

// CalendarScreen is the state of the calendar: the visible month and the
// synchronized event snapshot.
type CalendarScreen struct {
	mu     sync.Mutex
	year   int
	month  time.Month
	events []*models.Event
	now    func() time.Time
}

// NewCalendarScreen starts on the month containing now().
func NewCalendarScreen(now func() time.Time) *CalendarScreen {
	if now == nil {
		now = time.Now
	}
	t := now()
	return &CalendarScreen{year: t.Year(), month: t.Month(), now: now}
}

func (s *CalendarScreen) ApplySnapshot(events []*models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
}

func (s *CalendarScreen) Show(year int, month time.Month) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.year, s.month = year, month
}

func (s *CalendarScreen) Next() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.year, s.month = NextMonth(s.year, s.month)
}

func (s *CalendarScreen) Prev() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.year, s.month = PrevMonth(s.year, s.month)
}

func (s *CalendarScreen) Month() (int, time.Month) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.year, s.month
}

// Grid builds the visible month.
func (s *CalendarScreen) Grid() Grid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BuildMonth(s.year, s.month, s.events, s.now())
}
