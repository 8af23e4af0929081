package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/joescharf/maint/internal/models"
	"github.com/joescharf/maint/internal/tracker"
	"github.com/joescharf/maint/internal/view"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// liveMessage is a client-to-server frame on a live connection.
type liveMessage struct {
	Type    string             `json:"type"`
	Search  string             `json:"search,omitempty"`
	Urgency string             `json:"urgency,omitempty"`
	Status  models.IssueStatus `json:"status,omitempty"`
	ID      string             `json:"id,omitempty"`
	Text    string             `json:"text,omitempty"`
	Year    int                `json:"year,omitempty"`
	Month   int                `json:"month,omitempty"`
}

type filterFrame struct {
	Search  string             `json:"search"`
	Urgency int                `json:"urgency"`
	Status  models.IssueStatus `json:"status"`
}

type issuesFrame struct {
	Type     string          `json:"type"`
	Issues   []*models.Issue `json:"issues"`
	Total    int             `json:"total"`
	Filter   filterFrame     `json:"filter"`
	Mode     view.Mode       `json:"mode"`
	Selected *models.Issue   `json:"selected,omitempty"`
	Draft    string          `json:"draft,omitempty"`
	Busy     bool            `json:"busy"`
	Error    string          `json:"error,omitempty"`
}

type calendarFrame struct {
	Type     string           `json:"type"`
	Events   []*models.Event  `json:"events"`
	Calendar calendarResponse `json:"calendar"`
	Error    string           `json:"error,omitempty"`
}

// liveSession is one websocket connection. Only writeLoop writes to conn.
type liveSession struct {
	id     string
	conn   *websocket.Conn
	logger *zap.Logger
	dirty  chan struct{}

	mu     sync.Mutex
	notice string
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (*liveSession, bool) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return nil, false
	}
	id := uuid.NewString()
	return &liveSession{
		id:     id,
		conn:   conn,
		logger: s.logger.With(zap.String("session", id), zap.String("path", r.URL.Path)),
		dirty:  make(chan struct{}, 1),
	}, true
}

// markDirty schedules a render. Pending renders coalesce.
func (ls *liveSession) markDirty() {
	select {
	case ls.dirty <- struct{}{}:
	default:
	}
}

func (ls *liveSession) fail(format string, args ...any) {
	ls.mu.Lock()
	ls.notice = fmt.Sprintf(format, args...)
	ls.mu.Unlock()
	ls.markDirty()
}

// takeNotice returns and clears the pending error notice.
func (ls *liveSession) takeNotice() string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	n := ls.notice
	ls.notice = ""
	return n
}

func (ls *liveSession) writeLoop(ctx context.Context, render func() any) {
	defer ls.conn.Close()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = ls.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case <-ls.dirty:
			_ = ls.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ls.conn.WriteJSON(render()); err != nil {
				ls.logger.Debug("live write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := ls.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (ls *liveSession) readLoop(handle func(liveMessage)) {
	for {
		var msg liveMessage
		if err := ls.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ls.logger.Debug("live read failed", zap.Error(err))
			}
			return
		}
		handle(msg)
	}
}

// run drives a session until the client goes away, then tears down the
// writer and any submissions before returning.
func (ls *liveSession) run(ctx context.Context, wg *sync.WaitGroup, render func() any, handle func(context.Context, liveMessage)) {
	ctx, cancel := context.WithCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		ls.writeLoop(ctx, render)
		cancel()
	}()
	ls.logger.Info("live session opened")
	ls.readLoop(func(msg liveMessage) { handle(ctx, msg) })
	cancel()
	wg.Wait()
	ls.logger.Info("live session closed")
}

// liveIssues streams the caller's issue board: every snapshot or local
// interaction pushes a fresh frame.
func (s *Server) liveIssues(w http.ResponseWriter, r *http.Request) {
	c, ok := s.caller(w, r)
	if !ok {
		return
	}
	ls, ok := s.upgrade(w, r)
	if !ok {
		return
	}

	board := view.NewIssueBoard()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	unsub, err := s.tracker.Issues.Subscribe(ctx, c, func(issues []*models.Issue) {
		board.ApplySnapshot(issues)
		ls.markDirty()
	})
	if err != nil {
		s.logger.Error("live issues subscribe failed", zap.Error(err))
		_ = ls.conn.Close()
		return
	}
	defer unsub()

	var wg sync.WaitGroup
	render := func() any { return issuesFrameOf(board.State(), ls.takeNotice()) }
	handle := func(ctx context.Context, msg liveMessage) {
		s.handleBoardMessage(ctx, &wg, c, board, ls, msg)
	}
	ls.run(ctx, &wg, render, handle)
}

func issuesFrameOf(st view.BoardState, notice string) issuesFrame {
	f := issuesFrame{
		Type:     "issues",
		Issues:   st.Visible,
		Total:    len(st.Issues),
		Filter:   filterFrame{Search: st.Filter.Search, Urgency: st.Filter.Urgency, Status: st.Filter.Status},
		Mode:     st.Mode,
		Selected: st.Selected,
		Busy:     st.Busy,
		Error:    notice,
	}
	if f.Issues == nil {
		f.Issues = []*models.Issue{}
	}
	if st.Selected != nil {
		f.Draft = st.Drafts[st.Selected.ID]
	}
	if f.Error == "" && st.Err != nil {
		f.Error = st.Err.Error()
	}
	return f
}

func (s *Server) handleBoardMessage(ctx context.Context, wg *sync.WaitGroup, c models.Caller, board *view.IssueBoard, ls *liveSession, msg liveMessage) {
	defer ls.markDirty()
	switch msg.Type {
	case "filter":
		f, err := view.ParseFilter(msg.Search, msg.Urgency, string(msg.Status))
		if err != nil {
			ls.fail("%s", err)
			return
		}
		board.SetFilter(f)
	case "open":
		if !board.Open(msg.ID) {
			ls.fail("issue %s is not in the list", msg.ID)
		}
	case "close":
		board.Close()
	case "draft":
		board.SetDraft(msg.ID, msg.Text)
	case "comment":
		text := msg.Text
		if text == "" {
			text = board.Draft(msg.ID)
		}
		s.submit(ctx, wg, board, ls, func(ctx context.Context) error {
			issue, err := s.tracker.Issues.Get(ctx, msg.ID)
			if err != nil {
				return err
			}
			if err := tracker.CanComment(c, issue).Error(); err != nil {
				return err
			}
			if _, err := s.tracker.Issues.AppendComment(ctx, msg.ID, text, c.Author()); err != nil {
				return err
			}
			board.SetDraft(msg.ID, "")
			return nil
		})
	case "status":
		s.submit(ctx, wg, board, ls, func(ctx context.Context) error {
			if err := tracker.CanSetStatus(c).Error(); err != nil {
				return err
			}
			return s.tracker.Issues.SetStatus(ctx, msg.ID, msg.Status)
		})
	default:
		ls.fail("unknown message type %q", msg.Type)
	}
}

// submit runs call in the background under the board's busy flag so the
// client sees the in-flight state.
func (s *Server) submit(ctx context.Context, wg *sync.WaitGroup, board *view.IssueBoard, ls *liveSession, call func(context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ls.markDirty()
		if err := board.Submit(ctx, call); err != nil {
			ls.logger.Debug("live submission failed", zap.Error(err))
		}
	}()
}

// liveEvents streams the calendar for the caller. The client moves between
// months with "month", "next" and "prev" messages.
func (s *Server) liveEvents(w http.ResponseWriter, r *http.Request) {
	c, ok := s.caller(w, r)
	if !ok {
		return
	}
	ls, ok := s.upgrade(w, r)
	if !ok {
		return
	}

	loc := s.tracker.Events.Location()
	screen := view.NewCalendarScreen(func() time.Time { return s.now().In(loc) })
	var (
		mu     sync.Mutex
		events []*models.Event
	)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	unsub, err := s.tracker.Events.Subscribe(ctx, c, func(evs []*models.Event) {
		mu.Lock()
		events = evs
		mu.Unlock()
		screen.ApplySnapshot(evs)
		ls.markDirty()
	})
	if err != nil {
		s.logger.Error("live events subscribe failed", zap.Error(err))
		_ = ls.conn.Close()
		return
	}
	defer unsub()

	render := func() any {
		mu.Lock()
		evs := events
		mu.Unlock()
		if evs == nil {
			evs = []*models.Event{}
		}
		return calendarFrame{Type: "calendar", Events: evs, Calendar: calendarJSON(screen.Grid()), Error: ls.takeNotice()}
	}
	handle := func(_ context.Context, msg liveMessage) {
		defer ls.markDirty()
		switch msg.Type {
		case "month":
			if msg.Year < 1 || msg.Month < 1 || msg.Month > 12 {
				ls.fail("invalid month %d-%d", msg.Year, msg.Month)
				return
			}
			screen.Show(msg.Year, time.Month(msg.Month))
		case "next":
			screen.Next()
		case "prev":
			screen.Prev()
		default:
			ls.fail("unknown message type %q", msg.Type)
		}
	}
	var wg sync.WaitGroup
	ls.run(ctx, &wg, render, handle)
}
