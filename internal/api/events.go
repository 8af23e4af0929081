package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/joescharf/maint/internal/models"
	"github.com/joescharf/maint/internal/tracker"
	"github.com/joescharf/maint/internal/view"
)

type createEventRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	LocationID   string `json:"locationId"`
	LocationName string `json:"locationName"`
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	c, ok := s.caller(w, r)
	if !ok {
		return
	}
	events, err := s.tracker.Events.List(r.Context(), c)
	if err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	c, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := tracker.CanManageEvents(c).Error(); err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	var req createEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ev, err := s.tracker.Events.Create(r.Context(), c, tracker.NewEvent{
		Title:        req.Title,
		Description:  req.Description,
		Date:         req.Date,
		Time:         req.Time,
		LocationID:   req.LocationID,
		LocationName: req.LocationName,
	})
	if err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) deleteEvent(w http.ResponseWriter, r *http.Request) {
	c, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := tracker.CanManageEvents(c).Error(); err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	if err := s.tracker.Coordinator.Unschedule(r.Context(), r.PathValue("id")); err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type calendarCell struct {
	Date   string          `json:"date,omitempty"`
	Today  bool            `json:"today,omitempty"`
	Events []*models.Event `json:"events"`
}

type calendarResponse struct {
	Year    int              `json:"year"`
	Month   int              `json:"month"`
	Leading int              `json:"leading"`
	Weeks   [][]calendarCell `json:"weeks"`
}

func calendarJSON(g view.Grid) calendarResponse {
	resp := calendarResponse{Year: g.Year, Month: int(g.Month), Leading: g.Leading, Weeks: [][]calendarCell{}}
	for _, row := range g.Rows() {
		week := make([]calendarCell, len(row))
		for i, cell := range row {
			week[i] = calendarCell{Today: cell.Today, Events: cell.Events}
			if !cell.Empty() {
				week[i].Date = cell.Date.Format(tracker.DateLayout)
			}
			if week[i].Events == nil {
				week[i].Events = []*models.Event{}
			}
		}
		resp.Weeks = append(resp.Weeks, week)
	}
	return resp
}

// parseMonth reads ?year=&month=, defaulting to the current month.
func parseMonth(r *http.Request, now time.Time) (int, time.Month, bool) {
	year, month := now.Year(), now.Month()
	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 {
			return 0, 0, false
		}
		year = y
	}
	if v := r.URL.Query().Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return 0, 0, false
		}
		month = time.Month(m)
	}
	return year, month, true
}

func (s *Server) calendar(w http.ResponseWriter, r *http.Request) {
	c, ok := s.caller(w, r)
	if !ok {
		return
	}
	now := s.now().In(s.tracker.Events.Location())
	year, month, ok := parseMonth(r, now)
	if !ok {
		writeError(w, http.StatusBadRequest, "year and month must be numeric, month 1-12")
		return
	}
	events, err := s.tracker.Events.List(r.Context(), c)
	if err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calendarJSON(view.BuildMonth(year, month, events, now)))
}
