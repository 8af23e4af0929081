package api

import (
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/joescharf/maint/internal/images"
	"github.com/joescharf/maint/internal/models"
	"github.com/joescharf/maint/internal/tracker"
	"github.com/joescharf/maint/internal/view"
)

type createIssueRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Urgency     int    `json:"urgency"`
}

type statusRequest struct {
	Status models.IssueStatus `json:"status"`
}

type commentRequest struct {
	Text string `json:"text"`
}

type scheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	c, ok := s.caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter, err := view.ParseFilter(q.Get("search"), q.Get("urgency"), q.Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	issues, err := s.tracker.Issues.List(r.Context(), c)
	if err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	visible := view.FilterIssues(issues, filter)
	if visible == nil {
		visible = []*models.Issue{}
	}
	writeJSON(w, http.StatusOK, visible)
}

// createIssue accepts JSON, or multipart/form-data with title, description,
// urgency and any number of "images" file parts.
func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	c, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := tracker.CanCreateIssue(c).Error(); err != nil {
		s.writeTrackerError(w, r, err)
		return
	}

	var in tracker.NewIssue
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		var err error
		if in, err = s.readIssueForm(w, r); err != nil {
			s.writeTrackerError(w, r, err)
			return
		}
	} else {
		var req createIssueRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in = tracker.NewIssue{Title: req.Title, Description: req.Description, Urgency: req.Urgency}
	}

	issue, err := s.tracker.Issues.Create(r.Context(), c, in)
	if err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

func (s *Server) readIssueForm(w http.ResponseWriter, r *http.Request) (tracker.NewIssue, error) {
	maxBody := s.limits.MaxImageBytes*int64(s.limits.MaxImages) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return tracker.NewIssue{}, &tracker.ValidationError{Field: "images", Message: "upload too large or malformed"}
	}

	in := tracker.NewIssue{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	}
	if u := strings.TrimSpace(r.FormValue("urgency")); u != "" {
		n, err := strconv.Atoi(u)
		if err != nil {
			return tracker.NewIssue{}, &tracker.ValidationError{Field: "urgency", Message: "must be a number"}
		}
		in.Urgency = n
	}

	for _, header := range r.MultipartForm.File["images"] {
		f, err := header.Open()
		if err != nil {
			return tracker.NewIssue{}, &tracker.ValidationError{Field: "images", Message: "unable to open uploaded file"}
		}
		data, err := images.Read(f, s.limits.MaxImageBytes)
		_ = f.Close()
		if err != nil {
			return tracker.NewIssue{}, &tracker.ValidationError{Field: "images", Message: header.Filename + ": " + err.Error()}
		}
		in.Images = append(in.Images, tracker.Upload{Filename: header.Filename, Data: data})
	}
	return in, nil
}

// visibleIssue loads an issue and checks the caller may see it.
func (s *Server) visibleIssue(w http.ResponseWriter, r *http.Request, c models.Caller) (*models.Issue, bool) {
	issue, err := s.tracker.Issues.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeTrackerError(w, r, err)
		return nil, false
	}
	if err := tracker.CanView(c, issue.LocationID).Error(); err != nil {
		s.writeTrackerError(w, r, err)
		return nil, false
	}
	return issue, true
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	c, ok := s.caller(w, r)
	if !ok {
		return
	}
	issue, ok := s.visibleIssue(w, r, c)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) setIssueStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := tracker.CanSetStatus(c).Error(); err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if err := s.tracker.Issues.SetStatus(r.Context(), id, req.Status); err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	issue, err := s.tracker.Issues.Get(r.Context(), id)
	if err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	c, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	issue, ok := s.visibleIssue(w, r, c)
	if !ok {
		return
	}
	if err := tracker.CanComment(c, issue).Error(); err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	comment, err := s.tracker.Issues.AppendComment(r.Context(), issue.ID, req.Text, c.Author())
	if err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (s *Server) scheduleIssue(w http.ResponseWriter, r *http.Request) {
	c, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := tracker.CanSchedule(c).Error(); err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	var req scheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ev, err := s.tracker.Coordinator.Schedule(r.Context(), c, r.PathValue("id"), req.Date, req.Time)
	if err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	c, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := tracker.CanDeleteIssue(c).Error(); err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	if err := s.tracker.Coordinator.DeleteIssue(r.Context(), r.PathValue("id")); err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
