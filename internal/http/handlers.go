package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"cashflow/internal/core"
	applog "cashflow/internal/log"
	"cashflow/internal/tracker"
)

// pageData is shared by the page shell and its partials.
type pageData struct {
	View     tracker.View
	Provider string
	Form     formData
}

// formData holds the entry form's field values. When the kind select
// changes the form is re-rendered from the submitted values so typing is
// not lost.
type formData struct {
	Editing     *core.Transaction
	Kind        string
	Amount      string
	Description string
	Category    string
	Date        string
	Categories  []string
}

func newFormData(v tracker.View, q url.Values) formData {
	f := formData{Editing: v.Editing, Kind: core.KindExpense.String()}
	if e := v.Editing; e != nil {
		f.Kind = e.Kind.String()
		f.Amount = e.Amount.String()
		f.Description = e.Description
		f.Category = e.Category
		f.Date = formatDateInput(e.OccurredAt)
	}
	if q.Has("kind") {
		f.Kind = sanitizeInput(q.Get("kind"))
		f.Amount = sanitizeInput(q.Get("amount"))
		f.Description = sanitizeInput(q.Get("description"))
		f.Category = sanitizeInput(q.Get("category"))
		f.Date = sanitizeInput(q.Get("date"))
	}

	kind, err := core.ParseKind(f.Kind)
	if err != nil {
		kind = core.KindExpense
	}
	f.Kind = kind.String()
	f.Categories = core.Categories(kind)
	return f
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	health := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]string{"templates": "ok", "storage": "ok"}

	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			requestLogger(r, applog.ComponentHTTP).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			checks["storage"] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	reqs := s.tracer.GetMetrics()
	limits := s.limiter.GetMetrics()
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
		"metrics": map[string]any{
			"sessions":            s.sessions.Len(),
			"requests_total":      reqs.TotalRequests,
			"requests_in_flight":  reqs.InFlight,
			"rate_limited":        limits.Denied,
			"suspicious_requests": s.detector.SuspiciousCount(),
		},
	})
}

// handleIndex renders the page shell. Visiting it starts a session.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Ensure(w, r)
	v := sess.Tracker.View()
	s.render(w, r, "index.html", pageData{
		View:     v,
		Provider: s.provider.Name(),
		Form:     newFormData(v, nil),
	})
}

// handleDashboard renders the summary, charts and filtered list.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Ensure(w, r)
	sess.Tracker.SetSearch(ParseSearch(r.URL.Query()))
	s.render(w, r, "dashboard.html", pageData{
		View:     sess.Tracker.View(),
		Provider: s.provider.Name(),
	})
}

// handleForm renders the entry form in create or edit mode.
func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Ensure(w, r)
	v := sess.Tracker.View()
	s.render(w, r, "form.html", pageData{
		View: v,
		Form: newFormData(v, r.URL.Query()),
	})
}
