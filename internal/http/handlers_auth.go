package http

import (
	"net/http"

	applog "cashflow/internal/log"
)

// handleLogin redirects to the identity provider with a fresh state bound
// to the session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Ensure(w, r)
	state := sess.NewState()
	http.Redirect(w, r, s.provider.AuthCodeURL(state), http.StatusFound)
}

// handleCallback completes sign-in. Any failure is logged and the user is
// sent back to the page still signed out.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := requestLogger(r, applog.ComponentAuth).With(applog.FieldOperation, applog.OpSignIn)

	sess, ok := s.sessions.Lookup(r)
	if !ok {
		log.WarnContext(ctx, "Sign-in callback without session")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	q := r.URL.Query()
	if !sess.ConsumeState(q.Get("state")) {
		log.WarnContext(ctx, "Sign-in callback with invalid state")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if e := q.Get("error"); e != "" {
		log.WarnContext(ctx, "Sign-in cancelled by provider", applog.FieldError, e)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	p, err := s.provider.Exchange(ctx, q.Get("code"))
	if err != nil {
		log.ErrorContext(ctx, "Sign-in failed", applog.FieldError, err)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err := sess.Tracker.SignIn(ctx, p); err != nil {
		log.ErrorContext(ctx, "Sign-in failed", applog.FieldOwnerID, p.UID, applog.FieldError, err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleLogout signs out and ends the session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.sessions.Lookup(r); ok {
		sess.Tracker.SignOut()
	}
	s.sessions.Destroy(w, r)

	if r.Header.Get("HX-Request") == "true" {
		NewHTMXResponse().Header("HX-Redirect", "/").Write(w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
