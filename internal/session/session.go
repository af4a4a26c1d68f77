// Package session maps browser cookies to per-session trackers.
package session

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"cashflow/internal/cache"
	applog "cashflow/internal/log"
	"cashflow/internal/tracker"
)

const CookieName = "cashflow_session"

// Session is one browser session. Its tracker is closed when the session
// expires, is evicted or is destroyed.
type Session struct {
	ID      string
	Tracker *tracker.Tracker

	mu         sync.Mutex
	oauthState string
}

// NewState returns a fresh OAuth state value bound to this session.
func (s *Session) NewState() string {
	st := uuid.NewString()
	s.mu.Lock()
	s.oauthState = st
	s.mu.Unlock()
	return st
}

// ConsumeState reports whether state matches the pending one. The pending
// state is cleared either way.
func (s *Session) ConsumeState(state string) bool {
	s.mu.Lock()
	want := s.oauthState
	s.oauthState = ""
	s.mu.Unlock()
	return want != "" && subtle.ConstantTimeCompare([]byte(want), []byte(state)) == 1
}

// Options configures a Registry.
type Options struct {
	MaxSessions  int
	TTL          time.Duration
	SecureCookie bool
}

type Registry struct {
	sessions   *cache.LRUCache[*Session]
	newTracker func() *tracker.Tracker
	opts       Options
	logger     *slog.Logger
}

func NewRegistry(opts Options, newTracker func() *tracker.Tracker, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1000
	}
	if opts.TTL <= 0 {
		opts.TTL = 12 * time.Hour
	}
	r := &Registry{
		newTracker: newTracker,
		opts:       opts,
		logger:     logger.With(applog.FieldComponent, applog.ComponentSession),
	}
	r.sessions = cache.NewLRUCache[*Session](opts.MaxSessions, opts.TTL,
		cache.WithSlidingExpiry[*Session](),
		cache.WithEvictFunc(func(id string, s *Session) {
			s.Tracker.Close()
			r.logger.Debug("Session ended", applog.FieldSessionID, shortID(id))
		}))
	return r
}

// Sessions exposes the backing cache for periodic expiry.
func (r *Registry) Sessions() cache.Cleaner {
	return r.sessions
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return r.sessions.Size()
}

// Lookup returns the session named by the request cookie.
func (r *Registry) Lookup(req *http.Request) (*Session, bool) {
	c, err := req.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil, false
	}
	return r.sessions.Get(c.Value)
}

// Ensure returns the request's session, starting a new one and setting the
// cookie when there is none.
func (r *Registry) Ensure(w http.ResponseWriter, req *http.Request) *Session {
	if s, ok := r.Lookup(req); ok {
		return s
	}
	s := &Session{ID: uuid.NewString(), Tracker: r.newTracker()}
	r.sessions.Set(s.ID, s)
	http.SetCookie(w, r.cookie(s.ID, int(r.opts.TTL.Seconds())))
	r.logger.DebugContext(req.Context(), "Session started", applog.FieldSessionID, shortID(s.ID))
	return s
}

// Destroy ends the request's session and clears the cookie.
func (r *Registry) Destroy(w http.ResponseWriter, req *http.Request) {
	if c, err := req.Cookie(CookieName); err == nil && c.Value != "" {
		r.sessions.Delete(c.Value)
	}
	http.SetCookie(w, r.cookie("", -1))
}

// Close ends every session.
func (r *Registry) Close() {
	r.sessions.Purge()
}

func (r *Registry) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
