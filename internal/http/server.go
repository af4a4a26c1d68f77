package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cashflow/internal/auth"
	applog "cashflow/internal/log"
	"cashflow/internal/middleware/ratelimit"
	"cashflow/internal/middleware/security"
	"cashflow/internal/middleware/trace"
	"cashflow/internal/session"
	appweb "cashflow/web"
)

// Options wires the server to its collaborators.
type Options struct {
	Addr     string
	Sessions *session.Registry
	Provider auth.Provider
	// Ready reports whether the storage backend can serve requests.
	Ready              func(ctx context.Context) error
	RateLimitPerMinute int
	ImportMaxBytes     int64
	Logger             *applog.Logger
}

type Server struct {
	http.Server
	templates *template.Template
	sessions  *session.Registry
	provider  auth.Provider
	ready     func(ctx context.Context) error

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	upgrader websocket.Upgrader

	importMaxBytes int64
	logger         *slog.Logger
	startedAt      time.Time
	shutdownOnce   sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(opts Options) (*Server, error) {
	if opts.Sessions == nil || opts.Provider == nil {
		return nil, fmt.Errorf("server requires a session registry and an auth provider")
	}
	root := opts.Logger
	if root == nil {
		root = applog.FromContext(context.Background())
	}
	if opts.ImportMaxBytes <= 0 {
		opts.ImportMaxBytes = 5 << 20
	}

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		templates: t,
		sessions:  opts.Sessions,
		provider:  opts.Provider,
		ready:     opts.Ready,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
		detector:       security.NewDetector(),
		importMaxBytes: opts.ImportMaxBytes,
		logger:         root.WithComponent(applog.ComponentHTTP).Logger,
		startedAt:      time.Now(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ClientIP, root.Logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	// Static assets (served from embedded FS)
	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}
	static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /auth/login", s.handleLogin)
	mux.HandleFunc("GET /auth/callback", s.handleCallback)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)

	// UI partials
	mux.HandleFunc("GET /ui/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /ui/form", s.handleForm)

	mux.HandleFunc("POST /transactions", s.handleSubmit)
	mux.HandleFunc("POST /transactions/edit/cancel", s.handleCancelEdit)
	mux.HandleFunc("POST /transactions/{id}/edit", s.handleStartEdit)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleDelete)
	mux.HandleFunc("POST /import", s.handleImport)

	mux.HandleFunc("GET /ws", s.handleWebsocket)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		requestLogger(r, applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.detector.ClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		NewHTMXResponse().
			Status(http.StatusTooManyRequests).
			TriggerErrorNotification("Too many requests. Please try again later.").
			Write(w)
	})

	// Outermost first.
	withLogger := applog.Middleware(root)
	withRequestID := applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})
	s.Handler = s.detector.Middleware(
		s.tracer.Middleware(
			withLogger(withRequestID(
				headers.Middleware(limit(mux))))))
	return s, nil
}

// Shutdown stops accepting requests and releases the limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.logger.Info("Shutting down server", applog.FieldOperation, applog.OpShutdown)
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		requestLogger(r, applog.ComponentTemplate).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldOperation, applog.OpRender,
			"template", name,
			applog.FieldError, err)
		http.Error(w, "render failed", http.StatusInternalServerError)
	}
}

// requestLogger returns the request-scoped logger, carrying the request id,
// for component.
func requestLogger(r *http.Request, component string) *slog.Logger {
	return applog.FromContext(r.Context()).WithComponent(component).Logger
}
