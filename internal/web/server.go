// Package web serves the run history dashboard.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/example/baybook/internal/auth"
	"github.com/example/baybook/internal/db"
	"github.com/example/baybook/internal/runs"
	"github.com/example/baybook/internal/usecases"
)

//go:embed templates/*.html
var fs embed.FS

// RunStore is the read side of the run history.
type RunStore interface {
	ListRecent(ctx context.Context, limit int) ([]runs.Run, error)
	Get(ctx context.Context, id uuid.UUID) (runs.Run, error)
	Transitions(ctx context.Context, id uuid.UUID) ([]runs.Transition, error)
	BayAttempts(ctx context.Context, id uuid.UUID) ([]runs.BayAttempt, error)
}

type Booker interface {
	Execute(ctx context.Context, trigger string) (usecases.Report, error)
}

type Server struct {
	Auth    *auth.Store
	Runs    RunStore
	Booker  Booker
	NextRun func(now time.Time) (time.Time, error)
	Log     *zap.Logger

	// Context for runs started from the dashboard; they outlive the request.
	Context context.Context

	wg sync.WaitGroup
}

type tmplData struct {
	Title string
	User  int64
	Flash string

	Runs        []runs.Run
	NextRun     time.Time
	Run         runs.Run
	Transitions []runs.Transition
	Bays        []runs.BayAttempt
}

func (s *Server) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log.Named("web")
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	r.Handle("/", s.Auth.RequireAuth(http.HandlerFunc(s.handleHome))).Methods(http.MethodGet)
	r.Handle("/runs", s.Auth.RequireAuth(http.HandlerFunc(s.handleTrigger))).Methods(http.MethodPost)
	r.Handle("/runs/{id}", s.Auth.RequireAuth(http.HandlerFunc(s.handleRun))).Methods(http.MethodGet)

	access := zap.NewStdLog(s.log().Named("access")).Writer()
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.CombinedLoggingHandler(access, r),
	)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	rs, err := s.Runs.ListRecent(r.Context(), 50)
	if err != nil {
		s.log().Error("list runs", zap.Error(err))
		http.Error(w, "could not load runs", http.StatusInternalServerError)
		return
	}
	data := tmplData{Title: "Runs", User: uid, Runs: rs, Flash: r.URL.Query().Get("flash")}
	if s.NextRun != nil {
		if next, err := s.NextRun(time.Now()); err == nil {
			data.NextRun = next
		}
	}
	s.render(w, "templates/runs.html", data)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	run, err := s.Runs.Get(r.Context(), id)
	if db.IsNotFound(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log().Error("get run", zap.Error(err))
		http.Error(w, "could not load run", http.StatusInternalServerError)
		return
	}
	data := tmplData{Title: "Run", User: uid, Run: run}
	if data.Transitions, err = s.Runs.Transitions(r.Context(), id); err != nil {
		s.log().Warn("list transitions", zap.Error(err))
	}
	if data.Bays, err = s.Runs.BayAttempts(r.Context(), id); err != nil {
		s.log().Warn("list bay attempts", zap.Error(err))
	}
	s.render(w, "templates/run.html", data)
}

// handleTrigger starts a run in the background; runs take minutes.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := s.Context
	if ctx == nil {
		ctx = context.Background()
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.Booker.Execute(ctx, runs.TriggerDashboard); err != nil {
			s.log().Warn("dashboard run", zap.Error(err))
		}
	}()
	http.Redirect(w, r, "/?flash=Run+started", http.StatusSeeOther)
}

// Wait blocks until runs started from the dashboard have finished.
func (s *Server) Wait() { s.wg.Wait() }

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.render(w, "templates/login.html", tmplData{Title: "Log in"})
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.FormValue("email"))
	id, err := s.Auth.Authenticate(r.Context(), email, r.FormValue("password"))
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.log().Error("authenticate", zap.Error(err))
		}
		s.renderStatus(w, http.StatusUnauthorized, "templates/login.html", tmplData{Title: "Log in", Flash: "Invalid email or password"})
		return
	}
	if err := s.Auth.SetSession(w, r, id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) render(w http.ResponseWriter, name string, data tmplData) {
	s.renderStatus(w, http.StatusOK, name, data)
}

func (s *Server) renderStatus(w http.ResponseWriter, status int, name string, data tmplData) {
	t, err := template.ParseFS(fs, "templates/base.html", name)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		s.log().Error("render", zap.String("template", name), zap.Error(err))
	}
}

// Start serves h on addr until ctx is done.
func Start(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Named("web").Info("listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
