package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/tandemloop/tandem/internal/config"
	"github.com/tandemloop/tandem/internal/review"
	"github.com/tandemloop/tandem/internal/skill"
	"github.com/tandemloop/tandem/internal/supervisor"
	"github.com/tandemloop/tandem/internal/task"
	"github.com/tandemloop/tandem/pkg/cerr"
	"github.com/tandemloop/tandem/pkg/clog"
)

// Server exposes read-mostly dashboard endpoints over the persisted state.
// It never drives the loops; start and stop stay with the CLI so there is
// exactly one process-management surface.
type Server struct {
	server *http.Server
	env    *config.Env
	sup    *supervisor.Supervisor
	tasks  task.Repository
	skills skill.Repository
	revs   review.Repository
}

func NewServer(env *config.Env, sup *supervisor.Supervisor, tasks task.Repository, skills skill.Repository, revs review.Repository) *Server {
	return &Server{
		env:    env,
		sup:    sup,
		tasks:  tasks,
		skills: skills,
		revs:   revs,
	}
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
// ctx is the base context for all request contexts.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr: addr,
		Handler: cors.New(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"*"},
		}).Handler(s.Handler()),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler builds the route tree. Split out so tests can drive it with
// httptest without binding a port.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(clog.SlogChiMiddleware())
		r.Get("/status", s.handleStatus)
		r.Get("/tasks", s.handleListTasks)
		r.Post("/tasks", s.handleCreateTask)
		r.Get("/tasks/{id}", s.handleGetTask)
		r.Put("/tasks/{id}", s.handleUpdateTask)
		r.Delete("/tasks/{id}", s.handleDeleteTask)
		r.Get("/skills", s.handleListSkills)
		r.Get("/reviews", s.handleListReviews)
		r.Get("/report", s.handleReport)
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			cerr.WriteHTTP(w, cerr.NewError(cerr.NotFound, "not found", nil))
		})
	})
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rp, err := s.sup.Status(r.Context())
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rp)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.List(r.Context())
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var t task.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		cerr.WriteHTTP(w, cerr.NewError(cerr.InvalidArgument, "malformed task body", err))
		return
	}
	if t.ID == "" || t.Title == "" {
		cerr.WriteHTTP(w, cerr.NewError(cerr.InvalidArgument, "task id and title are required", nil))
		return
	}
	if err := s.tasks.Enqueue(r.Context(), &t); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &t)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.tasks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var t task.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		cerr.WriteHTTP(w, cerr.NewError(cerr.InvalidArgument, "malformed task body", err))
		return
	}
	t.ID = chi.URLParam(r, "id")
	if t.Title == "" {
		cerr.WriteHTTP(w, cerr.NewError(cerr.InvalidArgument, "task title is required", nil))
		return
	}
	if !t.Status.Valid() {
		cerr.WriteHTTP(w, cerr.NewError(cerr.InvalidArgument, "unknown task status", nil))
		return
	}
	if err := s.tasks.Update(r.Context(), &t); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &t)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	skills, err := s.skills.List(r.Context())
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, skills)
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := s.revs.List(r.Context())
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rp, err := s.revs.Report(r.Context())
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
