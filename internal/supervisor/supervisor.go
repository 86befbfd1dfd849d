package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tandemloop/tandem/internal/config"
	"github.com/tandemloop/tandem/internal/coord"
	"github.com/tandemloop/tandem/internal/review"
	"github.com/tandemloop/tandem/internal/skill"
	"github.com/tandemloop/tandem/internal/task"
	"github.com/tandemloop/tandem/pkg/cerr"
	"github.com/tandemloop/tandem/pkg/storage"
)

const (
	localDirName = ".tandem"
	logDirName   = "logs"

	// Delay between launching the worker and the manager so the worker's
	// status marker lands before the manager first reads it.
	startStagger = 2 * time.Second

	stopPollInterval = 200 * time.Millisecond
)

// Supervisor starts, stops and inspects the detached worker and manager
// processes. It never performs work itself; the loops own their documents
// and the supervisor only owns liveness records and stop requests.
type Supervisor struct {
	cfg     *config.Env
	store   storage.Storage
	tasks   task.Repository
	coord   coord.Repository
	skills  skill.Repository
	reviews review.Repository

	// spawn launches one loop process and returns its pid. Injectable so
	// tests can avoid forking real processes.
	spawn   func(role coord.Role) (int, error)
	stagger time.Duration
}

func New(cfg *config.Env, store storage.Storage, tasks task.Repository, crd coord.Repository, skills skill.Repository, reviews review.Repository) *Supervisor {
	s := &Supervisor{
		cfg:     cfg,
		store:   store,
		tasks:   tasks,
		coord:   crd,
		skills:  skills,
		reviews: reviews,
		stagger: startStagger,
	}
	s.spawn = s.spawnProcess
	return s
}

// Start validates the queue, rejects a second concurrent run, and launches
// the worker (and, unless disabled, the manager) as detached processes that
// re-exec this binary with a hidden run subcommand.
func (s *Supervisor) Start(ctx context.Context) error {
	open, err := s.openTaskCount(ctx)
	if err != nil {
		return err
	}
	if open == 0 {
		return cerr.NewError(cerr.InvalidArgument, "task queue has no open tasks, enqueue work before starting", nil)
	}

	roles := s.roles()
	for _, role := range roles {
		rec, err := s.coord.Liveness(ctx, role)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		if Alive(rec.PID) {
			return cerr.NewError(cerr.FailedPrecondition,
				fmt.Sprintf("%s loop is already running (pid %d), stop it first", role, rec.PID), nil)
		}
		// Stale record from a crashed run.
		if err := s.coord.ClearLiveness(ctx, role); err != nil {
			return err
		}
	}

	for i, role := range roles {
		if i > 0 {
			time.Sleep(s.stagger)
		}
		// Pre-write the running marker so a freshly started manager never
		// mistakes a not-yet-started worker for a finished one.
		if err := s.coord.SetStatus(ctx, role, coord.StatusRunning); err != nil {
			return err
		}
		pid, err := s.spawn(role)
		if err != nil {
			if serr := s.coord.SetStatus(ctx, role, coord.StatusFailed); serr != nil {
				slog.Error("failed to persist failed status", "role", role, "error", serr)
			}
			return cerr.NewError(cerr.Internal, fmt.Sprintf("failed to launch %s loop", role), err)
		}
		if err := s.coord.SetLiveness(ctx, role, pid); err != nil {
			return err
		}
		slog.Info("loop started", "role", role, "pid", pid, "log", s.LogPath(role))
	}
	return nil
}

// Stop requests a graceful stop through the status markers, escalates to
// SIGTERM, and SIGKILLs whatever outlives the grace period.
func (s *Supervisor) Stop(ctx context.Context) error {
	for _, role := range []coord.Role{coord.RoleManager, coord.RoleWorker} {
		marker, err := s.coord.Status(ctx, role)
		if err != nil {
			return err
		}
		if marker.Status == coord.StatusRunning {
			if err := s.coord.SetStatus(ctx, role, coord.StatusStopping); err != nil {
				return err
			}
		}

		rec, err := s.coord.Liveness(ctx, role)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		if Alive(rec.PID) {
			if err := s.terminate(ctx, role, rec.PID); err != nil {
				return err
			}
		}
		if err := s.coord.ClearLiveness(ctx, role); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) terminate(ctx context.Context, role coord.Role, pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	slog.Info("sending SIGTERM", "role", role, "pid", pid)
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		// Already gone.
		return nil
	}

	deadline := time.Now().Add(s.cfg.StopGracePeriod)
	for Alive(pid) && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(stopPollInterval):
		}
	}
	if Alive(pid) {
		slog.Warn("grace period expired, sending SIGKILL", "role", role, "pid", pid)
		if err := proc.Kill(); err != nil {
			slog.Warn("failed to kill process", "role", role, "pid", pid, "error", err)
		}
		// A killed loop never writes its own terminal marker.
		if err := s.coord.SetStatus(ctx, role, coord.StatusStopped); err != nil {
			return err
		}
	}
	return nil
}

// RoleStatus is one loop's effective state after reconciling its status
// marker against the liveness record.
type RoleStatus struct {
	Role   coord.Role          `json:"role"`
	Status coord.ProcessStatus `json:"status"`
	PID    int                 `json:"pid,omitempty"`
	Alive  bool                `json:"alive"`
}

// Report is the status snapshot rendered by the CLI and the HTTP API.
type Report struct {
	Roles        []RoleStatus        `json:"roles"`
	Iteration    int                 `json:"iteration"`
	Watermark    int                 `json:"watermark"`
	ReviewSignal *int                `json:"review_signal,omitempty"`
	TaskCounts   map[task.Status]int `json:"task_counts"`
	SkillCount   int                 `json:"skill_count"`
	ReviewCount  int                 `json:"review_count"`
}

// Status assembles the full snapshot. A running marker whose process is no
// longer alive is reported as stopped: the marker is stale, disk state is
// still authoritative for everything else.
func (s *Supervisor) Status(ctx context.Context) (*Report, error) {
	rp := &Report{TaskCounts: map[task.Status]int{}}

	for _, role := range []coord.Role{coord.RoleWorker, coord.RoleManager} {
		marker, err := s.coord.Status(ctx, role)
		if err != nil {
			return nil, err
		}
		rs := RoleStatus{Role: role, Status: marker.Status}
		rec, err := s.coord.Liveness(ctx, role)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			rs.PID = rec.PID
			rs.Alive = Alive(rec.PID)
		}
		if rs.Status == coord.StatusRunning && !rs.Alive {
			rs.Status = coord.StatusStopped
		}
		rp.Roles = append(rp.Roles, rs)
	}

	tasks, err := s.tasks.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		rp.TaskCounts[t.Status]++
	}

	if rp.Iteration, err = s.coord.Iteration(ctx); err != nil {
		return nil, err
	}
	if rp.Watermark, err = s.coord.Watermark(ctx); err != nil {
		return nil, err
	}
	sig, ok, err := s.coord.ReviewSignal(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		rp.ReviewSignal = &sig
	}

	names, err := s.skills.Names(ctx)
	if err != nil {
		return nil, err
	}
	rp.SkillCount = len(names)

	reviews, err := s.reviews.List(ctx)
	if err != nil {
		return nil, err
	}
	rp.ReviewCount = len(reviews)

	return rp, nil
}

// Clean stops any running loops and wipes all persisted state: the storage
// tree plus the local marker and log directories under the work dir.
func (s *Supervisor) Clean(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}
	if err := s.store.Purge(ctx, ""); err != nil {
		return err
	}
	local := filepath.Join(s.cfg.WorkDir, localDirName)
	if err := os.RemoveAll(local); err != nil {
		return cerr.NewError(cerr.Internal, fmt.Sprintf("failed to remove %s", local), err)
	}
	slog.Info("state cleaned")
	return nil
}

func (s *Supervisor) openTaskCount(ctx context.Context) (int, error) {
	tasks, err := s.tasks.List(ctx)
	if err != nil {
		return 0, err
	}
	open := 0
	for _, t := range tasks {
		if t.Status.Open() {
			open++
		}
	}
	return open, nil
}

// LogPath returns the log file one loop process appends to.
func (s *Supervisor) LogPath(role coord.Role) string {
	return filepath.Join(s.cfg.WorkDir, localDirName, logDirName, string(role)+".log")
}

func (s *Supervisor) roles() []coord.Role {
	if s.cfg.NoManager {
		return []coord.Role{coord.RoleWorker}
	}
	return []coord.Role{coord.RoleWorker, coord.RoleManager}
}

// spawnProcess re-execs this binary with the role's hidden run subcommand,
// detached, with stdout and stderr appended to the role's log file.
func (s *Supervisor) spawnProcess(role coord.Role) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return 0, err
	}

	logPath := s.LogPath(role)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return 0, err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	defer logFile.Close()

	cmd := exec.Command(exe, string(role), "run")
	cmd.Env = os.Environ()
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Dir = s.cfg.WorkDir
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// Detach: the supervisor exits immediately, the loop keeps running.
	if err := cmd.Process.Release(); err != nil {
		slog.Warn("failed to release process handle", "role", role, "error", err)
	}
	return pid, nil
}
