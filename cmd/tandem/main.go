package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/sourcegraph/conc"

	"github.com/tandemloop/tandem/internal/config"
	"github.com/tandemloop/tandem/internal/coord"
	coordimpl "github.com/tandemloop/tandem/internal/coord/repositoryimpl"
	"github.com/tandemloop/tandem/internal/gateway"
	"github.com/tandemloop/tandem/internal/httpapi"
	"github.com/tandemloop/tandem/internal/manager"
	"github.com/tandemloop/tandem/internal/review"
	reviewimpl "github.com/tandemloop/tandem/internal/review/repositoryimpl"
	"github.com/tandemloop/tandem/internal/skill"
	skillimpl "github.com/tandemloop/tandem/internal/skill/repositoryimpl"
	"github.com/tandemloop/tandem/internal/supervisor"
	"github.com/tandemloop/tandem/internal/task"
	taskimpl "github.com/tandemloop/tandem/internal/task/repositoryimpl"
	"github.com/tandemloop/tandem/internal/worker"
	"github.com/tandemloop/tandem/pkg/clog"
	"github.com/tandemloop/tandem/pkg/panicerr"
	"github.com/tandemloop/tandem/pkg/storage"
)

var (
	app = kingpin.New("tandem", "Dual-agent orchestrator: a worker loop implements queued tasks through a coding agent while a manager loop reviews the output and feeds guidance back.")

	startCmd          = app.Command("start", "Start the worker and manager loops as detached processes")
	startMaxIter      = startCmd.Flag("max-iterations", "Iteration ceiling for the worker").Int()
	startWorkerModel  = startCmd.Flag("worker-model", "Model used for implementation runs").String()
	startManagerModel = startCmd.Flag("manager-model", "Model used for review runs").String()
	startReviewIvl    = startCmd.Flag("review-interval", "Manager polling interval").Duration()
	startCadence      = startCmd.Flag("review-cadence", "Worker iterations between review signals").Int()
	startNoManager    = startCmd.Flag("no-manager", "Run the worker without the review loop").Bool()
	startForeground   = startCmd.Flag("foreground", "Run both loops in this process instead of detaching").Bool()

	stopCmd = app.Command("stop", "Gracefully stop running loops")

	statusCmd = app.Command("status", "Show loop, queue and review status")

	logsCmd    = app.Command("logs", "Print a loop's log output")
	logsRole   = logsCmd.Arg("role", "Loop to inspect (worker or manager)").Default("worker").Enum("worker", "manager")
	logsFollow = logsCmd.Flag("follow", "Keep streaming appended lines").Short('f').Bool()

	cleanCmd = app.Command("clean", "Stop loops and wipe all persisted state")

	serveCmd  = app.Command("serve", "Serve the dashboard HTTP API")
	serveAddr = serveCmd.Flag("addr", "Listen address as host:port").String()

	taskCmd = app.Command("task", "Task queue commands")

	taskAddCmd      = taskCmd.Command("add", "Enqueue a task")
	taskAddID       = taskAddCmd.Arg("id", "Task ID").Required().String()
	taskAddTitle    = taskAddCmd.Arg("title", "Task title").Required().String()
	taskAddDesc     = taskAddCmd.Flag("description", "Longer task description").String()
	taskAddCriteria = taskAddCmd.Flag("criterion", "Acceptance criterion, repeatable").Strings()
	taskAddDeps     = taskAddCmd.Flag("depends-on", "Task ID this task waits for, repeatable").Strings()
	taskAddEffort   = taskAddCmd.Flag("effort", "Estimated effort in arbitrary points").Int()

	taskListCmd = taskCmd.Command("list", "List all queued tasks")

	taskShowCmd = taskCmd.Command("show", "Show one task")
	taskShowID  = taskShowCmd.Arg("id", "Task ID").Required().String()

	taskCloseCmd = taskCmd.Command("close", "Mark a task completed without running the worker")
	taskCloseID  = taskCloseCmd.Arg("id", "Task ID").Required().String()

	// Hidden run subcommands: the supervisor re-execs this binary with these
	// so each loop is its own process.
	workerCmd    = app.Command("worker", "Worker loop internals").Hidden()
	workerRunCmd = workerCmd.Command("run", "Run the worker loop").Hidden()

	managerCmd    = app.Command("manager", "Manager loop internals").Hidden()
	managerRunCmd = managerCmd.Command("run", "Run the manager loop").Hidden()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == startCmd.FullCommand() {
		// Flag overrides travel to the spawned loop processes through the
		// environment, so they are applied there rather than on the struct.
		applyStartFlags()
	}

	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	setupLogger(env)

	store, err := newStorage(env)
	if err != nil {
		slog.Error("failed to set up storage", "error", err)
		os.Exit(1)
	}

	tasks := taskimpl.NewYAMLRepository(store)
	crd := coordimpl.NewYAMLRepository(store)
	skills := skillimpl.NewYAMLRepository(store)
	reviews := reviewimpl.NewYAMLRepository(store)
	sup := supervisor.New(env, store, tasks, crd, skills, reviews)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case startCmd.FullCommand():
		if *startForeground {
			err = runForeground(ctx, env, tasks, crd, skills, reviews)
		} else {
			err = sup.Start(ctx)
		}
	case stopCmd.FullCommand():
		err = sup.Stop(ctx)
	case statusCmd.FullCommand():
		err = runStatus(ctx, sup)
	case logsCmd.FullCommand():
		err = sup.Logs(ctx, coord.Role(*logsRole), *logsFollow, os.Stdout)
	case cleanCmd.FullCommand():
		err = sup.Clean(ctx)
	case serveCmd.FullCommand():
		err = runServe(ctx, env, sup, tasks, skills, reviews)
	case taskAddCmd.FullCommand():
		err = runTaskAdd(ctx, tasks)
	case taskListCmd.FullCommand():
		err = runTaskList(ctx, tasks)
	case taskShowCmd.FullCommand():
		err = runTaskShow(ctx, tasks)
	case taskCloseCmd.FullCommand():
		err = runTaskClose(ctx, tasks)
	case workerRunCmd.FullCommand():
		loop := worker.New(env, tasks, crd, skills, gateway.NewClaudeGateway())
		err = panicerr.SafeContext(loop.Run)(ctx)
	case managerRunCmd.FullCommand():
		loop := manager.New(env, crd, skills, reviews, gateway.NewClaudeGateway())
		err = panicerr.SafeContext(loop.Run)(ctx)
	}
	if err != nil {
		slog.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func applyStartFlags() {
	set := func(key, value string) {
		if value != "" {
			os.Setenv("TANDEM_"+key, value)
		}
	}
	if *startMaxIter > 0 {
		set("MAX_ITERATIONS", strconv.Itoa(*startMaxIter))
	}
	set("WORKER_MODEL", *startWorkerModel)
	set("MANAGER_MODEL", *startManagerModel)
	if *startReviewIvl > 0 {
		set("REVIEW_INTERVAL", startReviewIvl.String())
	}
	if *startCadence > 0 {
		set("REVIEW_CADENCE", strconv.Itoa(*startCadence))
	}
	if *startNoManager {
		set("NO_MANAGER", "true")
	}
}

func setupLogger(env *config.Env) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}

func newStorage(env *config.Env) (storage.Storage, error) {
	switch env.StorageEnv.Type {
	case "s3":
		return storage.NewS3Storage(context.Background(), env.S3Bucket, env.S3Prefix, env.S3Region)
	default:
		return storage.NewLocalStorage(env.StorageEnv.BaseDir)
	}
}

// runForeground runs both loops inside this process. Useful for development
// and for containers where a supervisor process tree is unwanted.
func runForeground(ctx context.Context, env *config.Env, tasks task.Repository, crd coord.Repository, skills skill.Repository, reviews review.Repository) error {
	open := 0
	all, err := tasks.List(ctx)
	if err != nil {
		return err
	}
	for _, t := range all {
		if t.Status.Open() {
			open++
		}
	}
	if open == 0 {
		return fmt.Errorf("task queue has no open tasks, enqueue work before starting")
	}

	wg := conc.NewWaitGroup()
	errs := make(chan error, 2)

	wg.Go(func() {
		errs <- panicerr.SafeContext(worker.New(env, tasks, crd, skills, gateway.NewClaudeGateway()).Run)(ctx)
	})
	if !env.NoManager {
		wg.Go(func() {
			errs <- panicerr.SafeContext(manager.New(env, crd, skills, reviews, gateway.NewClaudeGateway()).Run)(ctx)
		})
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

func runServe(ctx context.Context, env *config.Env, sup *supervisor.Supervisor, tasks task.Repository, skills skill.Repository, reviews review.Repository) error {
	if *serveAddr != "" {
		host, port, err := net.SplitHostPort(*serveAddr)
		if err != nil {
			return fmt.Errorf("invalid --addr %q: %w", *serveAddr, err)
		}
		env.HTTPHost, env.HTTPPort = host, port
	}
	srv := httpapi.NewServer(env, sup, tasks, skills, reviews)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shut down server", "error", err)
		}
	}()
	if err := srv.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runStatus(ctx context.Context, sup *supervisor.Supervisor) error {
	rp, err := sup.Status(ctx)
	if err != nil {
		return err
	}

	for _, r := range rp.Roles {
		fmt.Printf("%-8s %s", r.Role, colorizeStatus(r.Status))
		if r.PID != 0 && r.Alive {
			fmt.Printf("  (pid %d)", r.PID)
		}
		fmt.Println()
	}

	fmt.Printf("\niteration %d", rp.Iteration)
	fmt.Printf("  reviewed through %d", rp.Watermark)
	if rp.ReviewSignal != nil {
		fmt.Printf("  review pending for %d", *rp.ReviewSignal)
	}
	fmt.Println()

	fmt.Printf("tasks: %d pending, %d in progress, %d completed, %d blocked\n",
		rp.TaskCounts[task.StatusPending],
		rp.TaskCounts[task.StatusInProgress],
		rp.TaskCounts[task.StatusCompleted],
		rp.TaskCounts[task.StatusBlocked])
	fmt.Printf("skills: %d  reviews: %d\n", rp.SkillCount, rp.ReviewCount)
	return nil
}

func colorizeStatus(s coord.ProcessStatus) string {
	switch s {
	case coord.StatusRunning:
		return color.GreenString(string(s))
	case coord.StatusStopping:
		return color.YellowString(string(s))
	case coord.StatusFailed:
		return color.RedString(string(s))
	case coord.StatusCompleted:
		return color.CyanString(string(s))
	default:
		return string(s)
	}
}

func runTaskAdd(ctx context.Context, tasks task.Repository) error {
	t := &task.Task{
		ID:                 *taskAddID,
		Title:              *taskAddTitle,
		Description:        *taskAddDesc,
		AcceptanceCriteria: *taskAddCriteria,
		Dependencies:       *taskAddDeps,
		EstimatedEffort:    *taskAddEffort,
	}
	if err := tasks.Enqueue(ctx, t); err != nil {
		return err
	}
	fmt.Printf("enqueued %s\n", t.ID)
	return nil
}

func runTaskList(ctx context.Context, tasks task.Repository) error {
	all, err := tasks.List(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Println("queue is empty")
		return nil
	}
	for _, t := range all {
		fmt.Printf("%-12s %-12s %s", t.ID, colorizeTaskStatus(t.Status), t.Title)
		if len(t.Dependencies) > 0 {
			fmt.Printf("  (after %v)", t.Dependencies)
		}
		fmt.Println()
	}
	return nil
}

func colorizeTaskStatus(s task.Status) string {
	switch s {
	case task.StatusInProgress:
		return color.YellowString(string(s))
	case task.StatusCompleted:
		return color.GreenString(string(s))
	case task.StatusBlocked:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}

func runTaskShow(ctx context.Context, tasks task.Repository) error {
	t, err := tasks.Get(ctx, *taskShowID)
	if err != nil {
		return err
	}
	fmt.Printf("id:     %s\ntitle:  %s\nstatus: %s\n", t.ID, t.Title, colorizeTaskStatus(t.Status))
	if t.Description != "" {
		fmt.Printf("description:\n  %s\n", t.Description)
	}
	for _, c := range t.AcceptanceCriteria {
		fmt.Printf("criterion: %s\n", c)
	}
	if len(t.Dependencies) > 0 {
		fmt.Printf("depends on: %v\n", t.Dependencies)
	}
	if t.StartedAt != nil {
		fmt.Printf("started:   %s\n", t.StartedAt.Format(time.RFC3339))
	}
	if t.CompletedAt != nil {
		fmt.Printf("completed: %s\n", t.CompletedAt.Format(time.RFC3339))
	}
	return nil
}

func runTaskClose(ctx context.Context, tasks task.Repository) error {
	t, err := tasks.Get(ctx, *taskCloseID)
	if err != nil {
		return err
	}
	if t.Status == task.StatusCompleted {
		fmt.Printf("%s is already completed\n", t.ID)
		return nil
	}
	now := time.Now()
	t.Status = task.StatusCompleted
	t.CompletedAt = &now
	if err := tasks.Update(ctx, t); err != nil {
		return err
	}
	fmt.Printf("closed %s\n", t.ID)
	return nil
}
