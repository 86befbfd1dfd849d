package repositoryimpl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tandemloop/tandem/internal/task"
	"github.com/tandemloop/tandem/pkg/cerr"
	"github.com/tandemloop/tandem/pkg/storage"
)

const queuePath = "queue.yaml"

// YAMLRepository persists the whole queue as one YAML document. Every
// mutation replaces the document so concurrent readers (manager, dashboard)
// never see a partially applied change.
type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func (r *YAMLRepository) load(ctx context.Context) ([]*task.Task, error) {
	data, err := r.storage.Read(ctx, queuePath)
	if err != nil {
		// An absent queue document is an empty queue.
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, cerr.WrapStorageReadError("queue", err)
	}
	var tasks []*task.Task
	if err := yaml.Unmarshal(data, &tasks); err != nil {
		return nil, cerr.NewError(cerr.Internal, "storage error", fmt.Errorf("failed to unmarshal queue: %w", err))
	}
	return tasks, nil
}

func (r *YAMLRepository) save(ctx context.Context, tasks []*task.Task) error {
	data, err := yaml.Marshal(tasks)
	if err != nil {
		return cerr.NewError(cerr.Internal, "storage error", fmt.Errorf("failed to marshal queue: %w", err))
	}
	if err := r.storage.Write(ctx, queuePath, data); err != nil {
		return cerr.WrapStorageWriteError("queue", err)
	}
	return nil
}

func (r *YAMLRepository) Enqueue(ctx context.Context, t *task.Task) error {
	tasks, err := r.load(ctx)
	if err != nil {
		return err
	}
	for _, existing := range tasks {
		if existing.ID == t.ID {
			return cerr.NewError(cerr.AlreadyExists, fmt.Sprintf("task %s already exists", t.ID), nil)
		}
	}
	if t.Status == "" {
		t.Status = task.StatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	return r.save(ctx, append(tasks, t))
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	tasks, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("task %s not found", id), nil)
}

func (r *YAMLRepository) List(ctx context.Context) ([]*task.Task, error) {
	return r.load(ctx)
}

func (r *YAMLRepository) NextEligible(ctx context.Context) (*task.Task, error) {
	tasks, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	completed := make(map[string]bool)
	for _, t := range tasks {
		if t.Status == task.StatusCompleted {
			completed[t.ID] = true
		}
	}

	open := false
	for _, t := range tasks {
		if !t.Status.Open() {
			continue
		}
		open = true
		// A task already in progress stays eligible regardless of
		// dependencies so a restarted worker resumes where it stopped.
		if t.Status == task.StatusInProgress {
			return t, nil
		}
		if depsSatisfied(t, completed) {
			return t, nil
		}
	}
	if open {
		return nil, task.ErrQueueBlocked
	}
	return nil, task.ErrQueueEmpty
}

func depsSatisfied(t *task.Task, completed map[string]bool) bool {
	for _, dep := range t.Dependencies {
		if !completed[dep] {
			return false
		}
	}
	return true
}

func (r *YAMLRepository) Transition(ctx context.Context, id string, next task.Status) (*task.Task, error) {
	tasks, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.ID != id {
			continue
		}
		if !t.Status.CanTransition(next) {
			return nil, cerr.NewError(cerr.FailedPrecondition,
				fmt.Sprintf("invalid transition %s -> %s for task %s", t.Status, next, id), nil)
		}
		now := time.Now()
		switch next {
		case task.StatusInProgress:
			if t.StartedAt == nil {
				t.StartedAt = &now
			}
		case task.StatusCompleted:
			t.CompletedAt = &now
		}
		t.Status = next
		if err := r.save(ctx, tasks); err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("task %s not found", id), nil)
}

func (r *YAMLRepository) Update(ctx context.Context, t *task.Task) error {
	tasks, err := r.load(ctx)
	if err != nil {
		return err
	}
	for i, existing := range tasks {
		if existing.ID == t.ID {
			tasks[i] = t
			return r.save(ctx, tasks)
		}
	}
	return cerr.NewError(cerr.NotFound, fmt.Sprintf("task %s not found", t.ID), nil)
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	tasks, err := r.load(ctx)
	if err != nil {
		return err
	}
	for i, existing := range tasks {
		if existing.ID == id {
			return r.save(ctx, append(tasks[:i], tasks[i+1:]...))
		}
	}
	return cerr.NewError(cerr.NotFound, fmt.Sprintf("task %s not found", id), nil)
}
