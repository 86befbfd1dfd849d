package repositoryimpl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tandemloop/tandem/internal/coord"
	"github.com/tandemloop/tandem/pkg/cerr"
	"github.com/tandemloop/tandem/pkg/storage"
)

const (
	iterationPath = "coord/iteration.yaml"
	signalPath    = "coord/review_signal.yaml"
	watermarkPath = "coord/watermark.yaml"
	directivePath = "coord/directive.yaml"
	notesPath     = "coord/notes.yaml"
)

func statusPath(role coord.Role) string {
	return fmt.Sprintf("coord/%s_status.yaml", role)
}

func livenessPath(role coord.Role) string {
	return fmt.Sprintf("coord/%s.pid", role)
}

type counterDoc struct {
	Iteration int `yaml:"iteration"`
}

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func (r *YAMLRepository) readDoc(ctx context.Context, path, target string, out any) (bool, error) {
	data, err := r.storage.Read(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, cerr.WrapStorageReadError(target, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, cerr.NewError(cerr.Internal, "storage error", fmt.Errorf("failed to unmarshal %s: %w", target, err))
	}
	return true, nil
}

func (r *YAMLRepository) writeDoc(ctx context.Context, path, target string, in any) error {
	data, err := yaml.Marshal(in)
	if err != nil {
		return cerr.NewError(cerr.Internal, "storage error", fmt.Errorf("failed to marshal %s: %w", target, err))
	}
	if err := r.storage.Write(ctx, path, data); err != nil {
		return cerr.WrapStorageWriteError(target, err)
	}
	return nil
}

func (r *YAMLRepository) deleteDoc(ctx context.Context, path, target string) error {
	if err := r.storage.Delete(ctx, path); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return cerr.WrapStorageDeleteError(target, err)
	}
	return nil
}

func (r *YAMLRepository) Iteration(ctx context.Context) (int, error) {
	var doc counterDoc
	if _, err := r.readDoc(ctx, iterationPath, "iteration counter", &doc); err != nil {
		return 0, err
	}
	return doc.Iteration, nil
}

func (r *YAMLRepository) SetIteration(ctx context.Context, n int) error {
	return r.writeDoc(ctx, iterationPath, "iteration counter", counterDoc{Iteration: n})
}

func (r *YAMLRepository) ReviewSignal(ctx context.Context) (int, bool, error) {
	var doc counterDoc
	ok, err := r.readDoc(ctx, signalPath, "review signal", &doc)
	if err != nil {
		return 0, false, err
	}
	return doc.Iteration, ok, nil
}

func (r *YAMLRepository) SetReviewSignal(ctx context.Context, iteration int) error {
	return r.writeDoc(ctx, signalPath, "review signal", counterDoc{Iteration: iteration})
}

func (r *YAMLRepository) ClearReviewSignal(ctx context.Context) error {
	return r.deleteDoc(ctx, signalPath, "review signal")
}

func (r *YAMLRepository) Watermark(ctx context.Context) (int, error) {
	var doc counterDoc
	if _, err := r.readDoc(ctx, watermarkPath, "watermark", &doc); err != nil {
		return 0, err
	}
	return doc.Iteration, nil
}

func (r *YAMLRepository) SetWatermark(ctx context.Context, iteration int) error {
	return r.writeDoc(ctx, watermarkPath, "watermark", counterDoc{Iteration: iteration})
}

func (r *YAMLRepository) Directive(ctx context.Context) (*coord.Directive, error) {
	var d coord.Directive
	ok, err := r.readDoc(ctx, directivePath, "directive", &d)
	if err != nil || !ok {
		return nil, err
	}
	return &d, nil
}

func (r *YAMLRepository) SetDirective(ctx context.Context, text string) error {
	return r.writeDoc(ctx, directivePath, "directive", coord.Directive{
		Text:      text,
		CreatedAt: time.Now(),
	})
}

func (r *YAMLRepository) TakeDirective(ctx context.Context) (*coord.Directive, error) {
	d, err := r.Directive(ctx)
	if err != nil || d == nil {
		return nil, err
	}
	if err := r.deleteDoc(ctx, directivePath, "directive"); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *YAMLRepository) Status(ctx context.Context, role coord.Role) (*coord.StatusMarker, error) {
	var m coord.StatusMarker
	ok, err := r.readDoc(ctx, statusPath(role), string(role)+" status", &m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &coord.StatusMarker{Status: coord.StatusStopped}, nil
	}
	return &m, nil
}

func (r *YAMLRepository) SetStatus(ctx context.Context, role coord.Role, status coord.ProcessStatus) error {
	return r.writeDoc(ctx, statusPath(role), string(role)+" status", coord.StatusMarker{
		Status:    status,
		UpdatedAt: time.Now(),
	})
}

func (r *YAMLRepository) Liveness(ctx context.Context, role coord.Role) (*coord.LivenessRecord, error) {
	var rec coord.LivenessRecord
	ok, err := r.readDoc(ctx, livenessPath(role), string(role)+" liveness", &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (r *YAMLRepository) SetLiveness(ctx context.Context, role coord.Role, pid int) error {
	return r.writeDoc(ctx, livenessPath(role), string(role)+" liveness", coord.LivenessRecord{
		PID:       pid,
		StartedAt: time.Now(),
	})
}

func (r *YAMLRepository) ClearLiveness(ctx context.Context, role coord.Role) error {
	return r.deleteDoc(ctx, livenessPath(role), string(role)+" liveness")
}

func (r *YAMLRepository) Notes(ctx context.Context) ([]coord.ProgressNote, error) {
	var notes []coord.ProgressNote
	if _, err := r.readDoc(ctx, notesPath, "progress notes", &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func (r *YAMLRepository) AppendNote(ctx context.Context, note coord.ProgressNote) error {
	notes, err := r.Notes(ctx)
	if err != nil {
		return err
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}
	return r.writeDoc(ctx, notesPath, "progress notes", append(notes, note))
}
