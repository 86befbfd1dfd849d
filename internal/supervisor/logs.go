package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/tandemloop/tandem/internal/coord"
	"github.com/tandemloop/tandem/pkg/cerr"
)

// Logs copies the role's log file to w. With follow set it keeps streaming
// appended bytes, driven by fsnotify, until ctx is cancelled.
func (s *Supervisor) Logs(ctx context.Context, role coord.Role, follow bool, w io.Writer) error {
	path := s.LogPath(role)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cerr.NewError(cerr.NotFound, fmt.Sprintf("no log file for %s, has it ever been started?", role), err)
		}
		return cerr.NewError(cerr.Internal, "failed to open log file", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return err
	}
	if !follow {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return cerr.NewError(cerr.Internal, "failed to create log watcher", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return cerr.NewError(cerr.Internal, "failed to watch log file", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write == 0 {
				continue
			}
			// The reader is already positioned at the previous end of file.
			if _, err := io.Copy(w, f); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return cerr.NewError(cerr.Internal, "log watcher failed", err)
		}
	}
}
