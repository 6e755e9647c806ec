// Package upload moves a run's parts and manifest to the remote store, rolling back on failure.
package upload

import (
	"context"
	"fmt"
	"sync"

	"github.com/feederco/chunked-db-backup/pkg"
	"github.com/hashicorp/go-multierror"
)

// Store is the part of the remote object store the coordinator needs
type Store interface {
	Upload(ctx context.Context, localPath string, remoteName string, remoteFolder string) (string, error)
	Delete(ctx context.Context, remoteFolder string, remoteName string) error
}

// File is a local file and the name it gets in the remote folder
type File struct {
	LocalPath  string
	RemoteName string
}

// State is where a coordinator is in its run
type State string

const (
	StateIdle              State = "Idle"
	StateUploading         State = "Uploading"
	StateUploadingManifest State = "UploadingManifest"
	StateRollingBack       State = "RollingBack"
	StateDone              State = "Done"
	StateFailed            State = "Failed"
)

// Result reports what a run left behind remotely
type Result struct {
	Folder string

	// Uploaded lists the remote names uploaded, in order. After a rollback it still lists them.
	Uploaded []string

	// URLs maps remote names to the location the store reported
	URLs map[string]string

	// RolledBack lists the remote names deleted during rollback, in order
	RolledBack []string

	// RollbackErrors holds every delete that failed during rollback
	RollbackErrors *multierror.Error
}

// Coordinator uploads the files of one run, one at a time, manifest last.
// A coordinator is used for a single run.
type Coordinator struct {
	store   Store
	retrier pkg.Retrier

	mu    sync.Mutex
	state State
	index int
}

// NewCoordinator creates a Coordinator bound to a store and a retry policy
func NewCoordinator(store Store, retrier pkg.Retrier) *Coordinator {
	return &Coordinator{store: store, retrier: retrier, state: StateIdle}
}

// State returns the current state and, while uploading parts, the 1-based index of the part
func (c *Coordinator) State() (State, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.index
}

func (c *Coordinator) transition(state State, index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.index = index
}

// Upload uploads parts in order and then the manifest into folder.
// If any file exhausts its attempts, every file uploaded before it is deleted again and
// the UploadExhausted error is returned. The manifest is only uploaded once all parts are stored.
func (c *Coordinator) Upload(ctx context.Context, folder string, parts []File, manifest File) (*Result, error) {
	if state, _ := c.State(); state != StateIdle {
		return nil, fmt.Errorf("coordinator already used (state %s)", state)
	}

	result := &Result{
		Folder:   folder,
		Uploaded: make([]string, 0, len(parts)+1),
		URLs:     make(map[string]string, len(parts)+1),
	}

	for i, part := range parts {
		c.transition(StateUploading, i+1)

		if err := c.uploadFile(ctx, folder, part, result); err != nil {
			return result, c.rollback(ctx, result, err)
		}
	}

	c.transition(StateUploadingManifest, 0)

	if err := c.uploadFile(ctx, folder, manifest, result); err != nil {
		return result, c.rollback(ctx, result, err)
	}

	c.transition(StateDone, 0)

	return result, nil
}

func (c *Coordinator) uploadFile(ctx context.Context, folder string, file File, result *Result) error {
	logger := pkg.Log.WithField("folder", folder).WithField("file", file.RemoteName)

	var location string
	var attempts int
	var lastErr error
	err := c.retrier.WithRetry(ctx, "upload "+file.RemoteName, func(attempt int) error {
		logger.WithField("attempt", attempt).Debug("Uploading")
		attempts = attempt

		var uploadErr error
		location, uploadErr = c.store.Upload(ctx, file.LocalPath, file.RemoteName, folder)
		if uploadErr != nil {
			lastErr = pkg.NewFileError(pkg.KindUploadTransient, file.RemoteName, "upload attempt failed", uploadErr)
			return lastErr
		}
		return nil
	})
	if err != nil {
		message := fmt.Sprintf("upload failed after %d attempts", attempts)
		if ctxErr := ctx.Err(); ctxErr != nil {
			message = fmt.Sprintf("upload stopped after attempt %d: %s", attempts, ctxErr)
		}
		if lastErr == nil {
			lastErr = err
		}
		return pkg.NewFileError(pkg.KindUploadExhausted, file.RemoteName, message, lastErr)
	}

	result.Uploaded = append(result.Uploaded, file.RemoteName)
	result.URLs[file.RemoteName] = location

	logger.Info("Uploaded")

	return nil
}

// rollback deletes every uploaded file, best effort, and returns cause unchanged
func (c *Coordinator) rollback(ctx context.Context, result *Result, cause error) error {
	c.transition(StateRollingBack, 0)

	pkg.Log.WithError(cause).Warnf("Rolling back %d uploaded files in %s", len(result.Uploaded), result.Folder)

	// Deletes run even when ctx is already cancelled, so a cancelled run does not leave a partial set behind
	deleteCtx := context.WithoutCancel(ctx)

	for _, remoteName := range result.Uploaded {
		if err := c.store.Delete(deleteCtx, result.Folder, remoteName); err != nil {
			deleteErr := pkg.NewFileError(pkg.KindRollbackPartialFailure, remoteName, "could not delete during rollback", err)
			result.RollbackErrors = multierror.Append(result.RollbackErrors, deleteErr)
			pkg.Log.WithError(deleteErr).Error("Rollback delete failed, continuing")
			continue
		}

		result.RolledBack = append(result.RolledBack, remoteName)
	}

	if result.RollbackErrors != nil {
		pkg.Log.Errorf("Rollback of %s left %d files behind", result.Folder, result.RollbackErrors.Len())
	}

	c.transition(StateFailed, 0)

	return cause
}
