package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/feederco/chunked-db-backup/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu sync.Mutex

	// failures is how many times an upload of a name fails before succeeding; -1 fails forever
	failures map[string]int
	// deleteFailures lists names whose delete fails
	deleteFailures map[string]bool

	attempts map[string]int
	remote   map[string]bool
	ever     map[string]bool
	deleted  []string

	onUpload func(remoteName string)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		failures:       map[string]int{},
		deleteFailures: map[string]bool{},
		attempts:       map[string]int{},
		remote:         map[string]bool{},
		ever:           map[string]bool{},
	}
}

func (f *fakeStore) Upload(_ context.Context, localPath string, remoteName string, remoteFolder string) (string, error) {
	if f.onUpload != nil {
		f.onUpload(remoteName)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts[remoteName]++
	if remaining := f.failures[remoteName]; remaining != 0 {
		if remaining > 0 {
			f.failures[remoteName]--
		}
		return "", fmt.Errorf("upload of %s refused", remoteName)
	}

	f.remote[remoteName] = true
	f.ever[remoteName] = true
	return "https://store/" + remoteFolder + "/" + remoteName, nil
}

func (f *fakeStore) Delete(_ context.Context, remoteFolder string, remoteName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteFailures[remoteName] {
		return errors.New("delete refused")
	}

	delete(f.remote, remoteName)
	f.deleted = append(f.deleted, remoteName)
	return nil
}

const folder = "databaseBackups/2024/Month-3/backup-2024-03-05T10-15-30-123Z"

func files(n int) ([]File, File) {
	parts := make([]File, 0, n)
	for i := 1; i <= n; i++ {
		name := fmt.Sprintf("backup.sql.gz.%03d", i)
		parts = append(parts, File{LocalPath: "/work/" + name, RemoteName: name})
	}
	return parts, File{LocalPath: "/work/manifest.json", RemoteName: "manifest.json"}
}

func fastRetrier() pkg.Retrier {
	return pkg.NewRetrier(3, 0)
}

func TestUploadAllSucceed(t *testing.T) {
	store := newFakeStore()
	coordinator := NewCoordinator(store, fastRetrier())
	parts, manifest := files(3)

	result, err := coordinator.Upload(context.Background(), folder, parts, manifest)
	require.NoError(t, err)

	assert.Equal(t, []string{"backup.sql.gz.001", "backup.sql.gz.002", "backup.sql.gz.003", "manifest.json"}, result.Uploaded)
	assert.Equal(t, "https://store/"+folder+"/manifest.json", result.URLs["manifest.json"])
	assert.Empty(t, result.RolledBack)
	assert.Nil(t, result.RollbackErrors)

	state, _ := coordinator.State()
	assert.Equal(t, StateDone, state)
}

func TestUploadStateTransitions(t *testing.T) {
	store := newFakeStore()
	coordinator := NewCoordinator(store, fastRetrier())
	parts, manifest := files(2)

	seen := make([]string, 0)
	store.onUpload = func(remoteName string) {
		state, index := coordinator.State()
		seen = append(seen, fmt.Sprintf("%s(%d)", state, index))
	}

	_, err := coordinator.Upload(context.Background(), folder, parts, manifest)
	require.NoError(t, err)

	assert.Equal(t, []string{"Uploading(1)", "Uploading(2)", "UploadingManifest(0)"}, seen)
}

func TestUploadTransientFailureIsInvisible(t *testing.T) {
	store := newFakeStore()
	store.failures["backup.sql.gz.002"] = 2
	coordinator := NewCoordinator(store, fastRetrier())
	parts, manifest := files(3)

	result, err := coordinator.Upload(context.Background(), folder, parts, manifest)
	require.NoError(t, err)

	assert.Equal(t, 3, store.attempts["backup.sql.gz.002"])
	assert.Len(t, result.Uploaded, 4)
	assert.Empty(t, store.deleted)
}

func TestUploadPartExhaustedRollsBack(t *testing.T) {
	store := newFakeStore()
	store.failures["backup.sql.gz.002"] = -1
	coordinator := NewCoordinator(store, fastRetrier())
	parts, manifest := files(3)

	result, err := coordinator.Upload(context.Background(), folder, parts, manifest)
	require.Error(t, err)

	assert.True(t, pkg.IsKind(err, pkg.KindUploadExhausted))
	var backupErr *pkg.BackupError
	require.ErrorAs(t, err, &backupErr)
	assert.Equal(t, "backup.sql.gz.002", backupErr.Filename)
	assert.Contains(t, backupErr.Cause.Error(), "upload of backup.sql.gz.002 refused")
	assert.True(t, pkg.IsKind(backupErr.Cause, pkg.KindUploadTransient))

	assert.Equal(t, 3, store.attempts["backup.sql.gz.002"])
	assert.Equal(t, []string{"backup.sql.gz.001"}, store.deleted)
	assert.Equal(t, []string{"backup.sql.gz.001"}, result.RolledBack)
	assert.Empty(t, store.remote)
	assert.False(t, store.ever["backup.sql.gz.002"])
	assert.False(t, store.ever["backup.sql.gz.003"])
	assert.False(t, store.ever["manifest.json"])
	assert.Zero(t, store.attempts["backup.sql.gz.003"])

	state, _ := coordinator.State()
	assert.Equal(t, StateFailed, state)
}

func TestUploadCancelledDuringRetryKeepsLastUploadError(t *testing.T) {
	store := newFakeStore()
	store.failures["backup.sql.gz.002"] = -1
	coordinator := NewCoordinator(store, pkg.NewRetrier(3, time.Hour))
	parts, manifest := files(3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.onUpload = func(remoteName string) {
		if remoteName == "backup.sql.gz.002" {
			cancel()
		}
	}

	result, err := coordinator.Upload(ctx, folder, parts, manifest)
	require.Error(t, err)

	var backupErr *pkg.BackupError
	require.ErrorAs(t, err, &backupErr)
	assert.Equal(t, pkg.KindUploadExhausted, backupErr.Kind)
	assert.Equal(t, "upload stopped after attempt 1: context canceled", backupErr.Message)
	assert.True(t, pkg.IsKind(backupErr.Cause, pkg.KindUploadTransient))
	assert.Contains(t, backupErr.Cause.Error(), "upload of backup.sql.gz.002 refused")

	assert.Equal(t, 1, store.attempts["backup.sql.gz.002"])
	assert.Equal(t, []string{"backup.sql.gz.001"}, result.RolledBack)
	assert.Empty(t, store.remote)
}

func TestUploadExhaustedReportsAttemptsMade(t *testing.T) {
	store := newFakeStore()
	store.failures["manifest.json"] = -1
	coordinator := NewCoordinator(store, pkg.NewRetrier(5, 0))
	parts, manifest := files(1)

	_, err := coordinator.Upload(context.Background(), folder, parts, manifest)

	var backupErr *pkg.BackupError
	require.ErrorAs(t, err, &backupErr)
	assert.Equal(t, "upload failed after 5 attempts", backupErr.Message)
	assert.Equal(t, 5, store.attempts["manifest.json"])
}

func TestUploadRollbackDeletesExactlyEarlierParts(t *testing.T) {
	const n = 5

	for k := 1; k <= n; k++ {
		t.Run(fmt.Sprintf("part %d fails", k), func(t *testing.T) {
			store := newFakeStore()
			parts, manifest := files(n)
			store.failures[parts[k-1].RemoteName] = -1

			_, err := NewCoordinator(store, fastRetrier()).Upload(context.Background(), folder, parts, manifest)
			require.Error(t, err)

			expected := make([]string, 0)
			for i := 0; i < k-1; i++ {
				expected = append(expected, parts[i].RemoteName)
			}
			assert.Equal(t, expected, append([]string{}, store.deleted...))
			assert.Empty(t, store.remote)
			for i := k - 1; i < n; i++ {
				assert.False(t, store.ever[parts[i].RemoteName])
			}
			assert.False(t, store.ever["manifest.json"])
		})
	}
}

func TestUploadManifestExhaustedRollsBackAllParts(t *testing.T) {
	store := newFakeStore()
	store.failures["manifest.json"] = -1
	parts, manifest := files(2)

	result, err := NewCoordinator(store, fastRetrier()).Upload(context.Background(), folder, parts, manifest)
	require.Error(t, err)

	assert.True(t, pkg.IsKind(err, pkg.KindUploadExhausted))
	assert.Equal(t, []string{"backup.sql.gz.001", "backup.sql.gz.002"}, result.RolledBack)
	assert.Empty(t, store.remote)
}

func TestRollbackContinuesPastDeleteFailures(t *testing.T) {
	store := newFakeStore()
	store.failures["backup.sql.gz.004"] = -1
	store.deleteFailures["backup.sql.gz.002"] = true
	parts, manifest := files(4)

	result, err := NewCoordinator(store, fastRetrier()).Upload(context.Background(), folder, parts, manifest)
	require.Error(t, err)

	assert.True(t, pkg.IsKind(err, pkg.KindUploadExhausted))
	assert.False(t, pkg.IsKind(err, pkg.KindRollbackPartialFailure))

	assert.Equal(t, []string{"backup.sql.gz.001", "backup.sql.gz.003"}, result.RolledBack)
	require.NotNil(t, result.RollbackErrors)
	require.Equal(t, 1, result.RollbackErrors.Len())
	assert.True(t, pkg.IsKind(result.RollbackErrors.Errors[0], pkg.KindRollbackPartialFailure))

	assert.Equal(t, map[string]bool{"backup.sql.gz.002": true}, store.remote)
}

func TestCoordinatorIsSingleUse(t *testing.T) {
	coordinator := NewCoordinator(newFakeStore(), fastRetrier())
	parts, manifest := files(1)

	_, err := coordinator.Upload(context.Background(), folder, parts, manifest)
	require.NoError(t, err)

	_, err = coordinator.Upload(context.Background(), folder, parts, manifest)
	assert.Error(t, err)
}
