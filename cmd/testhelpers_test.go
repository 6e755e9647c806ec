package cmd

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/feederco/chunked-db-backup/pkg"
	"github.com/feederco/chunked-db-backup/pkg/artifact"
	"github.com/feederco/chunked-db-backup/pkg/storage"
	"github.com/stretchr/testify/require"
)

var testCreatedAt = time.Date(2024, 3, 5, 10, 15, 30, 123000000, time.UTC)

const testFolder = "databaseBackups/2024/Month-3/backup-2024-03-05T10-15-30-123Z"
const testCompressedName = "backup-2024-03-05T10-15-30-123Z.sql.gz"

func randomBytes(size int) []byte {
	data := make([]byte, size)
	rand.New(rand.NewSource(int64(size))).Read(data)
	return data
}

// fakeDumper writes content, or a truncated dump and err when err is set
type fakeDumper struct {
	content []byte
	err     error
	calls   int
}

func (d *fakeDumper) Dump(ctx context.Context, destination string) error {
	d.calls++
	if d.err != nil {
		_ = os.WriteFile(destination, d.content[:len(d.content)/2], 0644)
		return pkg.NewError(pkg.KindDumpFailed, "dump exited with status 2", d.err)
	}
	return os.WriteFile(destination, d.content, 0644)
}

// flakyStore is a LocalStore whose uploads of some names fail
type flakyStore struct {
	*storage.LocalStore

	mu sync.Mutex
	// failures is how many times an upload of a name fails; -1 fails forever
	failures map[string]int
}

func newFlakyStore(t *testing.T) *flakyStore {
	t.Helper()

	local, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	return &flakyStore{LocalStore: local, failures: map[string]int{}}
}

func (s *flakyStore) Upload(ctx context.Context, localPath string, remoteName string, remoteFolder string) (string, error) {
	s.mu.Lock()
	remaining := s.failures[remoteName]
	if remaining > 0 {
		s.failures[remoteName]--
	}
	s.mu.Unlock()

	if remaining != 0 {
		return "", errors.New("connection reset by peer")
	}

	return s.LocalStore.Upload(ctx, localPath, remoteName, remoteFolder)
}

// remoteNames lists the names stored under folder
func (s *flakyStore) remoteNames(t *testing.T, folder string) []string {
	t.Helper()

	objects, err := s.List(context.Background(), folder+"/")
	require.NoError(t, err)

	names := make([]string, 0, len(objects))
	for _, object := range objects {
		names = append(names, object.Key[len(folder)+1:])
	}
	return names
}

func newTestPipeline(t *testing.T, content []byte, store *flakyStore) (*backupPipeline, string) {
	t.Helper()

	workspaceBase := t.TempDir()

	return &backupPipeline{
		dumper:          &fakeDumper{content: content},
		store:           store,
		retrier:         pkg.NewRetrier(3, 0),
		chunkSize:       artifact.DefaultChunkSize,
		createWorkspace: localWorkspaces(workspaceBase),
		now:             func() time.Time { return testCreatedAt },
		compress:        artifact.Compress,
		segment:         artifact.Segment,
		buildManifest:   artifact.BuildManifest,
	}, workspaceBase
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "workspace was left behind")
}
