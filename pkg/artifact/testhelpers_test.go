package artifact

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeRandomFile(t *testing.T, dir string, name string, size int64) string {
	t.Helper()

	data := make([]byte, size)
	rand.New(rand.NewSource(size)).Read(data)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}
