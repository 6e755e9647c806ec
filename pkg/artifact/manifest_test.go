package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/feederco/chunked-db-backup/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildManifest(t *testing.T) {
	dir := t.TempDir()
	src := writeRandomFile(t, dir, "backup.sql.gz", 25000)
	createdAt := NewTimestamp(time.Date(2024, time.March, 5, 10, 15, 30, 0, time.UTC))

	parts, err := Segment(src, 10000, filepath.Join(dir, "parts"))
	require.NoError(t, err)

	artifact, err := BuildManifest(parts, "backup.sql.gz", createdAt)
	require.NoError(t, err)

	assert.Equal(t, "backup.sql.gz", artifact.OriginalFilename)
	assert.Equal(t, 3, artifact.TotalParts)
	assert.EqualValues(t, 25000, artifact.TotalSize)
	assert.Equal(t, ChecksumAlgorithm, artifact.ChecksumAlgorithm)

	for i, part := range artifact.Parts {
		assert.Equal(t, parts[i].Filename, part.Filename)

		recomputed, err := Checksum(part.Path)
		require.NoError(t, err)
		assert.Equal(t, recomputed, part.Checksum)
	}
}

func TestBuildManifestWithoutParts(t *testing.T) {
	_, err := BuildManifest(nil, "backup.sql.gz", NewTimestamp(time.Now()))
	assert.True(t, pkg.IsKind(err, pkg.KindManifestFailed))
}

func TestBuildManifestMissingPart(t *testing.T) {
	parts := []Part{{Filename: "backup.sql.gz.001", Size: 10, Path: filepath.Join(t.TempDir(), "backup.sql.gz.001")}}

	_, err := BuildManifest(parts, "backup.sql.gz", NewTimestamp(time.Now()))
	assert.True(t, pkg.IsKind(err, pkg.KindChecksumFailed))
}

func TestManifestFieldNames(t *testing.T) {
	dir := t.TempDir()
	createdAt := NewTimestamp(time.Date(2024, time.March, 5, 10, 15, 30, 0, time.UTC))
	artifact := &Artifact{
		OriginalFilename: "backup.sql.gz",
		TotalParts:       2,
		TotalSize:        13443097,
		CreatedAt:        createdAt,
		Parts: []Part{
			{Filename: "backup.sql.gz.001", Size: 9437184, Checksum: "aaaaaaaaaaaaaaaa", Path: "/tmp/x"},
			{Filename: "backup.sql.gz.002", Size: 4005913, Checksum: "bbbbbbbbbbbbbbbb"},
		},
	}

	path := filepath.Join(dir, ManifestFilename)
	require.NoError(t, WriteManifest(artifact, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "backup.sql.gz", raw["originalFilename"])
	assert.EqualValues(t, 2, raw["totalParts"])
	assert.EqualValues(t, 13443097, raw["totalSize"])
	assert.Equal(t, "2024-03-05T10:15:30.000Z", raw["createdAt"])

	rawParts := raw["parts"].([]interface{})
	require.Len(t, rawParts, 2)
	first := rawParts[0].(map[string]interface{})
	assert.Equal(t, "backup.sql.gz.001", first["filename"])
	assert.EqualValues(t, 9437184, first["size"])
	assert.Equal(t, "aaaaaaaaaaaaaaaa", first["checksum"])
	assert.NotContains(t, first, "Path")
	assert.Equal(t, "backup.sql.gz.002", rawParts[1].(map[string]interface{})["filename"])

	loaded, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, artifact.TotalSize, loaded.TotalSize)
	assert.Equal(t, "backup.sql.gz.002", loaded.Parts[1].Filename)
	assert.True(t, loaded.CreatedAt.Equal(createdAt.Time))
}

func TestReadManifestErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadManifest(filepath.Join(dir, "missing.json"))
	assert.True(t, pkg.IsKind(err, pkg.KindVerificationFailed))

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0644))
	_, err = ReadManifest(broken)
	assert.True(t, pkg.IsKind(err, pkg.KindVerificationFailed))
}
