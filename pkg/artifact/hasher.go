package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/feederco/chunked-db-backup/pkg"
)

// Checksum streams the file at path through xxHash64 and returns the digest as 16 hex digits
func Checksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", pkg.NewFileError(pkg.KindChecksumFailed, filepath.Base(path), "could not open file for hashing", err)
	}
	defer file.Close()

	return checksumReader(file, path)
}

func checksumReader(reader io.Reader, path string) (string, error) {
	digest := xxhash.New()
	if _, err := io.Copy(digest, reader); err != nil {
		return "", pkg.NewFileError(pkg.KindChecksumFailed, filepath.Base(path), "could not read file for hashing", err)
	}

	return fmt.Sprintf("%016x", digest.Sum64()), nil
}
