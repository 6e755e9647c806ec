package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/feederco/chunked-db-backup/pkg"
)

// VerifyParts checks that every part listed in the manifest exists in dir with the recorded size and checksum.
// It checks all parts before reporting, so the error lists every problem found.
func VerifyParts(artifact *Artifact, dir string) error {
	if len(artifact.Parts) == 0 {
		return pkg.NewError(pkg.KindVerificationFailed, "manifest lists no parts", nil)
	}

	if artifact.TotalParts != len(artifact.Parts) {
		return pkg.NewError(pkg.KindVerificationFailed,
			fmt.Sprintf("manifest lists %d parts but totalParts is %d", len(artifact.Parts), artifact.TotalParts), nil)
	}

	if err := ValidateNames(artifact); err != nil {
		return err
	}

	problems := make([]string, 0)
	var totalSize int64

	for _, part := range artifact.Parts {
		partPath := filepath.Join(dir, part.Filename)

		stat, err := os.Stat(partPath)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: missing", part.Filename))
			continue
		}

		if stat.Size() != part.Size {
			problems = append(problems, fmt.Sprintf("%s: size %d, expected %d", part.Filename, stat.Size(), part.Size))
			continue
		}

		checksum, err := Checksum(partPath)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %s", part.Filename, err))
			continue
		}

		if checksum != part.Checksum {
			problems = append(problems, fmt.Sprintf("%s: checksum %s, expected %s", part.Filename, checksum, part.Checksum))
			continue
		}

		totalSize += stat.Size()
	}

	if len(problems) > 0 {
		return pkg.NewError(pkg.KindVerificationFailed, fmt.Sprintf("%d of %d parts failed verification: %v", len(problems), len(artifact.Parts), problems), nil)
	}

	if totalSize != artifact.TotalSize {
		return pkg.NewError(pkg.KindVerificationFailed, fmt.Sprintf("parts add up to %d bytes, manifest says %d", totalSize, artifact.TotalSize), nil)
	}

	return nil
}

// ValidateNames rejects manifests whose names would reach outside the restore directory or onto each other.
// The original filename may only equal a part name in the single part layout.
func ValidateNames(artifact *Artifact) error {
	if !isPlainName(artifact.OriginalFilename) {
		return pkg.NewFileError(pkg.KindVerificationFailed, artifact.OriginalFilename, "manifest has an invalid original filename", nil)
	}

	seen := make(map[string]bool, len(artifact.Parts))
	for _, part := range artifact.Parts {
		if !isPlainName(part.Filename) {
			return pkg.NewFileError(pkg.KindVerificationFailed, part.Filename, "manifest lists an invalid part name", nil)
		}
		if seen[part.Filename] {
			return pkg.NewFileError(pkg.KindVerificationFailed, part.Filename, "manifest lists a part twice", nil)
		}
		seen[part.Filename] = true
	}

	if seen[artifact.OriginalFilename] && len(artifact.Parts) > 1 {
		return pkg.NewFileError(pkg.KindVerificationFailed, artifact.OriginalFilename, "original filename collides with a part name", nil)
	}

	return nil
}

func isPlainName(name string) bool {
	if name == "" || name == "." || name == ".." || name == ManifestFilename {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

// OpenParts returns a reader over the parts in dir, concatenated in ascending filename order.
// Parts are opened one at a time as reading reaches them.
func OpenParts(artifact *Artifact, dir string) io.ReadCloser {
	paths := make([]string, 0, len(artifact.Parts))
	for _, part := range artifact.Parts {
		paths = append(paths, filepath.Join(dir, part.Filename))
	}
	sort.Strings(paths)

	return &partsReader{paths: paths}
}

type partsReader struct {
	paths   []string
	current *os.File
}

func (r *partsReader) Read(p []byte) (int, error) {
	for {
		if r.current == nil {
			if len(r.paths) == 0 {
				return 0, io.EOF
			}
			file, err := os.Open(r.paths[0])
			if err != nil {
				return 0, err
			}
			r.current = file
			r.paths = r.paths[1:]
		}

		n, err := r.current.Read(p)
		if err == io.EOF {
			r.current.Close()
			r.current = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *partsReader) Close() error {
	r.paths = nil
	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}

// Restore verifies the parts in dir against the manifest and decompresses their concatenation into dst.
// Nothing is written when verification fails, and nothing is written to dir.
func Restore(artifact *Artifact, dir string, dst string) error {
	if err := VerifyParts(artifact, dir); err != nil {
		return err
	}

	parts := OpenParts(artifact, dir)
	defer parts.Close()

	if err := decompressReader(parts, dst); err != nil {
		return pkg.NewFileError(pkg.KindVerificationFailed, artifact.OriginalFilename, "could not decompress verified parts", err)
	}

	return nil
}
