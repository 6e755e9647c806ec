package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/feederco/chunked-db-backup/pkg"
)

// SinglePart describes the whole file at path as the only part of the artifact
func SinglePart(path string) ([]Part, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, pkg.NewFileError(pkg.KindSegmentationFailed, filepath.Base(path), "could not stat compressed file", err)
	}

	return []Part{{
		Filename: filepath.Base(path),
		Size:     stat.Size(),
		Path:     path,
	}}, nil
}

// Segment splits src into parts of exactly chunkSize bytes (the last one may be smaller) inside destDir.
// Parts are named after src with a 1-based, three digit suffix and are written strictly in order,
// each one synced and closed before the next chunk is read.
func Segment(src string, chunkSize int64, destDir string) ([]Part, error) {
	originalFilename := filepath.Base(src)

	if chunkSize <= 0 {
		return nil, pkg.NewFileError(pkg.KindSegmentationFailed, originalFilename, "chunk size must be positive", nil)
	}

	input, err := os.Open(src)
	if err != nil {
		return nil, pkg.NewFileError(pkg.KindSegmentationFailed, originalFilename, "could not open compressed file", err)
	}
	defer input.Close()

	stat, err := input.Stat()
	if err != nil {
		return nil, pkg.NewFileError(pkg.KindSegmentationFailed, originalFilename, "could not stat compressed file", err)
	}

	if expected := PartCount(stat.Size(), chunkSize); expected > MaxParts {
		return nil, pkg.NewFileError(pkg.KindSegmentationFailed, originalFilename,
			fmt.Sprintf("file would need %d parts, at most %d are supported", expected, MaxParts), nil)
	}

	if err = os.MkdirAll(destDir, 0755); err != nil {
		return nil, pkg.NewFileError(pkg.KindSegmentationFailed, originalFilename, "could not create parts directory", err)
	}

	parts := make([]Part, 0, PartCount(stat.Size(), chunkSize))

	for seq := 1; ; seq++ {
		filename := PartFilename(originalFilename, seq)
		partPath := filepath.Join(destDir, filename)

		written, eof, err := writePart(input, partPath, chunkSize)
		if err != nil {
			return nil, pkg.NewFileError(pkg.KindSegmentationFailed, filename, "could not write part", err)
		}

		if written == 0 {
			// The previous part ended exactly at the end of the file
			if err = os.Remove(partPath); err != nil {
				return nil, pkg.NewFileError(pkg.KindSegmentationFailed, filename, "could not remove empty part", err)
			}
			break
		}

		parts = append(parts, Part{Filename: filename, Size: written, Path: partPath})

		pkg.Log.WithField("part", filename).Debugf("Wrote part %d (%d bytes)", seq, written)

		if eof {
			break
		}
	}

	if len(parts) == 0 {
		return nil, pkg.NewFileError(pkg.KindSegmentationFailed, originalFilename, "compressed file is empty", nil)
	}

	return parts, nil
}

func writePart(input io.Reader, partPath string, chunkSize int64) (int64, bool, error) {
	output, err := os.Create(partPath)
	if err != nil {
		return 0, false, err
	}
	defer output.Close()

	written, err := io.CopyN(output, input, chunkSize)
	eof := errors.Is(err, io.EOF)
	if err != nil && !eof {
		return written, false, err
	}

	if err = output.Sync(); err != nil {
		return written, eof, err
	}

	return written, eof, output.Close()
}
