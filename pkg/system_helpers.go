package pkg

import (
	"io/fs"
	"os"
	"path/filepath"
)

// FileOrDirSize gets the size of a directory or file
func FileOrDirSize(path string) (int64, error) {
	fileStat, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	if fileStat.IsDir() {
		return DirSize(path)
	}

	return fileStat.Size(), nil
}

// DirSize sums the size of every regular file below path
func DirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.Type().IsRegular() {
			info, err := entry.Info()
			if err != nil {
				return err
			}
			size += info.Size()
		}
		return nil
	})
	return size, err
}
