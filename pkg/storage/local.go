package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/feederco/chunked-db-backup/pkg"
)

// LocalStore keeps backups in a directory, laid out exactly as in a bucket
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at root, creating it when missing
func NewLocalStore(root string) (*LocalStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, pkg.NewError(pkg.KindConfigInvalid, "invalid local storage path", err)
	}

	if err = os.MkdirAll(absRoot, 0755); err != nil {
		return nil, pkg.NewError(pkg.KindConfigInvalid, "could not create local storage directory", err)
	}

	return &LocalStore{root: absRoot}, nil
}

// Upload copies the file into the store
func (s *LocalStore) Upload(ctx context.Context, localPath string, remoteName string, remoteFolder string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	input, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer input.Close()

	target := s.path(ObjectKey(remoteFolder, remoteName))
	if err = os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", err
	}

	if err = writeFile(target, input); err != nil {
		return "", err
	}

	return "file://" + target, nil
}

// Delete removes a file from the store. Empty folders are left behind.
func (s *LocalStore) Delete(ctx context.Context, remoteFolder string, remoteName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.Remove(s.path(ObjectKey(remoteFolder, remoteName)))
}

// List lists all files whose key starts with prefix
func (s *LocalStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objects := make([]ObjectInfo, 0)

	err := filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}

		relative, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(relative)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return objects, nil
}

// Download copies a file out of the store
func (s *LocalStore) Download(ctx context.Context, key string, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	input, err := os.Open(s.path(key))
	if err != nil {
		return err
	}
	defer input.Close()

	return writeFile(localPath, input)
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}
