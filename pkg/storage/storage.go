// Package storage holds the remote object store clients backups are uploaded to.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/feederco/chunked-db-backup/pkg"
)

const (
	ProviderMinio = "minio"
	ProviderS3    = "s3"
	ProviderLocal = "local"
)

// Store is a remote object store
type Store interface {
	// Upload stores the file at localPath as remoteFolder/remoteName and returns its URL
	Upload(ctx context.Context, localPath string, remoteName string, remoteFolder string) (string, error)

	// Delete removes remoteFolder/remoteName
	Delete(ctx context.Context, remoteFolder string, remoteName string) error

	// List returns every object whose key starts with prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Download fetches the object at key into localPath
	Download(ctx context.Context, key string, localPath string) error
}

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Config selects and configures a Store
type Config struct {
	Provider  string `mapstructure:"provider" json:"provider"`
	Endpoint  string `mapstructure:"endpoint" json:"endpoint"`
	Bucket    string `mapstructure:"bucket" json:"bucket"`
	Region    string `mapstructure:"region" json:"region"`
	AccessKey string `mapstructure:"access_key" json:"access_key"`
	SecretKey string `mapstructure:"secret_key" json:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl" json:"use_ssl"`
	LocalPath string `mapstructure:"local_path" json:"local_path"`
}

// Validate checks that the values the selected provider needs are present
func (c Config) Validate() error {
	missing := make([]string, 0)
	require := func(value string, key string) {
		if value == "" {
			missing = append(missing, key)
		}
	}

	switch c.Provider {
	case ProviderMinio:
		require(c.Endpoint, "storage.endpoint")
		require(c.Bucket, "storage.bucket")
		require(c.AccessKey, "storage.access_key")
		require(c.SecretKey, "storage.secret_key")
	case ProviderS3:
		require(c.Bucket, "storage.bucket")
		require(c.Region, "storage.region")
	case ProviderLocal:
		require(c.LocalPath, "storage.local_path")
	default:
		return pkg.NewError(pkg.KindConfigInvalid, fmt.Sprintf("unknown storage provider %q", c.Provider), nil)
	}

	if len(missing) > 0 {
		return pkg.NewError(pkg.KindConfigInvalid, "missing storage settings: "+strings.Join(missing, ", "), nil)
	}

	return nil
}

// New creates the Store selected by config.Provider
func New(ctx context.Context, config Config) (Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Provider {
	case ProviderMinio:
		return NewMinioStore(config)
	case ProviderS3:
		return NewS3Store(ctx, config)
	default:
		return NewLocalStore(config.LocalPath)
	}
}

// ObjectKey joins a folder and a name into an object key
func ObjectKey(remoteFolder string, remoteName string) string {
	return path.Join(remoteFolder, remoteName)
}
