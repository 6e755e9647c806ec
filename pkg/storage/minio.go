package storage

import (
	"context"
	"io"
	"net/url"
	"os"

	"github.com/feederco/chunked-db-backup/pkg"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore stores backups in any S3 compatible bucket, e.g. DigitalOcean Spaces
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore creates a MinioStore. Credentials are bound here, once, for the life of the store.
func NewMinioStore(config Config) (*MinioStore, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, pkg.NewError(pkg.KindConfigInvalid, "could not construct minio client", err)
	}

	return &MinioStore{client: client, bucket: config.Bucket}, nil
}

// Upload uploads a file to the bucket
func (s *MinioStore) Upload(ctx context.Context, localPath string, remoteName string, remoteFolder string) (string, error) {
	stat, err := os.Stat(localPath)
	if err != nil {
		return "", err
	}

	key := ObjectKey(remoteFolder, remoteName)
	options := minio.PutObjectOptions{ContentType: "application/octet-stream"}

	bar := pkg.NewByteProgress(stat.Size(), remoteName)
	if bar != nil {
		bar.Start()
		options.Progress = bar
	}

	_, err = s.client.FPutObject(ctx, s.bucket, key, localPath, options)
	pkg.FinishProgress(bar)
	if err != nil {
		return "", err
	}

	return objectURL(s.client.EndpointURL(), s.bucket, key), nil
}

// Delete removes an object from the bucket
func (s *MinioStore) Delete(ctx context.Context, remoteFolder string, remoteName string) error {
	return s.client.RemoveObject(ctx, s.bucket, ObjectKey(remoteFolder, remoteName), minio.RemoveObjectOptions{})
}

// List lists all objects under prefix
func (s *MinioStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objects := make([]ObjectInfo, 0)

	for item := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if item.Err != nil {
			return nil, item.Err
		}
		objects = append(objects, ObjectInfo{Key: item.Key, Size: item.Size, LastModified: item.LastModified})
	}

	return objects, nil
}

// Download downloads an object into localPath
func (s *MinioStore) Download(ctx context.Context, key string, localPath string) error {
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer object.Close()

	return writeFile(localPath, object)
}

func objectURL(endpoint *url.URL, bucket string, key string) string {
	return endpoint.JoinPath(bucket, key).String()
}

func writeFile(localPath string, reader io.Reader) error {
	output, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer output.Close()

	if _, err = io.Copy(output, reader); err != nil {
		return err
	}

	return output.Close()
}
