package storage

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/feederco/chunked-db-backup/pkg"
)

// S3Store stores backups in an Amazon S3 bucket
type S3Store struct {
	client *s3.S3
	bucket string
}

// NewS3Store creates an S3Store. Without an access key the default AWS credential chain is used.
func NewS3Store(_ context.Context, config Config) (*S3Store, error) {
	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}

	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}

	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, pkg.NewError(pkg.KindConfigInvalid, "could not create AWS session", err)
	}

	return &S3Store{client: s3.New(sess), bucket: config.Bucket}, nil
}

// Upload uploads a file to the bucket
func (s *S3Store) Upload(ctx context.Context, localPath string, remoteName string, remoteFolder string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	key := ObjectKey(remoteFolder, remoteName)

	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", err
	}

	return "s3://" + s.bucket + "/" + key, nil
}

// Delete removes an object from the bucket
func (s *S3Store) Delete(ctx context.Context, remoteFolder string, remoteName string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ObjectKey(remoteFolder, remoteName)),
	})
	return err
}

// List lists all objects under prefix
func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objects := make([]ObjectInfo, 0)

	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, object := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.StringValue(object.Key),
				Size:         aws.Int64Value(object.Size),
				LastModified: aws.TimeValue(object.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	return objects, nil
}

// Download downloads an object into localPath
func (s *S3Store) Download(ctx context.Context, key string, localPath string) error {
	output, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return err
	}
	defer output.Body.Close()

	return writeFile(localPath, output.Body)
}
