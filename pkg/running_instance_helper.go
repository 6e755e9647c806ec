package pkg

import (
	"context"
	"time"

	"github.com/digitalocean/go-metadata"
)

// GetRunningInstanceData returns the metadata of the droplet we are running on
func GetRunningInstanceData(ctx context.Context) (*metadata.Metadata, error) {
	var err error
	var result *metadata.Metadata

	client := metadata.NewClient()
	err = NewRetrier(5, 100*time.Millisecond).WithRetry(ctx, "droplet metadata", func(int) error {
		result, err = client.Metadata()
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
