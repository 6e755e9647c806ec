package pkg

import (
	"context"

	"github.com/digitalocean/godo"
	"golang.org/x/oauth2"
)

// DigitalOceanClient is the API client scratch volumes are managed with
type DigitalOceanClient struct {
	Client *godo.Client
}

// NewDigitalOceanClient creates a client authenticated with a personal access token
func NewDigitalOceanClient(ctx context.Context, accessToken string) *DigitalOceanClient {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})

	return &DigitalOceanClient{
		Client: godo.NewClient(oauth2.NewClient(ctx, tokenSource)),
	}
}
