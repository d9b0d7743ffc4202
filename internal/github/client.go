// Package github downloads raw corpus documents from a directory of a
// GitHub repository.
package github

import (
	"fmt"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// Client is a GitHub API client that sleeps through primary and secondary
// rate limits instead of failing the fetch.
type Client struct {
	*github.Client
}

// NewClient creates a client. An empty token makes unauthenticated
// requests; a non-empty baseURL targets a GitHub Enterprise server.
func NewClient(token, baseURL string) (*Client, error) {
	transport, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, fmt.Errorf("create rate limit transport: %w", err)
	}

	gh := github.NewClient(transport)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	if baseURL != "" {
		gh, err = gh.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("set enterprise URL: %w", err)
		}
	}

	return &Client{Client: gh}, nil
}
