package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"classrelay/pkg/types"
)

// Client resolves users against the course platform's HTTP API, for
// deployments where the relay runs next to the platform instead of carrying
// its own roster.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a directory client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetUserByID fetches GET {base}/users/{id}. A 404 means no such user
// ((nil, nil)); any other non-200 status is a lookup failure.
func (c *Client) GetUserByID(ctx context.Context, id string) (*types.User, error) {
	endpoint := c.baseURL + "/users/" + url.PathEscape(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user lookup request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		var user types.User
		if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
			return nil, fmt.Errorf("failed to decode user %s: %w", id, err)
		}
		return &user, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("user lookup for %s returned status %d", id, resp.StatusCode)
	}
}
