// Package subgraph enumerates borrower addresses from the protocol's
// indexed subgraph during bootstrap, paginating through every account that
// has ever held debt. No dependency in the retrieved corpus wraps a
// GraphQL client (the pack's HTTP work is all plain REST), so this client
// is deliberately a thin net/http + encoding/json wrapper rather than an
// unjustified new dependency.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const accountsQuery = `
query GetAccounts($first: Int, $lastID: ID) {
  users(first: $first, where: { id_gt: $lastID, borrowedReservesCount_gt: 0 }, orderBy: id) {
    id
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data struct {
		Users []struct {
			ID string `json:"id"`
		} `json:"users"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Client queries a subgraph endpoint for the bootstrap candidate list.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New returns a Client targeting endpoint, with a bounded per-request
// timeout appropriate for a paginated bootstrap scan.
func New(endpoint string) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Accounts fetches up to first borrower addresses with id greater than
// lastID, ordered by id, for cursor-paginated bootstrap traversal.
func (c *Client) Accounts(ctx context.Context, first int, lastID string) ([]string, error) {
	body, err := json.Marshal(graphQLRequest{
		Query: accountsQuery,
		Variables: map[string]any{
			"first":  first,
			"lastID": lastID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal subgraph query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build subgraph request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subgraph request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subgraph returned status %d", resp.StatusCode)
	}

	var decoded graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode subgraph response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("subgraph error: %s", decoded.Errors[0].Message)
	}

	ids := make([]string, 0, len(decoded.Data.Users))
	for _, u := range decoded.Data.Users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}
