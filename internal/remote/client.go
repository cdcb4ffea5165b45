// Package remote is a typed client for the platform's entity Data API.
//
// The API exposes per-id reads (GET /{type}/{id}) and constraint searches
// (GET /{type}?constraints=...&cursor=...&limit=...) with cursor pagination.
// The client handles transport and pagination only; constraint semantics are
// the platform's business and are passed through verbatim.
//
// Entities are never cached: the platform's data may change between runs, and
// a verification run must see the record as it is now, not as it was.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/openstage/verity/internal/entity"
)

// Constraint is one search filter, passed to the platform verbatim.
// The client does not validate key or operator semantics.
type Constraint struct {
	Key      string `json:"key"`
	Operator string `json:"constraint_type"`
	Value    any    `json:"value"`
}

// Client talks to one platform Data API endpoint.
//
// Construct with New. The zero value is not usable.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client (used in tests and
// for custom transports).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpc = h
	}
}

// New creates a client for the Data API rooted at baseURL, authenticating
// with the given bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getResponse is the envelope for per-id reads: {"response": {...fields}}.
type getResponse struct {
	Response entity.Fields `json:"response"`
}

// searchResponse is the envelope for searches:
// {"response": {"results": [...], "remaining": n}}.
type searchResponse struct {
	Response struct {
		Results   []entity.Fields `json:"results"`
		Remaining int             `json:"remaining"`
	} `json:"response"`
}

// Get fetches a single record by type and id.
//
// Returns NotFoundError on a missing record and TransportError on any other
// failure.
func (c *Client) Get(ctx context.Context, entityType, id string) (entity.Fields, error) {
	u := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(entityType), url.PathEscape(id))

	slog.Debug("remote get", "type", entityType, "id", id)

	var out getResponse
	if err := c.getJSON(ctx, entityType, id, u, &out); err != nil {
		return nil, err
	}
	return out.Response, nil
}

// Search fetches every record of entityType matching the constraints.
//
// The platform pages results by cursor; Search follows the cursor until the
// reported remaining count is exhausted or a page comes back empty, then
// returns the concatenated result set. Constraints are serialized verbatim.
//
// limit is the page size; values <= 0 use DefaultSearchLimit.
func (c *Client) Search(ctx context.Context, entityType string, constraints []Constraint, limit int) ([]entity.Fields, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var all []entity.Fields
	cursor := 0

	for {
		page, remaining, err := c.searchPage(ctx, entityType, constraints, cursor, limit)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		if remaining <= 0 || len(page) == 0 {
			break
		}
		cursor += len(page)
	}

	slog.Debug("remote search complete",
		"type", entityType,
		"constraints", len(constraints),
		"results", len(all),
	)

	return all, nil
}

// DefaultSearchLimit is the page size used when the caller passes limit <= 0.
const DefaultSearchLimit = 100

// searchPage fetches one page of search results.
func (c *Client) searchPage(ctx context.Context, entityType string, constraints []Constraint, cursor, limit int) ([]entity.Fields, int, error) {
	params := url.Values{}
	if len(constraints) > 0 {
		raw, err := json.Marshal(constraints)
		if err != nil {
			return nil, 0, &TransportError{Type: entityType, Err: fmt.Errorf("encode constraints: %w", err)}
		}
		params.Set("constraints", string(raw))
	}
	params.Set("cursor", strconv.Itoa(cursor))
	params.Set("limit", strconv.Itoa(limit))

	u := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(entityType), params.Encode())

	slog.Debug("remote search page", "type", entityType, "cursor", cursor, "limit", limit)

	var out searchResponse
	if err := c.getJSON(ctx, entityType, "", u, &out); err != nil {
		return nil, 0, err
	}
	return out.Response.Results, out.Response.Remaining, nil
}

// getJSON performs one authenticated GET and decodes the JSON body into dst.
// Maps 404 to NotFoundError and every other failure to TransportError.
func (c *Client) getJSON(ctx context.Context, entityType, id, u string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &TransportError{Type: entityType, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &TransportError{Type: entityType, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &NotFoundError{Type: entityType, ID: id}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &TransportError{
			Type:       entityType,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &TransportError{Type: entityType, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
