package recording

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

	"github.com/recallhq/recall/internal/config"
)

// Source abstracts the external capture device API.
type Source interface {
	// ListSince returns all recordings started within [since, until),
	// paging through the source until the window is exhausted.
	ListSince(ctx context.Context, since, until time.Time) ([]Recording, error)
	// MarkProcessed flags a recording as processed on the source.
	MarkProcessed(ctx context.Context, recordingID string) error
	// ClearProcessed clears the processed flag so a future sync picks the
	// recording up again (operator force-reprocess).
	ClearProcessed(ctx context.Context, recordingID string) error
}

// Client is an HTTP client for the capture source's recordings API. The source
// rate-limits listing, so pages are fetched in bounded batches with a delay
// between pages and transient failures are retried with exponential backoff.
type Client struct {
	baseURL   string
	apiKey    string
	pageSize  int
	pageDelay time.Duration
	retries   int
	http      *http.Client
}

// NewClient creates a capture source client from config.
func NewClient(cfg config.SourceConfig) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		pageSize:  cfg.PageSize,
		pageDelay: cfg.PageDelay,
		retries:   cfg.Retries,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) ListSince(ctx context.Context, since, until time.Time) ([]Recording, error) {
	var all []Recording
	offset := 0

	for {
		page, err := c.fetchPage(ctx, since, until, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		if len(page) < c.pageSize {
			return all, nil
		}
		offset += len(page)

		// Stay under the source's rate limit between pages.
		select {
		case <-time.After(c.pageDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, since, until time.Time, offset int) ([]Recording, error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339))
	q.Set("until", until.UTC().Format(time.RFC3339))
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("offset", strconv.Itoa(offset))
	endpoint := fmt.Sprintf("%s/v1/recordings?%s", c.baseURL, q.Encode())

	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying recordings fetch", "attempt", attempt, "offset", offset, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		page, err := c.doFetch(ctx, endpoint)
		if err == nil {
			return page, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("fetching recordings page at offset %d: %w", offset, lastErr)
}

func (c *Client) doFetch(ctx context.Context, endpoint string) ([]Recording, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling capture source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("capture source returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Recordings []Recording `json:"recordings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding recordings page: %w", err)
	}
	return payload.Recordings, nil
}

func (c *Client) MarkProcessed(ctx context.Context, recordingID string) error {
	return c.setProcessed(ctx, recordingID, http.MethodPost)
}

func (c *Client) ClearProcessed(ctx context.Context, recordingID string) error {
	return c.setProcessed(ctx, recordingID, http.MethodDelete)
}

func (c *Client) setProcessed(ctx context.Context, recordingID, method string) error {
	endpoint := fmt.Sprintf("%s/v1/recordings/%s/processed", c.baseURL, url.PathEscape(recordingID))
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("updating processed flag for %s: %w", recordingID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("capture source returned %d updating processed flag for %s", resp.StatusCode, recordingID)
	}
	return nil
}
