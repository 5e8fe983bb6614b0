// Package notion wraps the Notion API for reading the target-company database
// and recording handoff status on its pages.
package notion

import (
	"context"
	"net/http"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Notion allows an average of three requests per second per integration.
const defaultRPS = 3

// Client is the subset of the Notion API the seed source and CRM sink use.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// ClientOption configures NewClient.
type ClientOption func(*limitedClient)

// WithRateLimit replaces the default limit; rps <= 0 disables throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *limitedClient) {
		c.limiter = nil
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithTimeout bounds every call, including the wait for a rate limit token.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *limitedClient) { c.timeout = d }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *limitedClient) { c.httpClient = hc }
}

type limitedClient struct {
	api        *notionapi.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a Client for an integration token.
func NewClient(token string, opts ...ClientOption) Client {
	c := &limitedClient{limiter: rate.NewLimiter(defaultRPS, 1)}
	for _, opt := range opts {
		opt(c)
	}
	var apiOpts []notionapi.ClientOption
	if c.httpClient != nil {
		apiOpts = append(apiOpts, notionapi.WithHTTPClient(c.httpClient))
	}
	c.api = notionapi.NewClient(notionapi.Token(token), apiOpts...)
	return c
}

// begin applies the call timeout and waits for a rate limit token.
func (c *limitedClient) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			cancel()
			return nil, nil, eris.Wrap(err, "notion: rate limit")
		}
	}
	return ctx, cancel, nil
}

func (c *limitedClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	resp, err := c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query database %s", dbID)
	}
	return resp, nil
}

func (c *limitedClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	page, err := c.api.Page.Update(ctx, notionapi.PageID(pageID), req)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: update page %s", pageID)
	}
	return page, nil
}
