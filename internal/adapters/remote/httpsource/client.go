// Package httpsource is a remote.Source client for the HTTP protocol served
// by sourceapi: REST for reads and writes, a WebSocket change stream.
package httpsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/okian/rostersync/internal/adapters/http/sourceapi"
	"github.com/okian/rostersync/internal/adapters/remote"
	"github.com/okian/rostersync/internal/domain/types"
	"github.com/okian/rostersync/pkg/logger"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultReconnects = 0.5 // per second
	maxErrorBody      = 64 << 10
)

// Client implements remote.Source over HTTP.
type Client struct {
	base        *url.URL
	http        *http.Client
	dialer      *websocket.Dialer
	limiter     *rate.Limiter
	buffer      int
	onReconnect func()
	log         logger.Logger
}

var _ remote.Source = (*Client)(nil)

// New creates a client for the source served at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote url must be http or https, got %q", baseURL)
	}

	c := &Client{
		base:    u,
		http:    &http.Client{Timeout: defaultTimeout},
		dialer:  websocket.DefaultDialer,
		limiter: rate.NewLimiter(rate.Limit(defaultReconnects), 1),
		buffer:  remote.DefaultBuffer,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("httpsource")
	return c, nil
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.base
	u.RawQuery = ""
	u = *u.JoinPath(append([]string{"rest"}, parts...)...)
	return u.String()
}

func (c *Client) Select(ctx context.Context, collection string, order types.Order) ([]types.Row, error) {
	u := c.endpoint(collection)
	q := url.Values{}
	if order.Column != "" {
		q.Set("order", order.Column)
		q.Set("asc", strconv.FormatBool(order.Ascending))
		u += "?" + q.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rows []types.Row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	return rows, nil
}

func (c *Client) Insert(ctx context.Context, collection string, row types.Row) error {
	return c.send(ctx, http.MethodPost, c.endpoint(collection), row)
}

func (c *Client) Update(ctx context.Context, collection, id string, patch types.Row) error {
	return c.send(ctx, http.MethodPatch, c.endpoint(collection, id), patch)
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.send(ctx, http.MethodDelete, c.endpoint(collection, id), nil)
}

func (c *Client) send(ctx context.Context, method, u string, body types.Row) error {
	resp, err := c.do(ctx, method, u, body)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// do issues the request and turns non-2xx responses into errors.
func (c *Client) do(ctx context.Context, method, u string, body types.Row) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeError(resp)
}

func decodeError(resp *http.Response) error {
	var body sourceapi.ErrorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == "" {
		body.Message = string(bytes.TrimSpace(raw))
	}

	var kind error
	switch body.Code {
	case sourceapi.CodeUnknownCollection:
		kind = remote.ErrUnknownCollection
	case sourceapi.CodeNotFound:
		kind = remote.ErrNotFound
	case sourceapi.CodeConflict:
		kind = remote.ErrConflict
	case sourceapi.CodeMissingID:
		kind = remote.ErrMissingID
	}
	if kind != nil {
		return fmt.Errorf("%w: %s", kind, body.Message)
	}
	return fmt.Errorf("remote: %s: %s", resp.Status, body.Message)
}
