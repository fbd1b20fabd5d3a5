package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/lineup/internal/config"
	"github.com/abelbrown/lineup/internal/logging"
	"github.com/abelbrown/lineup/internal/model"
	"github.com/abelbrown/lineup/internal/otel"
	"github.com/abelbrown/lineup/internal/provider"
	"github.com/abelbrown/lineup/internal/ranking"
	"github.com/abelbrown/lineup/internal/store"
)

// StatusError is a non-success reply from the server.
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server: status %d: %s", e.Code, e.Msg)
}

// Client talks to a Handler. It implements provider.Server.
type Client struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	backoffs []time.Duration
	events   otel.Scope
}

var _ provider.Server = (*Client)(nil)

// NewClient creates a client for cfg.Endpoint. A non-positive
// RequestsPerSecond disables rate limiting.
func NewClient(cfg config.RemoteConfig) *Client {
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := int(math.Ceil(cfg.RequestsPerSecond))
	if burst < 1 {
		burst = 1
	}
	timeout := time.Duration(cfg.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, burst),
		backoffs: []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second},
	}
}

// SetEvents routes retry events to l. Without it they are discarded.
func (c *Client) SetEvents(l *otel.Logger) {
	c.events = l.Scope("client", c.endpoint)
}

// Sort asks the server to order its rows by d.
func (c *Client) Sort(ctx context.Context, d model.RankingDump) (*ranking.Result, error) {
	var res ranking.Result
	if err := c.do(ctx, http.MethodPost, "/sort", d, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// View fetches the values of the rows with the given indices.
func (c *Client) View(ctx context.Context, indices []int) ([]map[string]any, error) {
	var resp ViewResponse
	if err := c.do(ctx, http.MethodPost, "/view", ViewRequest{Indices: indices}, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// Count returns the number of rows on the server.
func (c *Client) Count(ctx context.Context) (int, error) {
	var resp CountResponse
	if err := c.do(ctx, http.MethodGet, "/count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// SaveDump stores d on the server under name.
func (c *Client) SaveDump(ctx context.Context, name string, d model.RankingDump) error {
	return c.do(ctx, http.MethodPut, "/dumps/"+url.PathEscape(name), d, nil)
}

// LoadDump fetches the dump saved under name.
func (c *Client) LoadDump(ctx context.Context, name string) (model.RankingDump, error) {
	var d model.RankingDump
	err := c.do(ctx, http.MethodGet, "/dumps/"+url.PathEscape(name), nil, &d)
	return d, err
}

// Dumps lists the dumps saved on the server.
func (c *Client) Dumps(ctx context.Context) ([]store.DumpInfo, error) {
	var infos []store.DumpInfo
	err := c.do(ctx, http.MethodGet, "/dumps", nil, &infos)
	return infos, err
}

// do sends one request with retries on 429 and 5xx replies. On 429 the
// Retry-After header is honored, capped at 30 seconds.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("server: encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= len(c.backoffs); attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("server: rate limiter wait failed: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("server: create request: %w", err)
		}
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("server: request cancelled: %w", ctx.Err())
			}
			return fmt.Errorf("server: request failed: %w", err)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("server: read response: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil || len(data) == 0 {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("server: decode response: %w", err)
			}
			return nil
		}

		statusErr := &StatusError{Code: resp.StatusCode, Msg: errorMessage(data)}
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if !retryable {
			return statusErr
		}
		lastErr = statusErr

		if attempt < len(c.backoffs) {
			delay := c.backoffs[attempt]
			if resp.StatusCode == http.StatusTooManyRequests {
				if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
					delay = min(time.Duration(s)*time.Second, 30*time.Second)
				}
			}
			logging.Debug("Retrying request", "path", path, "status", resp.StatusCode, "attempt", attempt+1, "delay", delay)
			c.events.Emit(otel.Event{
				Level: otel.LevelWarn,
				Kind:  otel.KindRemoteRetry,
				Err:   statusErr.Error(),
				Dur:   delay,
				Extra: map[string]any{"path": path, "attempt": attempt + 1},
			})
			select {
			case <-ctx.Done():
				return fmt.Errorf("server: request cancelled during retry: %w", ctx.Err())
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("server: all retries exhausted: %w", lastErr)
}

func errorMessage(data []byte) string {
	var e errorResponse
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}
