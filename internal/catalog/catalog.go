// Package catalog fetches the current item-shop contents from the public
// shop API and exposes them as a transient snapshot of normalized names.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"dropwatch/internal/watch"
	logx "dropwatch/pkg/logx"
)

const (
	defaultBaseURL = "https://fortnite-api.com"
	shopPath       = "/v2/shop/br"

	defaultTimeout  = 10 * time.Second
	defaultRetryMax = 2

	// Responses larger than this are not a shop payload we recognize.
	maxBodyBytes = 8 << 20
)

// ErrUnavailable wraps every fetch failure: provider unreachable, error
// status, or malformed response. Callers only need "did the fetch succeed";
// an empty shop with a successful fetch is NOT an error.
var ErrUnavailable = errors.New("catalog unavailable")

// Snapshot is the set of normalized item names in the shop right now.
// It is never retained between fetches.
type Snapshot struct {
	names map[string]struct{}
}

// SnapshotOf builds a snapshot from raw names, normalizing each.
func SnapshotOf(names ...string) Snapshot {
	s := Snapshot{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if n = watch.NormalizeName(n); n != "" {
			s.names[n] = struct{}{}
		}
	}
	return s
}

// Contains reports whether the normalized name is in the shop.
func (s Snapshot) Contains(name string) bool {
	_, ok := s.names[name]
	return ok
}

func (s Snapshot) Len() int { return len(s.names) }

// Source is the catalog contract the match engine depends on.
type Source interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	RetryMax int
}

// Client fetches the shop over HTTP. Transient failures are retried with
// capped exponential backoff before the fetch is reported as failed.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = defaultRetryMax
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// shopResponse mirrors the slice of the shop API payload we care about:
// item names under the featured and daily sections.
type shopResponse struct {
	Status int `json:"status"`
	Data   struct {
		Featured shopSection `json:"featured"`
		Daily    shopSection `json:"daily"`
	} `json:"data"`
}

type shopSection struct {
	Entries []struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	} `json:"entries"`
}

func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	url := c.cfg.BaseURL + shopPath

	var snap Snapshot
	err := retry.Do(
		func() error {
			s, err := c.fetchOnce(ctx, url)
			if err != nil {
				return err
			}
			snap = s
			return nil
		},
		retry.Attempts(uint(c.cfg.RetryMax)+1),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debug("shop fetch retry", logx.Int("attempt", int(n)+1), logx.Err(err))
		}),
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return snap, nil
}

func (c *Client) fetchOnce(ctx context.Context, url string) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return Snapshot{}, retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("shop request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 512)
		err := fmt.Errorf("shop request: unexpected status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return Snapshot{}, retry.Unrecoverable(err)
		}
		return Snapshot{}, err
	}

	var payload shopResponse
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes))
	if err := dec.Decode(&payload); err != nil {
		return Snapshot{}, retry.Unrecoverable(fmt.Errorf("decode shop payload: %w", err))
	}
	if payload.Status != http.StatusOK {
		return Snapshot{}, fmt.Errorf("shop api status %d", payload.Status)
	}

	snap := Snapshot{names: map[string]struct{}{}}
	for _, section := range []shopSection{payload.Data.Featured, payload.Data.Daily} {
		for _, entry := range section.Entries {
			for _, item := range entry.Items {
				if name := watch.NormalizeName(item.Name); name != "" {
					snap.names[name] = struct{}{}
				}
			}
		}
	}

	c.log.Debug("shop fetched",
		logx.Int("items", snap.Len()),
		logx.Duration("took", time.Since(start)))
	return snap, nil
}
