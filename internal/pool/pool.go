package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Status is the pool's verdict on whether the miner is productive.
// Unknown is never a reason to restart.
type Status int

const (
	StatusUnknown Status = iota
	StatusFresh
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	default:
		return "unknown"
	}
}

// maxBody caps how much of the stats document is read.
const maxBody = 4 << 20

var (
	ErrNoStats     = errors.New("response has no stats object")
	ErrNoLastShare = errors.New("response has no stats.lastShare")
)

// Result carries the verdict with the data it was derived from.
type Result struct {
	Status    Status
	LastShare time.Time
	Age       time.Duration
	Err       error
}

// Checker queries a pool stats endpoint and judges the miner's last share.
type Checker struct {
	URL    string
	MaxAge time.Duration
	Client *http.Client
	Now    func() time.Time
}

func NewChecker(url string, maxAge, requestTimeout time.Duration) *Checker {
	return &Checker{
		URL:    strings.TrimSpace(url),
		MaxAge: maxAge,
		Client: &http.Client{Timeout: requestTimeout},
		Now:    time.Now,
	}
}

// Check returns the pool status. Failures of any kind yield StatusUnknown.
func (c *Checker) Check(ctx context.Context) Status { return c.Probe(ctx).Status }

// Probe is Check with details. Without a URL the miner is always assumed productive.
func (c *Checker) Probe(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Result{Status: StatusUnknown, Err: err}
	}
	if c.URL == "" {
		return Result{Status: StatusFresh}
	}
	lastShare, err := c.fetchLastShare(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Status: StatusUnknown, Err: ctx.Err()}
		}
		slog.Warn("Could not query miner pool for stats", "url", c.URL, "error", err)
		return Result{Status: StatusUnknown, Err: err}
	}
	age := c.now().Sub(lastShare)
	st := StatusStale
	if age < c.MaxAge {
		st = StatusFresh
	}
	return Result{Status: st, LastShare: lastShare, Age: age}
}

func (c *Checker) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Checker) fetchLastShare(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return time.Time{}, err
	}
	req.Header.Set("Accept", "application/json")
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return time.Time{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return time.Time{}, fmt.Errorf("pool stats status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return time.Time{}, err
	}
	return ParseLastShare(body)
}

// ParseLastShare extracts stats.lastShare (Unix seconds, as a JSON string or integer)
// and returns it in local time.
func ParseLastShare(body []byte) (time.Time, error) {
	var doc struct {
		Stats map[string]json.RawMessage `json:"stats"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return time.Time{}, fmt.Errorf("decode pool stats: %w", err)
	}
	if doc.Stats == nil {
		return time.Time{}, ErrNoStats
	}
	raw, ok := doc.Stats["lastShare"]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return time.Time{}, ErrNoLastShare
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		// not a string; accept a bare integer
		var n json.Number
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&n); err != nil {
			return time.Time{}, fmt.Errorf("lastShare: unsupported value %s", raw)
		}
		text = n.String()
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("lastShare: %w", err)
	}
	return time.Unix(secs, 0).Local(), nil
}
