package scanner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"qr-parking-backend/internal/occupancy"
	"qr-parking-backend/internal/parse"
)

// ErrRateLimited is returned when the server answers 429.
var ErrRateLimited = errors.New("rate limited by server")

// StatusError is a non-2xx answer other than 429.
type StatusError struct {
	Code    int
	Kind    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Options configure a Client.
type Options struct {
	Server   string
	Area     string
	Proxy    string
	Timeout  time.Duration
	Cooldown time.Duration
}

// Client submits scanner payloads to the parking server.
type Client struct {
	endpoint string
	http     *http.Client
	recent   *cache.Cache
	cooldown time.Duration
	logger   *zap.Logger
}

// NewClient creates a client. An invalid proxy URL is logged and ignored.
func NewClient(opts Options, logger *zap.Logger) *Client {
	var transport http.RoundTripper = &http.Transport{}
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			logger.Warn("invalid proxy URL, connecting directly", zap.String("proxy", opts.Proxy), zap.Error(err))
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		endpoint: scanURL(opts.Server, opts.Area),
		http:     &http.Client{Transport: transport, Timeout: timeout},
		recent:   cache.New(opts.Cooldown, 4*opts.Cooldown),
		cooldown: opts.Cooldown,
		logger:   logger,
	}
}

func scanURL(server, area string) string {
	base := strings.TrimRight(server, "/")
	if area == "" {
		return base + "/api/scan"
	}
	return base + "/api/areas/" + url.PathEscape(area) + "/scan"
}

// Send posts one payload and returns the server's outcome.
func (c *Client) Send(ctx context.Context, payload string) (*occupancy.Result, error) {
	body, err := json.Marshal(map[string]string{"qr_text": payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scan: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	c.logger.Debug("submitting scan", zap.String("url", c.endpoint), zap.String("request_id", requestID))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var detail struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.Unmarshal(raw, &detail)
		msg := detail.Message
		if msg == "" {
			msg = detail.Error
		}
		return nil, &StatusError{Code: resp.StatusCode, Kind: detail.Kind, Message: msg}
	}

	var res occupancy.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scan result: %w", err)
	}
	return &res, nil
}

// Watch reads scanner lines from r until EOF or ctx ends, submitting each
// code once per cooldown and printing the outcome to out. Failed submissions
// are reported and do not stop the loop.
func (c *Client) Watch(ctx context.Context, r io.Reader, out io.Writer) error {
	lines := bufio.NewScanner(r)
	for lines.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(lines.Text())
		if line == "" || parse.IsContinuation(line) {
			continue
		}
		plate := parse.ExtractPlate(line)
		if plate == "" {
			continue
		}
		if c.cooldown > 0 {
			if err := c.recent.Add(plate, struct{}{}, cache.DefaultExpiration); err != nil {
				c.logger.Debug("skipping repeated read", zap.String("plate", plate))
				continue
			}
		}

		res, err := c.Send(ctx, line)
		var statusErr *StatusError
		switch {
		case err == nil:
			fmt.Fprintln(out, Describe(res))
		case errors.Is(err, ErrRateLimited):
			c.logger.Warn("server is rate limiting this scanner", zap.String("plate", plate))
			fmt.Fprintf(out, "RATE LIMITED %s, scan again shortly\n", plate)
		case errors.As(err, &statusErr):
			c.logger.Error("scan rejected", zap.String("plate", plate), zap.Int("status", statusErr.Code), zap.String("kind", statusErr.Kind))
			fmt.Fprintf(out, "ERROR %s: %s\n", plate, statusErr.Message)
		default:
			c.logger.Error("scan failed", zap.String("plate", plate), zap.Error(err))
			fmt.Fprintf(out, "ERROR %s: server unreachable\n", plate)
		}
	}
	return lines.Err()
}

// Describe renders a scan outcome as one line for the operator.
func Describe(res *occupancy.Result) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(string(res.Status)))
	if res.Plate != "" {
		b.WriteString(" " + res.Plate)
	}
	if res.AreaName != "" {
		b.WriteString(" @ " + res.AreaName)
	} else if res.Area != "" {
		b.WriteString(" @ " + res.Area)
	}
	if res.Occupancy != nil {
		fmt.Fprintf(&b, " (%d parked)", *res.Occupancy)
	}
	switch {
	case res.Message != "":
		b.WriteString(": " + res.Message)
	case res.Note != "":
		b.WriteString(": " + res.Note)
	}
	return b.String()
}
