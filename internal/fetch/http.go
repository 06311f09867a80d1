package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/pltanton/insightloop/internal/research"
)

const (
	DefaultTimeout  = 8 * time.Second
	DefaultMaxBytes = 5 << 20

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Options configures both fetcher kinds.
type Options struct {
	Timeout        time.Duration
	MaxBytes       int64
	UserAgent      string
	SSRFProtection bool
	// Client overrides the HTTP client. Timeout is ignored when set.
	Client *http.Client
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	o.Logger = orDefault(o.Logger)
}

// HTTPFetcher issues one GET per URL with a browser-like header set.
type HTTPFetcher struct {
	opts   Options
	client *http.Client
}

func NewHTTPFetcher(opts Options) *HTTPFetcher {
	opts.defaults()
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPFetcher{opts: opts, client: client}
}

// Fetch returns the decoded body of url, or a failed outcome for transport
// errors, non-2xx statuses and blocked targets.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (out research.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = failure(url, fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	body, err := f.get(ctx, url)
	if err != nil {
		f.opts.Logger.Warn("fetch failed", "url", url, "error", err)
		return failure(url, err)
	}
	f.opts.Logger.Debug("fetched page", "url", url, "bytes", len(body), "duration", time.Since(start))
	return research.Ok(body)
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (string, error) {
	if f.opts.SSRFProtection {
		if err := ValidateURL(ctx, url); err != nil {
			return "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	setBrowserHeaders(req.Header, f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode, url); err != nil {
		return "", err
	}

	body, err := decodeBody(resp)
	if err != nil {
		return "", err
	}
	defer body.Close()

	utf8, err := charset.NewReader(io.LimitReader(body, f.opts.MaxBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("decode charset: %w", err)
	}
	data, err := io.ReadAll(utf8)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(data), nil
}

// statusError rejects non-2xx document statuses.
func statusError(code int, url string) error {
	if code >= 200 && code <= 299 {
		return nil
	}
	return fmt.Errorf("%d %s for url: %s", code, http.StatusText(code), url)
}

func setBrowserHeaders(h http.Header, userAgent string) {
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("Accept-Encoding", "gzip, deflate")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
}

// decodeBody undoes Content-Encoding. Setting Accept-Encoding by hand turns
// off the transport's transparent gzip handling.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil
	case "deflate":
		return flate.NewReader(resp.Body), nil
	default:
		return io.NopCloser(resp.Body), nil
	}
}
