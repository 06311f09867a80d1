package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/pltanton/insightloop/internal/research"
)

// BrowserOptions configures the headless Chromium fetcher.
type BrowserOptions struct {
	Options
	// Bin is the Chromium binary. Empty lets rod locate or download one.
	Bin string
	// ControlURL connects to an already running browser instead of launching.
	ControlURL string
	// Stealth opens tabs with automation fingerprints masked.
	Stealth bool
}

// BrowserFetcher renders pages in headless Chromium so script-built content
// is present in the returned markup. The browser starts on first use.
type BrowserFetcher struct {
	opts BrowserOptions

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

func NewBrowserFetcher(opts BrowserOptions) *BrowserFetcher {
	opts.Options.defaults()
	return &BrowserFetcher{opts: opts}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (out research.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = failure(url, fmt.Errorf("panic: %v", r))
		}
	}()

	if f.opts.SSRFProtection {
		if err := ValidateURL(ctx, url); err != nil {
			return failure(url, err)
		}
	}

	html, err := f.render(ctx, url)
	if err != nil {
		f.opts.Logger.Warn("browser fetch failed", "url", url, "error", err)
		return failure(url, err)
	}
	return research.Ok(html)
}

func (f *BrowserFetcher) render(ctx context.Context, url string) (string, error) {
	b, err := f.connect()
	if err != nil {
		return "", err
	}

	var page *rod.Page
	if f.opts.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return "", fmt.Errorf("open tab: %w", err)
	}
	defer page.Close()

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: f.opts.UserAgent}); err != nil {
		f.opts.Logger.Debug("set user agent failed", "error", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()
	p := page.Context(navCtx)

	// Subscribe before navigating so the document response is not missed.
	status := make(chan int, 1)
	wait := p.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		code, ok := documentStatus(e, page.FrameID)
		if ok {
			status <- code
		}
		return ok
	})
	go wait()

	if err := p.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		f.opts.Logger.Debug("wait load timed out", "url", url, "error", err)
	}

	select {
	case code := <-status:
		if err := statusError(code, url); err != nil {
			return "", err
		}
	case <-time.After(statusGrace):
		f.opts.Logger.Debug("no document response seen", "url", url)
	}

	html, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("read dom: %w", err)
	}
	return truncateUTF8(html, f.opts.MaxBytes), nil
}

// statusGrace bounds the wait for the main document response event after load.
const statusGrace = time.Second

// documentStatus extracts the HTTP status of the main frame's document
// response. Subresources and iframes are ignored.
func documentStatus(e *proto.NetworkResponseReceived, frame proto.PageFrameID) (int, bool) {
	if e == nil || e.Response == nil || e.Type != proto.NetworkResourceTypeDocument || e.FrameID != frame {
		return 0, false
	}
	return e.Response.Status, true
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int64) string {
	if int64(len(s)) <= n {
		return s
	}
	cut := int(n)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (f *BrowserFetcher) connect() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	controlURL := f.opts.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(true).Set("disable-blink-features", "AutomationControlled")
		if f.opts.Bin != "" {
			l = l.Bin(f.opts.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
		f.lnch = l
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if f.lnch != nil {
			f.lnch.Cleanup()
			f.lnch = nil
		}
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	f.browser = b
	f.opts.Logger.Info("browser started", "control_url", controlURL)
	return f.browser, nil
}

// Close shuts the browser down if it was started.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	if f.browser != nil {
		err = f.browser.Close()
		f.browser = nil
	}
	if f.lnch != nil {
		f.lnch.Cleanup()
		f.lnch = nil
	}
	return err
}
