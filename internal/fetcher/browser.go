package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/sourcewatch/internal/config"
	"github.com/IshaanNene/sourcewatch/internal/types"
)

var errBrowserClosed = errors.New("browser fetcher closed")

// BrowserFetcher renders JavaScript-heavy sources in headless Chromium via Rod.
type BrowserFetcher struct {
	browser    *rod.Browser
	cfg        *config.Config
	logger     *slog.Logger
	proxyMgr   *ProxyManager
	pagePool   chan *rod.Page
	userAgents []string

	mu        sync.Mutex
	launchErr error
	closed    bool
}

// NewBrowserFetcher creates a browser fetcher. Chromium is launched on the
// first Fetch so configurations that never route a source through the
// browser do not pay for it.
func NewBrowserFetcher(cfg *config.Config, logger *slog.Logger) *BrowserFetcher {
	bf := &BrowserFetcher{
		cfg:        cfg,
		logger:     logger.With("component", "browser_fetcher"),
		pagePool:   make(chan *rod.Page, 2),
		userAgents: cfg.Fetcher.UserAgents,
	}
	if cfg.Proxy.Enabled && len(cfg.Proxy.URLs) > 0 {
		bf.proxyMgr = NewProxyManager(&cfg.Proxy, logger)
	}
	return bf
}

// ensureBrowser launches and connects the browser once. A failed launch is
// remembered and returned to every later caller.
func (bf *BrowserFetcher) ensureBrowser() (*rod.Browser, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if bf.closed {
		return nil, errBrowserClosed
	}
	if bf.browser != nil {
		return bf.browser, nil
	}
	if bf.launchErr != nil {
		return nil, bf.launchErr
	}

	launchURL, err := bf.launchBrowser()
	if err != nil {
		bf.launchErr = fmt.Errorf("launch browser: %w", err)
		return nil, bf.launchErr
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		bf.launchErr = fmt.Errorf("connect browser: %w", err)
		return nil, bf.launchErr
	}
	bf.browser = browser

	bf.logger.Info("browser fetcher ready",
		"headless", bf.cfg.Fetcher.Headless,
		"stealth", bf.cfg.Fetcher.Stealth,
	)
	return browser, nil
}

// launchBrowser starts a Chromium instance with appropriate flags.
func (bf *BrowserFetcher) launchBrowser() (string, error) {
	l := launcher.New().
		Headless(bf.cfg.Fetcher.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled")

	if bf.proxyMgr != nil {
		if proxyURL := bf.proxyMgr.Next(); proxyURL != nil {
			l = l.Proxy(proxyURL.String())
		}
	}

	return l.Launch()
}

// Fetch navigates to a URL and returns the rendered page HTML. The same
// acceptance rule as HTTPFetcher applies to the rendered body.
func (bf *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (*types.Response, error) {
	start := time.Now()

	browser, err := bf.ensureBrowser()
	if err != nil {
		return nil, &types.TransportError{URL: rawURL, Err: err}
	}

	page, release, err := bf.acquirePage(browser)
	if err != nil {
		return nil, &types.TransportError{URL: rawURL, Err: err, Retryable: true}
	}
	defer release()

	page = page.Context(ctx)

	if len(bf.userAgents) > 0 {
		ua := bf.userAgents[rand.Intn(len(bf.userAgents))]
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      ua,
			AcceptLanguage: bf.cfg.Fetcher.AcceptLanguage,
		}); err != nil {
			bf.logger.Warn("failed to set user agent", "error", err)
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		_, _ = page.SetExtraHeaders([]string{"Referer", Origin(u)})
	}

	timeout := bf.cfg.Retry.Timeout
	if err := page.Timeout(timeout).Navigate(rawURL); err != nil {
		return nil, &types.TransportError{URL: rawURL, Err: err, Retryable: ctx.Err() == nil}
	}

	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		bf.logger.Warn("page stability timeout, continuing", "url", rawURL, "error", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &types.TransportError{URL: rawURL, Err: err, Retryable: ctx.Err() == nil}
	}

	if len(html) <= bf.cfg.Fetcher.MinBodySize {
		return nil, &types.TransportError{
			URL:       rawURL,
			BodySize:  len(html),
			Err:       fmt.Errorf("%w: %d bytes", types.ErrBodyTooShort, len(html)),
			Retryable: true,
		}
	}

	finalURL := rawURL
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	// Rod does not expose the document status code; a rendered page is a 200.
	duration := time.Since(start)
	resp := types.NewBrowserResponse(rawURL, 200, []byte(html), finalURL, duration)

	bf.logger.Debug("browser fetch complete",
		"url", rawURL,
		"final_url", finalURL,
		"size", len(html),
		"duration", duration,
	)
	return resp, nil
}

// Close shuts down the browser and releases resources.
func (bf *BrowserFetcher) Close() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	bf.closed = true
	for {
		select {
		case page := <-bf.pagePool:
			_ = page.Close()
		default:
			if bf.browser != nil {
				return bf.browser.Close()
			}
			return nil
		}
	}
}

// Type returns the fetcher type identifier.
func (bf *BrowserFetcher) Type() string {
	return "browser"
}

// acquirePage returns a page and the function that gives it back. Stealth
// pages carry per-page patches and are never pooled.
func (bf *BrowserFetcher) acquirePage(browser *rod.Browser) (*rod.Page, func(), error) {
	if bf.cfg.Fetcher.Stealth {
		page, err := stealth.Page(browser)
		if err != nil {
			return nil, nil, fmt.Errorf("stealth page: %w", err)
		}
		return page, func() { _ = page.Close() }, nil
	}

	var page *rod.Page
	select {
	case page = <-bf.pagePool:
	default:
		p, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return nil, nil, err
		}
		page = p
	}
	return page, func() { bf.putPage(page) }, nil
}

// putPage returns a page to the pool. Pages released after Close are closed
// instead.
func (bf *BrowserFetcher) putPage(page *rod.Page) {
	_ = page.Navigate("about:blank")

	bf.mu.Lock()
	defer bf.mu.Unlock()
	if bf.closed {
		_ = page.Close()
		return
	}
	select {
	case bf.pagePool <- page:
	default:
		_ = page.Close()
	}
}
