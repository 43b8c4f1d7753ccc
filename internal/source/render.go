package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"golang.org/x/sync/semaphore"
)

const (
	renderTimeout     = 45 * time.Second
	renderStableDur   = 500 * time.Millisecond
	maxConcurrentTabs = 2
)

// RodRenderer renders pages in a headless Chromium managed by Rod. The
// browser is launched on first use; call Close when done.
type RodRenderer struct {
	userAgent string
	tabs      *semaphore.Weighted

	mu      sync.Mutex
	browser *rod.Browser
}

func NewRodRenderer(userAgent string) *RodRenderer {
	return &RodRenderer{
		userAgent: userAgent,
		tabs:      semaphore.NewWeighted(maxConcurrentTabs),
	}
}

func (r *RodRenderer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	u, err := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("launch headless browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to headless browser: %w", err)
	}

	r.browser = browser
	return browser, nil
}

// Render navigates to pageURL with a desktop user agent, waits for the DOM
// to settle and returns the resulting HTML.
func (r *RodRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	if err := r.tabs.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer r.tabs.Release(1)

	browser, err := r.connect()
	if err != nil {
		return "", err
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return "", fmt.Errorf("create tab: %w", err)
	}
	defer page.Close()

	renderCtx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()
	page = page.Context(renderCtx)

	if r.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.userAgent}); err != nil {
			return "", fmt.Errorf("set user agent: %w", err)
		}
	}

	if err := page.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("navigate to %s: %w", pageURL, err)
	}
	_ = page.WaitStable(renderStableDur)

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("get HTML from %s: %w", pageURL, err)
	}
	return html, nil
}

func (r *RodRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		_ = r.browser.Close()
		r.browser = nil
	}
}
