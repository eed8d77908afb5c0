package injuries

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

const (
	// BrowserUserAgent for rendered page requests
	BrowserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// MinRequestInterval to prevent rate limiting
	MinRequestInterval = 2 * time.Second

	renderTimeout = 30 * time.Second
)

// Renderer returns the HTML of a page after its scripts have run.
type Renderer interface {
	Render(ctx context.Context, url, waitSelector string) (string, error)
}

// Browser renders pages in headless Chrome with request pacing
type Browser struct {
	limiter *rate.Limiter

	// Chromedp context for headless browser
	allocCtx context.Context
	cancel   context.CancelFunc
}

// NewBrowser starts a headless Chrome allocator. Chrome itself is launched
// lazily on the first Render.
func NewBrowser() *Browser {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(BrowserUserAgent),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		limiter:  rate.NewLimiter(rate.Every(MinRequestInterval), 1),
		allocCtx: allocCtx,
		cancel:   cancel,
	}
}

// Close releases resources
func (b *Browser) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}

// Render navigates to url, waits for waitSelector (or body) and returns the page HTML.
func (b *Browser) Render(ctx context.Context, url, waitSelector string) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}
	if waitSelector == "" {
		waitSelector = "body"
	}

	browserCtx, cancel := chromedp.NewContext(b.allocCtx)
	defer cancel()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, renderTimeout)
	defer cancelTimeout()

	// stop the tab when the caller gives up
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var htmlContent string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(waitSelector, chromedp.ByQuery),
		chromedp.Sleep(1*time.Second), // Allow JS to render
		chromedp.OuterHTML(`html`, &htmlContent, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp %s: %w", url, err)
	}
	if htmlContent == "" {
		return "", fmt.Errorf("empty HTML content returned for %s", url)
	}
	return htmlContent, nil
}
