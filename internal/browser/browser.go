// Package browser talks to the page under test over the Chrome DevTools
// protocol: viewport screenshots for the recorder and DOM/location probes
// for the evaluator.
package browser

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	// screenshots are downscaled and re-encoded lossy to bound storage
	captureScale   = 0.5
	captureQuality = 60

	captureTimeout = 3 * time.Second
)

// Client holds a DevTools connection to an already-running browser
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.SugaredLogger
}

// Connect attaches to the browser exposed at devtoolsURL
// (e.g. ws://127.0.0.1:9222). The page under test must already be open.
func Connect(ctx context.Context, devtoolsURL string, log *zap.SugaredLogger) (*Client, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, devtoolsURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Force allocation now so a bad URL fails at connect, not first capture.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("connect devtools: %w", err)
	}

	cancel := func() {
		browserCancel()
		allocCancel()
	}
	return &Client{ctx: browserCtx, cancel: cancel, log: log}, nil
}

func (c *Client) Close() {
	c.cancel()
}

// Capture renders the current viewport to a downscaled JPEG. Rendering
// failures return an error; callers record the event without a screenshot.
func (c *Client) Capture(ctx context.Context) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(c.ctx, captureTimeout)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	var buf []byte
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, visual, _, err := page.GetLayoutMetrics().Do(ctx)
		if err != nil {
			return err
		}
		clip := &page.Viewport{
			X:      visual.PageX,
			Y:      visual.PageY,
			Width:  visual.ClientWidth,
			Height: visual.ClientHeight,
			Scale:  captureScale,
		}
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(captureQuality).
			WithClip(clip).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// SelectorExists reports whether the live DOM has a match for selector
func (c *Client) SelectorExists(ctx context.Context, selector string) (bool, error) {
	runCtx, cancel := context.WithTimeout(c.ctx, captureTimeout)
	defer cancel()

	var exists bool
	expr := "!!document.querySelector(" + strconv.Quote(selector) + ")"
	if err := chromedp.Run(runCtx, chromedp.Evaluate(expr, &exists)); err != nil {
		return false, fmt.Errorf("query selector: %w", err)
	}
	return exists, nil
}

// CurrentURL returns the page's current location
func (c *Client) CurrentURL(ctx context.Context) (string, error) {
	runCtx, cancel := context.WithTimeout(c.ctx, captureTimeout)
	defer cancel()

	var url string
	if err := chromedp.Run(runCtx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}
