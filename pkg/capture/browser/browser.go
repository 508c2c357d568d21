// Package browser captures screenshots with a local or remote headless Chrome driven
// through rod. Pages are opened with stealth evasions so bot walls render like they do
// for visitors.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"sitewatch/pkg/capture"
	"sitewatch/pkg/log"
	"sitewatch/pkg/models"
)

const defaultNavigationTimeout = 30 * time.Second

// Config configures the Chrome backend.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome. Empty launches
	// a local headless Chrome.
	RemoteURL string
	// NavigationTimeout bounds navigation plus load. Default 30s.
	NavigationTimeout time.Duration
	// DisableStealth opens plain pages.
	DisableStealth bool
}

// Capturer implements capture.Capturer on top of a shared browser. Pages are created
// per capture and closed afterwards.
type Capturer struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// New returns a Capturer. Chrome starts lazily on the first capture.
func New(cfg Config) *Capturer {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	return &Capturer{cfg: cfg}
}

// Close shuts Chrome down.
func (c *Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return c.cleanup()
}

func (c *Capturer) ensureBrowser() (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("browser: capturer is closed")
	}
	if c.browser != nil {
		return c.browser, nil
	}

	wsURL := c.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		c.lnch = l
		log.Info().Str("control_url", wsURL).Msg("Launched local Chrome")
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		c.cleanupLauncher()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	c.browser = b
	return b, nil
}

// reset drops a browser that stopped answering so the next capture relaunches it.
func (c *Capturer) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.cleanup(); err != nil {
		log.Warn().Err(err).Msg("Browser cleanup failed")
	}
}

func (c *Capturer) cleanup() error {
	var err error
	if c.browser != nil {
		err = c.browser.Close()
		c.browser = nil
	}
	c.cleanupLauncher()
	return err
}

func (c *Capturer) cleanupLauncher() {
	if c.lnch != nil {
		c.lnch.Cleanup()
		c.lnch = nil
	}
}

func (c *Capturer) openPage(b *rod.Browser) (*rod.Page, error) {
	if c.cfg.DisableStealth {
		return b.Page(proto.TargetCreateTarget{})
	}
	return stealth.Page(b)
}

// Capture navigates to pageURL, waits for load plus delay seconds and shoots the
// viewport.
func (c *Capturer) Capture(ctx context.Context, pageURL string, viewport models.Viewport, delay float64) *models.CaptureResult {
	start := time.Now()
	elapsed := func() int64 { return time.Since(start).Milliseconds() }

	b, err := c.ensureBrowser()
	if err != nil {
		return capture.Failed(elapsed(), err)
	}

	page, err := c.openPage(b)
	if err != nil {
		c.reset()
		return capture.Failed(elapsed(), fmt.Errorf("browser: create tab: %w", err))
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Msg("Failed to close tab")
		}
	}()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             viewport.Width,
		Height:            viewport.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return capture.Failed(elapsed(), fmt.Errorf("browser: set viewport: %w", err))
	}

	events := newPageEvents()
	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	go page.Context(listenCtx).EachEvent(
		events.onConsole,
		events.onException,
		events.onResponse,
	)()

	navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavigationTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return capture.Failed(elapsed(), fmt.Errorf("browser: navigate %s: %w", pageURL, err))
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn().Err(err).Str("url", pageURL).Msg("Page load did not finish")
	}
	loadTime := elapsed()

	if err := sleep(ctx, time.Duration(delay*float64(time.Second))); err != nil {
		return capture.Failed(elapsed(), err)
	}

	screenshot, err := page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return capture.Failed(elapsed(), fmt.Errorf("browser: screenshot: %w", err))
	}
	if len(screenshot) == 0 {
		return capture.Failed(elapsed(), capture.ErrEmptyScreenshot)
	}

	return events.result(pageURL, screenshot, loadTime)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pageEvents collects the document status and console errors of one page.
type pageEvents struct {
	mu         sync.Mutex
	statusCode int
	errors     []string
}

func newPageEvents() *pageEvents {
	return &pageEvents{errors: []string{}}
}

func (p *pageEvents) onConsole(e *proto.RuntimeConsoleAPICalled) {
	if e.Type != proto.RuntimeConsoleAPICalledTypeError {
		return
	}

	parts := make([]string, 0, len(e.Args))
	for _, arg := range e.Args {
		parts = append(parts, remoteObjectText(arg))
	}
	p.add(strings.Join(parts, " "))
}

func (p *pageEvents) onException(e *proto.RuntimeExceptionThrown) {
	if e.ExceptionDetails == nil {
		return
	}
	text := e.ExceptionDetails.Text
	if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
		text = e.ExceptionDetails.Exception.Description
	}
	p.add(text)
}

func (p *pageEvents) onResponse(e *proto.NetworkResponseReceived) {
	if e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.statusCode == 0 {
		p.statusCode = e.Response.Status
	}
}

func (p *pageEvents) add(text string) {
	if text == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, text)
}

// snapshot returns the main document status (0 when it was never observed) and a
// copy of the console errors.
func (p *pageEvents) snapshot() (int, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.statusCode, append([]string{}, p.errors...)
}

// result shapes a successful capture. A screenshot counts as a 200 with no errors,
// whatever the document answered: the page status and console errors go to the log
// only, the comparison decides whether the page changed.
func (p *pageEvents) result(pageURL string, screenshot []byte, loadTime int64) *models.CaptureResult {
	documentStatus, consoleErrors := p.snapshot()

	event := log.Debug()
	if documentStatus >= http.StatusBadRequest || len(consoleErrors) > 0 {
		event = log.Warn()
	}
	event.Str("url", pageURL).
		Int("document_status", documentStatus).
		Strs("console_errors", consoleErrors).
		Msg("Page diagnostics")

	return &models.CaptureResult{
		Screenshot: screenshot,
		LoadTime:   loadTime,
		StatusCode: http.StatusOK,
		Errors:     []string{},
	}
}

func remoteObjectText(obj *proto.RuntimeRemoteObject) string {
	if obj == nil {
		return ""
	}
	if obj.Description != "" {
		return obj.Description
	}
	if !obj.Value.Nil() {
		return obj.Value.String()
	}
	return string(obj.Type)
}
