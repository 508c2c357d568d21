package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-cleanhttp"

	"sitewatch/pkg/log"
	"sitewatch/pkg/models"
)

const (
	// DefaultAPIEndpoint is the ScreenshotOne take endpoint.
	DefaultAPIEndpoint = "https://api.screenshotone.com/take"
	// DefaultTimeout bounds a single capture request.
	DefaultTimeout = 60 * time.Second

	// renderTimeoutSeconds is the page render budget passed to the API.
	renderTimeoutSeconds = 30
	// maxScreenshotSize bounds the response body.
	maxScreenshotSize = 64 << 20
	// maxErrorBody bounds how much of an error response ends up in the reason.
	maxErrorBody = 4 << 10
)

// APIClient captures screenshots through a ScreenshotOne compatible HTTP API.
type APIClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
	now      func() time.Time
}

// NewAPIClient returns a client for endpoint authenticating with apiKey. A zero
// timeout selects DefaultTimeout.
func NewAPIClient(endpoint, apiKey string, timeout time.Duration) *APIClient {
	if endpoint == "" {
		endpoint = DefaultAPIEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout

	return &APIClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   client,
		now:      time.Now,
	}
}

// RequestURL builds the API request for a capture.
func (c *APIClient) RequestURL(pageURL string, viewport models.Viewport, delay float64) string {
	params := url.Values{}
	params.Set("access_key", c.apiKey)
	params.Set("url", pageURL)
	params.Set("viewport_width", strconv.Itoa(viewport.Width))
	params.Set("viewport_height", strconv.Itoa(viewport.Height))
	params.Set("format", "png")
	params.Set("block_ads", "true")
	params.Set("block_cookie_banners", "true")
	params.Set("delay", strconv.FormatFloat(delay, 'f', -1, 64))
	params.Set("timeout", strconv.Itoa(renderTimeoutSeconds))

	return c.endpoint + "?" + params.Encode()
}

// Capture requests a screenshot. LoadTime is the wall time of the API call.
func (c *APIClient) Capture(ctx context.Context, pageURL string, viewport models.Viewport, delay float64) *models.CaptureResult {
	start := c.now()
	elapsed := func() int64 { return c.now().Sub(start).Milliseconds() }

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RequestURL(pageURL, viewport, delay), nil)
	if err != nil {
		return Failed(elapsed(), err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Warn().Err(redact(err)).Str("url", pageURL).Msg("Screenshot request failed")
		return Failed(elapsed(), redact(err))
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close screenshot response body")
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Failed(elapsed(), fmt.Errorf("Screenshot API error: %d - %s", resp.StatusCode, body)) //nolint:stylecheck,revive // message shown to users as is
	}

	screenshot, err := io.ReadAll(io.LimitReader(resp.Body, maxScreenshotSize))
	if err != nil {
		return Failed(elapsed(), err)
	}
	if len(screenshot) == 0 {
		return Failed(elapsed(), ErrEmptyScreenshot)
	}

	loadTime := elapsed()
	log.Debug().
		Str("url", pageURL).
		Int64("load_time_ms", loadTime).
		Str("size", humanize.Bytes(uint64(len(screenshot)))).
		Msg("Screenshot captured")

	return &models.CaptureResult{
		Screenshot: screenshot,
		LoadTime:   loadTime,
		StatusCode: http.StatusOK,
		Errors:     []string{},
	}
}

// redact drops the request URL, which carries the access key, from transport errors.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s request failed: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
