// Package capture takes rendered screenshots of web pages. Failures are reported in the
// result, never as Go errors: a site that cannot be captured is a check outcome.
package capture

import (
	"context"
	"errors"

	"sitewatch/pkg/models"
)

// ErrEmptyScreenshot is reported when a backend answered without image bytes.
var ErrEmptyScreenshot = errors.New("screenshot is empty")

// Capturer renders url at viewport and returns a PNG screenshot. delay is the number of
// seconds to wait after load before shooting.
type Capturer interface {
	Capture(ctx context.Context, url string, viewport models.Viewport, delay float64) *models.CaptureResult
}

// Failed builds the result for a capture that produced no image.
func Failed(loadTime int64, err error) *models.CaptureResult {
	return &models.CaptureResult{
		LoadTime:   loadTime,
		StatusCode: 0,
		Errors:     []string{err.Error()},
	}
}
