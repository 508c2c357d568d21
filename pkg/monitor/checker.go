// Package monitor runs site checks: capture, compare against the accepted baseline and
// record the outcome. Checker handles one site, Service orchestrates batches and
// approvals on top of it.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sitewatch/pkg/capture"
	"sitewatch/pkg/config"
	"sitewatch/pkg/imagediff"
	"sitewatch/pkg/log"
	"sitewatch/pkg/models"
	"sitewatch/pkg/objectstore"
	"sitewatch/pkg/status"
)

// Object key prefixes for screenshots. The accepted baseline keeps a key of its own
// so that overwriting current/<site> never drops it.
const (
	baselinePrefix = "baseline/"
	currentPrefix  = "current/"
	diffPrefix     = "diff/"
)

// timestampLayout is ISO-8601 in UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Checker executes a single site check.
type Checker struct {
	sites    config.Source
	capturer capture.Capturer
	objects  objectstore.Store
	statuses *status.Store
	engine   *imagediff.Engine
	now      func() time.Time
}

// NewChecker wires a Checker with the default comparison options.
func NewChecker(sites config.Source, capturer capture.Capturer, objects objectstore.Store, statuses *status.Store) *Checker {
	return &Checker{
		sites:    sites,
		capturer: capturer,
		objects:  objects,
		statuses: statuses,
		engine:   imagediff.New(imagediff.DefaultOptions()),
		now:      time.Now,
	}
}

// CheckSite captures site id, compares it to its baseline and stores the new record.
// Capture and comparison failures end up in the record; a missing site, a storage
// failure and a persistence failure are returned as errors.
func (c *Checker) CheckSite(ctx context.Context, id string) (models.SiteStatus, error) {
	doc, site, err := config.Find(ctx, c.sites, id)
	if err != nil {
		return models.SiteStatus{}, err
	}

	return c.check(ctx, doc, site)
}

func (c *Checker) check(ctx context.Context, doc *models.SitesDocument, site models.SiteConfig) (models.SiteStatus, error) {
	settings := doc.Settings(site)
	prior, _ := c.statuses.Get(site.ID)

	log.Info().Str("site_id", site.ID).Str("url", site.URL).Msg("Checking site")

	result := c.capturer.Capture(ctx, site.URL, settings.Viewport, settings.Delay)
	if result == nil {
		result = capture.Failed(0, capture.ErrEmptyScreenshot)
	}
	record := c.baseRecord(site, result)

	if !result.Succeeded() {
		record.Status = models.StatusError
		record.Reason = failureReason(result.Errors)
		record.BaselineScreenshot = prior.BaselineScreenshot
		return c.save(ctx, record)
	}

	if prior.BaselineScreenshot != "" {
		c.pinBaseline(ctx, site.ID, prior.BaselineScreenshot)
	}

	currentRef, err := c.objects.Put(ctx, currentPrefix+site.ID, result.Screenshot)
	if err != nil {
		log.Error().Err(err).Str("site_id", site.ID).Msg("Failed to store screenshot")
		return models.SiteStatus{}, fmt.Errorf("store screenshot for %s: %w", site.ID, err)
	}
	record.CurrentScreenshot = currentRef

	if prior.BaselineScreenshot == "" {
		baselineRef, err := c.objects.Put(ctx, baselinePrefix+site.ID, result.Screenshot)
		if err != nil {
			log.Error().Err(err).Str("site_id", site.ID).Msg("Failed to store baseline")
			return models.SiteStatus{}, fmt.Errorf("store baseline for %s: %w", site.ID, err)
		}
		record.Status = models.StatusNew
		record.Reason = models.ReasonInitialBaseline
		record.BaselineScreenshot = baselineRef
		return c.save(ctx, record)
	}

	record.BaselineScreenshot = prior.BaselineScreenshot
	c.compare(ctx, &record, result.Screenshot, settings.Threshold)

	return c.save(ctx, record)
}

// pinBaseline makes sure baseline/<id> holds the content behind ref. Records written
// before baselines had a key of their own only reach their baseline through
// current/<id>, which the next capture overwrites.
func (c *Checker) pinBaseline(ctx context.Context, id, ref string) {
	if located, err := c.objects.Locate(ctx, baselinePrefix+id); err == nil && located == ref {
		return
	}

	data, err := c.objects.Get(ctx, ref)
	if err != nil {
		return
	}
	if _, err := c.objects.Put(ctx, baselinePrefix+id, data); err != nil {
		log.Warn().Err(err).Str("site_id", id).Msg("Failed to pin baseline")
		return
	}
	log.Debug().Str("site_id", id).Str("baseline", ref).Msg("Baseline pinned")
}

// compare diffs the current screenshot against the stored baseline and fills in the
// verdict. The baseline reference is never touched.
func (c *Checker) compare(ctx context.Context, record *models.SiteStatus, current []byte, threshold float64) {
	baseline, err := c.objects.Get(ctx, record.BaselineScreenshot)
	if err != nil {
		record.Status = models.StatusError
		record.Reason = err.Error()
		return
	}

	diff, err := c.engine.Compare(baseline, current)
	if err != nil {
		record.Status = models.StatusError
		record.Reason = err.Error()
		return
	}

	record.DiffPercent = &diff.DiffPercent
	record.Threshold = &threshold

	switch {
	case diff.SizeMismatch:
		record.Status = models.StatusChanged
		record.Reason = models.ReasonSizeChanged
	case diff.DiffPercent > threshold:
		record.Status = models.StatusChanged
		record.Reason = fmt.Sprintf("Visual difference: %.1f%%", diff.DiffPercent*100)
		if diff.DiffImage != nil {
			ref, err := c.objects.Put(ctx, diffPrefix+record.ID, diff.DiffImage)
			if err != nil {
				log.Warn().Err(err).Str("site_id", record.ID).Msg("Failed to store diff image")
			} else {
				record.DiffScreenshot = ref
			}
		}
	default:
		record.Status = models.StatusOK
	}
}

func (c *Checker) baseRecord(site models.SiteConfig, result *models.CaptureResult) models.SiteStatus {
	loadTime := result.LoadTime
	statusCode := result.StatusCode
	consoleErrors := result.Errors
	if consoleErrors == nil {
		consoleErrors = []string{}
	}

	return models.SiteStatus{
		ID:            site.ID,
		Name:          site.Name,
		URL:           site.URL,
		LastCheck:     c.timestamp(),
		LoadTime:      &loadTime,
		StatusCode:    &statusCode,
		ConsoleErrors: consoleErrors,
	}
}

func (c *Checker) save(ctx context.Context, record models.SiteStatus) (models.SiteStatus, error) {
	if err := c.statuses.Upsert(ctx, record); err != nil {
		return models.SiteStatus{}, err
	}

	event := log.Info()
	if record.Status == models.StatusError {
		event = log.Warn()
	}
	event.Str("site_id", record.ID).
		Str("status", string(record.Status)).
		Str("reason", record.Reason).
		Msg("Site checked")

	return record, nil
}

func (c *Checker) timestamp() string {
	return c.now().UTC().Format(timestampLayout)
}

func failureReason(errs []string) string {
	if len(errs) == 0 {
		return models.ReasonCaptureFailed
	}
	return strings.Join(errs, ", ")
}
