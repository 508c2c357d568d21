package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"sitewatch/pkg/capture"
	"sitewatch/pkg/config"
	"sitewatch/pkg/log"
	"sitewatch/pkg/models"
	"sitewatch/pkg/objectstore"
	"sitewatch/pkg/status"
)

// DefaultPacing is the pause between two sites of a batch.
const DefaultPacing = time.Second

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// defaultEnsurer is implemented by sources that can create an example document.
type defaultEnsurer interface {
	EnsureDefault() (bool, error)
}

// Option customises a Service.
type Option func(*Service)

// WithPacing sets the pause between sites. Zero disables pacing.
func WithPacing(d time.Duration) Option {
	return func(s *Service) {
		s.pacing = d
	}
}

// WithSleeper replaces the pacing sleeper.
func WithSleeper(sleep Sleeper) Option {
	return func(s *Service) {
		s.sleep = sleep
	}
}

// WithClock replaces the time source used for check timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.checker.now = now
	}
}

// Service is the monitor facade used by the HTTP API and the scheduler.
type Service struct {
	sites    config.Source
	objects  objectstore.Store
	statuses *status.Store
	checker  *Checker

	pacing time.Duration
	sleep  Sleeper

	running atomic.Bool

	// Detached batches run under ctx and are awaited by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService wires the monitor.
func NewService(sites config.Source, capturer capture.Capturer, objects objectstore.Store, opts ...Option) *Service {
	statuses := status.New(objects)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		sites:    sites,
		objects:  objects,
		statuses: statuses,
		checker:  NewChecker(sites, capturer, objects, statuses),
		pacing:   DefaultPacing,
		sleep:    sleepContext,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize loads persisted statuses and creates the example sites document when the
// source supports it and none exists.
func (s *Service) Initialize(ctx context.Context) error {
	s.statuses.Load(ctx)

	if ensurer, ok := s.sites.(defaultEnsurer); ok {
		created, err := ensurer.EnsureDefault()
		if err != nil {
			return err
		}
		if created {
			log.Info().Msg("Created example sites document")
		}
	}

	return nil
}

// Shutdown cancels detached batches and waits for them to stop.
func (s *Service) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// Running reports whether a batch is in flight.
func (s *Service) Running() bool {
	return s.running.Load()
}

// CheckAll checks every configured site in document order and returns one record per
// site. It fails with ErrCheckInProgress when another batch holds the run token.
func (s *Service) CheckAll(ctx context.Context) ([]models.SiteStatus, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrCheckInProgress
	}
	defer s.running.Store(false)

	return s.runBatch(ctx)
}

// TriggerCheckAll starts a batch in the background and returns immediately.
func (s *Service) TriggerCheckAll() error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrCheckInProgress
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		if _, err := s.runBatch(s.ctx); err != nil {
			log.Error().Err(err).Msg("Background check failed")
		}
	}()

	return nil
}

func (s *Service) runBatch(ctx context.Context) ([]models.SiteStatus, error) {
	doc, err := s.sites.Read(ctx)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	start := time.Now()
	log.Info().Str("run_id", runID).Int("sites", len(doc.Sites)).Msg("Starting check of all sites")

	results := make([]models.SiteStatus, 0, len(doc.Sites))
	for i, site := range doc.Sites {
		record, err := s.checker.check(ctx, doc, site)
		if err != nil {
			log.Error().Err(err).Str("run_id", runID).Str("site_id", site.ID).Msg("Site check failed")
			record = models.SiteStatus{
				ID:            site.ID,
				Name:          site.Name,
				URL:           site.URL,
				Status:        models.StatusError,
				Reason:        err.Error(),
				LastCheck:     s.checker.timestamp(),
				ConsoleErrors: []string{},
			}
		}
		results = append(results, record)

		if i < len(doc.Sites)-1 && s.pacing > 0 {
			if err := s.sleep(ctx, s.pacing); err != nil {
				log.Warn().Err(err).Str("run_id", runID).Msg("Check run interrupted")
				return results, err
			}
		}
	}

	log.Info().
		Str("run_id", runID).
		Int("sites", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Finished check of all sites")

	return results, nil
}

// CheckSite checks one site outside of any batch.
func (s *Service) CheckSite(ctx context.Context, id string) (models.SiteStatus, error) {
	return s.checker.CheckSite(ctx, id)
}

// Statuses lists every configured site in document order merged with its last record.
// Identity fields come from the current configuration.
func (s *Service) Statuses(ctx context.Context) ([]models.SiteStatus, error) {
	doc, err := s.sites.Read(ctx)
	if err != nil {
		return nil, err
	}

	records := s.statuses.All()
	out := make([]models.SiteStatus, 0, len(doc.Sites))
	for _, site := range doc.Sites {
		record := records[site.ID]
		record.ID = site.ID
		record.Name = site.Name
		record.URL = site.URL
		out = append(out, record)
	}
	return out, nil
}

// ApproveBaseline accepts the current screenshot of id as its new baseline and pins it
// under baseline/<id>. A record without a current screenshot is returned unchanged.
func (s *Service) ApproveBaseline(ctx context.Context, id string) (models.SiteStatus, error) {
	record, ok := s.statuses.Get(id)
	if !ok {
		return models.SiteStatus{}, &status.StatusNotFoundError{ID: id}
	}

	if record.CurrentScreenshot == "" {
		log.Info().Str("site_id", id).Msg("Nothing to approve")
		return record, nil
	}

	current, err := s.objects.Get(ctx, record.CurrentScreenshot)
	if err != nil {
		return models.SiteStatus{}, fmt.Errorf("read current screenshot for %s: %w", id, err)
	}
	baselineRef, err := s.objects.Put(ctx, baselinePrefix+id, current)
	if err != nil {
		return models.SiteStatus{}, fmt.Errorf("store baseline for %s: %w", id, err)
	}

	zero := 0.0
	record.BaselineScreenshot = baselineRef
	record.Status = models.StatusOK
	record.DiffPercent = &zero
	record.Reason = models.ReasonApproved
	record.DiffScreenshot = ""

	if err := s.statuses.Upsert(ctx, record); err != nil {
		return models.SiteStatus{}, err
	}

	log.Info().Str("site_id", id).Str("baseline", record.BaselineScreenshot).Msg("Baseline approved")
	return record, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
