package monitor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"sitewatch/pkg/models"
	"sitewatch/pkg/objectstore"
)

const testPublicURL = "http://sitewatch.test"

// MockCapturer is a testify mock of capture.Capturer.
type MockCapturer struct {
	mock.Mock
}

func (m *MockCapturer) Capture(ctx context.Context, url string, viewport models.Viewport, delay float64) *models.CaptureResult {
	args := m.Called(ctx, url, viewport, delay)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*models.CaptureResult)
}

// staticSource serves a fixed document.
type staticSource struct {
	mu  sync.Mutex
	doc *models.SitesDocument
	err error
}

func (s *staticSource) Read(_ context.Context) (*models.SitesDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	out := *s.doc
	out.Sites = append([]models.SiteConfig(nil), s.doc.Sites...)
	return &out, nil
}

// flakyStore fails Put for selected keys.
type flakyStore struct {
	*objectstore.Memory

	mu       sync.Mutex
	failKeys map[string]error
}

func newFlakyStore() *flakyStore {
	return &flakyStore{
		Memory:   objectstore.NewMemory(testPublicURL),
		failKeys: make(map[string]error),
	}
}

func (f *flakyStore) failOn(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failKeys[key] = err
}

func (f *flakyStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	f.mu.Lock()
	err := f.failKeys[key]
	f.mu.Unlock()

	if err != nil {
		return "", err
	}
	return f.Memory.Put(ctx, key, data)
}

// recordingSleeper counts pacing pauses without sleeping.
type recordingSleeper struct {
	mu    sync.Mutex
	calls []time.Duration
	err   error
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, d)
	return r.err
}

func (r *recordingSleeper) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// page renders a white width x height PNG whose first dark pixels (row-major) are black.
func page(width, height, dark int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		c := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		if i < dark {
			c = color.NRGBA{A: 255}
		}
		img.SetNRGBA(i%width, i/width, c)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func shot(data []byte) *models.CaptureResult {
	return &models.CaptureResult{
		Screenshot: data,
		LoadTime:   120,
		StatusCode: 200,
		Errors:     []string{},
	}
}

func failedShot(errs ...string) *models.CaptureResult {
	return &models.CaptureResult{
		LoadTime:   30,
		StatusCode: 0,
		Errors:     errs,
	}
}

var errBoom = errors.New("boom")

func ptr[T any](v T) *T {
	return &v
}
