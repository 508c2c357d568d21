package browser

import (
	"bytes"
	"context"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/suite"
	"github.com/ysmood/gson"

	"sitewatch/pkg/capture"
	"sitewatch/pkg/models"
)

type BrowserTestSuite struct {
	suite.Suite
}

func (s *BrowserTestSuite) TestNewAppliesDefaults() {
	c := New(Config{})
	s.Equal(defaultNavigationTimeout, c.cfg.NavigationTimeout)

	c = New(Config{NavigationTimeout: time.Second})
	s.Equal(time.Second, c.cfg.NavigationTimeout)
}

func (s *BrowserTestSuite) TestClosedCapturerFails() {
	c := New(Config{})
	s.Require().NoError(c.Close())

	result := c.Capture(context.Background(), "https://example.com", models.Viewport{Width: 10, Height: 10}, 0)
	s.False(result.Succeeded())
	s.Equal(0, result.StatusCode)
	s.Require().Len(result.Errors, 1)
	s.Contains(result.Errors[0], "closed")
}

func (s *BrowserTestSuite) TestPageEventsStatus() {
	events := newPageEvents()

	code, errs := events.snapshot()
	s.Equal(0, code)
	s.NotNil(errs)
	s.Empty(errs)

	events.onResponse(&proto.NetworkResponseReceived{
		Type:     proto.NetworkResourceTypeImage,
		Response: &proto.NetworkResponse{Status: 500},
	})
	events.onResponse(&proto.NetworkResponseReceived{
		Type:     proto.NetworkResourceTypeDocument,
		Response: &proto.NetworkResponse{Status: 404},
	})
	events.onResponse(&proto.NetworkResponseReceived{
		Type:     proto.NetworkResourceTypeDocument,
		Response: &proto.NetworkResponse{Status: 200},
	})

	code, _ = events.snapshot()
	s.Equal(404, code)
}

func (s *BrowserTestSuite) TestPageEventsConsole() {
	events := newPageEvents()

	events.onConsole(&proto.RuntimeConsoleAPICalled{
		Type: proto.RuntimeConsoleAPICalledTypeLog,
		Args: []*proto.RuntimeRemoteObject{{Value: gson.New("ignored")}},
	})
	events.onConsole(&proto.RuntimeConsoleAPICalled{
		Type: proto.RuntimeConsoleAPICalledTypeError,
		Args: []*proto.RuntimeRemoteObject{
			{Value: gson.New("failed to load")},
			{Description: "TypeError: x is undefined"},
		},
	})
	events.onException(&proto.RuntimeExceptionThrown{
		ExceptionDetails: &proto.RuntimeExceptionDetails{
			Text:      "Uncaught",
			Exception: &proto.RuntimeRemoteObject{Description: "ReferenceError: foo is not defined"},
		},
	})
	events.onException(&proto.RuntimeExceptionThrown{})

	_, errs := events.snapshot()
	s.Equal([]string{
		"failed to load TypeError: x is undefined",
		"ReferenceError: foo is not defined",
	}, errs)

	errs[0] = "mutated"
	_, again := events.snapshot()
	s.Equal("failed to load TypeError: x is undefined", again[0])
}

func (s *BrowserTestSuite) TestResultIgnoresPageDiagnostics() {
	events := newPageEvents()
	events.onResponse(&proto.NetworkResponseReceived{
		Type:     proto.NetworkResourceTypeDocument,
		Response: &proto.NetworkResponse{Status: 404},
	})
	events.onConsole(&proto.RuntimeConsoleAPICalled{
		Type: proto.RuntimeConsoleAPICalledTypeError,
		Args: []*proto.RuntimeRemoteObject{{Value: gson.New("boom")}},
	})

	result := events.result("https://example.com", []byte("png"), 42)
	s.True(result.Succeeded())
	s.Equal([]byte("png"), result.Screenshot)
	s.Equal(int64(42), result.LoadTime)
	s.Equal(http.StatusOK, result.StatusCode)
	s.NotNil(result.Errors)
	s.Empty(result.Errors)
}

func (s *BrowserTestSuite) TestResultWithoutDocumentResponse() {
	result := newPageEvents().result("https://example.com", []byte("png"), 1)
	s.Equal(http.StatusOK, result.StatusCode)
	s.Equal([]string{}, result.Errors)
}

func (s *BrowserTestSuite) TestRemoteObjectText() {
	s.Equal("", remoteObjectText(nil))
	s.Equal("desc", remoteObjectText(&proto.RuntimeRemoteObject{Description: "desc"}))
	s.Equal("undefined", remoteObjectText(&proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeUndefined}))
}

func (s *BrowserTestSuite) TestSleepHonoursContext() {
	s.NoError(sleep(context.Background(), 0))
	s.NoError(sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.ErrorIs(sleep(ctx, time.Hour), context.Canceled)
}

func (s *BrowserTestSuite) TestCaptureWithLocalChrome() {
	if testing.Short() {
		s.T().Skip("skipping browser capture in short mode")
	}
	if _, ok := launcher.LookPath(); !ok {
		s.T().Skip("no local Chrome available")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body style="background:#fff"><h1>hello</h1>` +
			`<script>console.error("boom")</script></body></html>`))
	}))
	defer srv.Close()

	c := New(Config{NavigationTimeout: 20 * time.Second})
	defer func() { s.NoError(c.Close()) }()

	var _ capture.Capturer = c
	result := c.Capture(context.Background(), srv.URL, models.Viewport{Width: 320, Height: 240}, 0)
	s.Require().True(result.Succeeded(), "errors: %v", result.Errors)
	s.Equal(http.StatusOK, result.StatusCode)
	s.Empty(result.Errors)

	img, err := png.Decode(bytes.NewReader(result.Screenshot))
	s.Require().NoError(err)
	s.Equal(320, img.Bounds().Dx())
	s.Equal(240, img.Bounds().Dy())
}

func TestBrowserSuite(t *testing.T) {
	suite.Run(t, new(BrowserTestSuite))
}
