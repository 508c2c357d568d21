package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"sitewatch/pkg/models"
)

// fakeGateway mimics the bucket gateway endpoints the Remote client relies on.
type fakeGateway struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string]string // bucket/key -> hash
	blobs   map[string][]byte

	uploads   atomic.Int32
	downloads atomic.Int32
	failGet   bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		buckets: make(map[string]bool),
		objects: make(map[string]string),
		blobs:   make(map[string][]byte),
	}
}

func (g *fakeGateway) hasBucket(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.buckets[name]
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	parts := strings.SplitN(path, "/", 4)

	switch {
	case r.Method == http.MethodPost && len(parts) == 2 && parts[0] == "bucket":
		g.buckets[parts[1]] = true
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "upload":
		g.uploads.Add(1)
		if !g.buckets[parts[1]] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		sum := sha256.Sum256(data)
		hash := hex.EncodeToString(sum[:])
		g.blobs[hash] = data
		g.objects[parts[1]+"/"+r.FormValue("key")] = hash
		_ = json.NewEncoder(w).Encode(models.BucketUploadResponse{Hash: hash, Key: r.FormValue("key"), Bucket: parts[1], Size: int64(len(data))})

	case r.Method == http.MethodHead && len(parts) == 4 && parts[2] == "object":
		hash, ok := g.objects[parts[1]+"/"+parts[3]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set(headerObjectHash, hash)
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "file" && parts[2] == "download":
		g.downloads.Add(1)
		if g.failGet {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		data, ok := g.blobs[parts[1]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RemoteTestSuite tests the gateway client
type RemoteTestSuite struct {
	suite.Suite
	ctx     context.Context
	gateway *fakeGateway
	server  *httptest.Server
	remote  *Remote
}

func (s *RemoteTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.gateway = newFakeGateway()
	s.server = httptest.NewServer(s.gateway)
	s.remote = NewRemote(s.server.URL+"/", "", 5*time.Second)
}

func (s *RemoteTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *RemoteTestSuite) TestPutCreatesBucketOnFirstUse() {
	ref, err := s.remote.Put(s.ctx, "current/example", []byte("remote capture"))
	s.Require().NoError(err)
	s.True(strings.HasPrefix(ref, "/objects/"))
	s.Equal(int32(2), s.gateway.uploads.Load())
	s.True(s.gateway.hasBucket("current"))

	_, err = s.remote.Put(s.ctx, "current/other", []byte("second"))
	s.Require().NoError(err)
	s.Equal(int32(3), s.gateway.uploads.Load())
}

func (s *RemoteTestSuite) TestLocateAndGet() {
	ref, err := s.remote.Put(s.ctx, "site-monitor/status.json", []byte(`{"a":1}`))
	s.Require().NoError(err)

	located, err := s.remote.Locate(s.ctx, "site-monitor/status.json")
	s.Require().NoError(err)
	s.Equal(ref, located)

	data, err := s.remote.Get(s.ctx, located)
	s.Require().NoError(err)
	s.JSONEq(`{"a":1}`, string(data))
}

func (s *RemoteTestSuite) TestLocateMissing() {
	_, err := s.remote.Locate(s.ctx, "current/unknown")
	s.ErrorIs(err, ErrNotFound)
}

func (s *RemoteTestSuite) TestGetMissing() {
	_, err := s.remote.Get(s.ctx, Reference("", strings.Repeat("a", 64)))
	s.ErrorIs(err, ErrNotFound)
}

func (s *RemoteTestSuite) TestHTTPErrorsAreNotRetried() {
	s.gateway.mu.Lock()
	s.gateway.failGet = true
	s.gateway.mu.Unlock()

	_, err := s.remote.Get(s.ctx, Reference("", strings.Repeat("a", 64)))
	s.Error(err)
	s.False(errors.Is(err, ErrNotFound))
	s.Equal(int32(1), s.gateway.downloads.Load())
}

func (s *RemoteTestSuite) TestInvalidReference() {
	_, err := s.remote.Get(s.ctx, "not a reference")
	var refErr *ReferenceError
	s.True(errors.As(err, &refErr))
}

func (s *RemoteTestSuite) TestConnectionErrorsAreRetried() {
	remote := NewRemote("http://127.0.0.1:1", "", time.Second)
	remote.client = CreateRetryableClient(1, time.Millisecond, time.Millisecond)

	_, err := remote.Locate(s.ctx, "current/example")
	s.Error(err)
	s.Contains(err.Error(), "giving up after 2 attempt(s)")
}

func (s *RemoteTestSuite) TestRetryPolicy() {
	retry, err := connectionErrorRetryPolicy(s.ctx, nil, errors.New("connection refused"))
	s.True(retry)
	s.NoError(err)

	retry, err = connectionErrorRetryPolicy(s.ctx, &http.Response{StatusCode: http.StatusBadGateway}, nil)
	s.False(retry)
	s.NoError(err)

	cancelled, cancel := context.WithCancel(s.ctx)
	cancel()
	retry, err = connectionErrorRetryPolicy(cancelled, nil, errors.New("boom"))
	s.False(retry)
	s.ErrorIs(err, context.Canceled)
}

func TestRemoteSuite(t *testing.T) {
	suite.Run(t, new(RemoteTestSuite))
}
