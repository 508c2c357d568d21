package status

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"sitewatch/pkg/models"
	"sitewatch/pkg/objectstore"
)

// MockObjectStore is a mock implementation of objectstore.Store
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	args := m.Called(ctx, key, data)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStore) Get(ctx context.Context, ref string) ([]byte, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockObjectStore) Locate(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStore) Open(ctx context.Context, hash string) (io.ReadCloser, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func ptr[T any](v T) *T { return &v }

// StatusStoreTestSuite tests the status map and its persistence
type StatusStoreTestSuite struct {
	suite.Suite
	ctx     context.Context
	objects *objectstore.Memory
	store   *Store
}

func (s *StatusStoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.objects = objectstore.NewMemory("")
	s.store = New(s.objects)
}

func (s *StatusStoreTestSuite) TestLoadWithoutDocumentStartsEmpty() {
	s.store.Load(s.ctx)
	s.Empty(s.store.All())
}

func (s *StatusStoreTestSuite) TestUpsertPersistsWholeMap() {
	s.Require().NoError(s.store.Upsert(s.ctx, models.SiteStatus{ID: "a", Name: "A", Status: models.StatusNew}))
	s.Require().NoError(s.store.Upsert(s.ctx, models.SiteStatus{ID: "b", Name: "B", Status: models.StatusOK, DiffPercent: ptr(0.0)}))

	ref, err := s.objects.Locate(s.ctx, DocumentKey)
	s.Require().NoError(err)
	data, err := s.objects.Get(s.ctx, ref)
	s.Require().NoError(err)

	var persisted map[string]models.SiteStatus
	s.Require().NoError(json.Unmarshal(data, &persisted))
	s.Len(persisted, 2)
	s.Equal(models.StatusOK, persisted["b"].Status)
	s.Require().NotNil(persisted["b"].DiffPercent, "a zero diff percent must survive the round trip")
	s.Equal(0.0, *persisted["b"].DiffPercent)
	s.Contains(string(data), "\n  ", "document is indented")
}

func (s *StatusStoreTestSuite) TestLoadRestoresPersistedRecords() {
	s.Require().NoError(s.store.Upsert(s.ctx, models.SiteStatus{ID: "a", BaselineScreenshot: "/objects/x"}))

	reloaded := New(s.objects)
	reloaded.Load(s.ctx)

	record, ok := reloaded.Get("a")
	s.Require().True(ok)
	s.Equal("/objects/x", record.BaselineScreenshot)
}

func (s *StatusStoreTestSuite) TestLoadCorruptDocumentStartsEmpty() {
	_, err := s.objects.Put(s.ctx, DocumentKey, []byte("{not json"))
	s.Require().NoError(err)

	s.store.Load(s.ctx)
	s.Empty(s.store.All())
}

func (s *StatusStoreTestSuite) TestLoadFetchFailureStartsEmpty() {
	objects := new(MockObjectStore)
	objects.On("Locate", mock.Anything, DocumentKey).Return("/objects/abc", nil)
	objects.On("Get", mock.Anything, "/objects/abc").Return(nil, errors.New("network down"))

	store := New(objects)
	store.Load(s.ctx)
	s.Empty(store.All())
	objects.AssertExpectations(s.T())
}

func (s *StatusStoreTestSuite) TestReturnedRecordsAreCopies() {
	s.Require().NoError(s.store.Upsert(s.ctx, models.SiteStatus{ID: "a", ConsoleErrors: []string{"boom"}}))

	record, ok := s.store.Get("a")
	s.Require().True(ok)
	record.ConsoleErrors[0] = "mutated"

	all := s.store.All()
	all["a"] = models.SiteStatus{ID: "a", Reason: "mutated"}

	again, _ := s.store.Get("a")
	s.Equal([]string{"boom"}, again.ConsoleErrors)
	s.Empty(again.Reason)
}

func (s *StatusStoreTestSuite) TestGetMissing() {
	_, ok := s.store.Get("nope")
	s.False(ok)
}

func (s *StatusStoreTestSuite) TestPersistFailureIsWrapped() {
	objects := new(MockObjectStore)
	cause := errors.New("quota exceeded")
	objects.On("Put", mock.Anything, DocumentKey, mock.Anything).Return("", cause)

	store := New(objects)
	err := store.Upsert(s.ctx, models.SiteStatus{ID: "a"})

	var persistErr *PersistenceError
	s.Require().True(errors.As(err, &persistErr))
	s.ErrorIs(err, cause)

	record, ok := store.Get("a")
	s.True(ok, "the in-memory record is kept even when persisting fails")
	s.Equal("a", record.ID)
}

func (s *StatusStoreTestSuite) TestStatusNotFoundError() {
	err := &StatusNotFoundError{ID: "ghost"}
	s.Equal("No status found for site: ghost", err.Error())
}

func TestStatusStoreSuite(t *testing.T) {
	suite.Run(t, new(StatusStoreTestSuite))
}
