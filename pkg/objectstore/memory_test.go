package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/suite"
)

// MemoryTestSuite tests the in-memory object store
type MemoryTestSuite struct {
	suite.Suite
	ctx    context.Context
	memory *Memory
}

func (s *MemoryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.memory = NewMemory("")
}

func (s *MemoryTestSuite) TestVersionedReferences() {
	first, err := s.memory.Put(s.ctx, "current/site", []byte("one"))
	s.Require().NoError(err)
	second, err := s.memory.Put(s.ctx, "current/site", []byte("two"))
	s.Require().NoError(err)
	s.NotEqual(first, second)
	s.Equal(1, s.memory.Keys())

	_, err = s.memory.Get(s.ctx, first)
	s.ErrorIs(err, ErrNotFound)
	s.Equal(1, s.memory.Blobs())

	located, err := s.memory.Locate(s.ctx, "current/site")
	s.Require().NoError(err)
	s.Equal(second, located)
}

func (s *MemoryTestSuite) TestPinnedContentSurvivesOverwrite() {
	first, err := s.memory.Put(s.ctx, "current/site", []byte("one"))
	s.Require().NoError(err)
	pinned, err := s.memory.Put(s.ctx, "baseline/site", []byte("one"))
	s.Require().NoError(err)
	s.Equal(first, pinned)

	_, err = s.memory.Put(s.ctx, "current/site", []byte("two"))
	s.Require().NoError(err)

	data, err := s.memory.Get(s.ctx, pinned)
	s.Require().NoError(err)
	s.Equal("one", string(data))
	s.Equal(2, s.memory.Blobs())
}

func (s *MemoryTestSuite) TestRepeatedWritesKeepOneBlob() {
	for i := range 50 {
		_, err := s.memory.Put(s.ctx, "site-monitor/status.json", []byte(fmt.Sprintf("run %d", i)))
		s.Require().NoError(err)
	}
	s.Equal(1, s.memory.Blobs())
	s.Equal(1, s.memory.Keys())
}

func (s *MemoryTestSuite) TestDelete() {
	ref, err := s.memory.Put(s.ctx, "diff/site", []byte("diff"))
	s.Require().NoError(err)
	_, err = s.memory.Put(s.ctx, "diff/other", []byte("diff"))
	s.Require().NoError(err)

	s.Require().NoError(s.memory.Delete(s.ctx, "diff/site"))
	_, err = s.memory.Get(s.ctx, ref)
	s.Require().NoError(err)

	s.Require().NoError(s.memory.Delete(s.ctx, "diff/other"))
	_, err = s.memory.Get(s.ctx, ref)
	s.ErrorIs(err, ErrNotFound)
	s.Equal(0, s.memory.Blobs())

	s.ErrorIs(s.memory.Delete(s.ctx, "diff/other"), ErrNotFound)
}

func (s *MemoryTestSuite) TestStoredBytesAreCopied() {
	payload := []byte("mutable")
	ref, err := s.memory.Put(s.ctx, "current/site", payload)
	s.Require().NoError(err)
	payload[0] = 'X'

	data, err := s.memory.Get(s.ctx, ref)
	s.Require().NoError(err)
	s.Equal("mutable", string(data))
}

func (s *MemoryTestSuite) TestMissing() {
	_, err := s.memory.Locate(s.ctx, "current/none")
	s.ErrorIs(err, ErrNotFound)

	_, err = s.memory.Open(s.ctx, "00000000000000000000000000000000000000000000000000000000000000ff")
	s.ErrorIs(err, ErrNotFound)

	_, err = s.memory.Put(s.ctx, "nobucket", nil)
	var keyErr *KeyError
	s.True(errors.As(err, &keyErr))
}

func (s *MemoryTestSuite) TestOpen() {
	ref, err := s.memory.Put(s.ctx, "diff/site", []byte("diff bytes"))
	s.Require().NoError(err)
	hash, err := ParseReference(ref)
	s.Require().NoError(err)

	reader, err := s.memory.Open(s.ctx, hash)
	s.Require().NoError(err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	s.Require().NoError(err)
	s.Equal("diff bytes", string(data))
}

func TestMemorySuite(t *testing.T) {
	suite.Run(t, new(MemoryTestSuite))
}
