package store

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

// StoreTestSuite tests the store package types and errors
type StoreTestSuite struct {
	suite.Suite
}

func (s *StoreTestSuite) TestValidHash() {
	valid := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	s.True(ValidHash(valid))
	s.False(ValidHash(strings.ToUpper(valid)))
	s.False(ValidHash(valid[:63]))
	s.False(ValidHash(valid[:63] + "g"))
	s.False(ValidHash(valid + "0"))
	s.False(ValidHash(""))
}

func (s *StoreTestSuite) TestFileExistsError() {
	err := FileExistsError{Hash: "abcd1234"}
	s.Equal("file already exists", err.Error())
	s.Equal("abcd1234", err.Hash)
}

func (s *StoreTestSuite) TestFileNotFoundError() {
	err := FileNotFoundError{Hash: "abcd1234"}
	s.Equal("file not found", err.Error())
	s.Equal("abcd1234", err.Hash)
}

func (s *StoreTestSuite) TestInvalidHashError() {
	err := InvalidHashError{Hash: "invalid"}
	s.Equal("invalid hash format", err.Error())
	s.Equal("invalid", err.Hash)
}

// TestErrorsAsThroughWrapping checks callers can still recover the hash after wrapping
func (s *StoreTestSuite) TestErrorsAsThroughWrapping() {
	wrapped := fmt.Errorf("fetch baseline: %w", FileNotFoundError{Hash: "beef"})

	var notFound FileNotFoundError
	s.Require().True(errors.As(wrapped, &notFound))
	s.Equal("beef", notFound.Hash)

	var exists FileExistsError
	s.False(errors.As(wrapped, &exists))
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
