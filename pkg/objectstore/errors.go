package objectstore

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key or hash has no stored content.
var ErrNotFound = errors.New("object not found")

// ReferenceError is returned for references that do not point at stored content.
type ReferenceError struct {
	Ref string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("invalid object reference %q", e.Ref)
}

// KeyError is returned for keys without a bucket segment.
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("invalid object key %q: expected <bucket>/<key>", e.Key)
}
