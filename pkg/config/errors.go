package config

import (
	"fmt"
	"strings"
)

// SiteNotFoundError is returned when an id is not present in the sites document.
type SiteNotFoundError struct {
	ID string
}

func (e *SiteNotFoundError) Error() string {
	return fmt.Sprintf("Site not found: %s", e.ID)
}

// ValidationError lists every rule the sites document violates.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sites document validation failed:\n  %s", strings.Join(e.Problems, "\n  "))
}
