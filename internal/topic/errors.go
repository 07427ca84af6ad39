package topic

import (
	"fmt"

	"subline/internal/services"
)

var (
	// ErrStaleState reports that a compare-and-set transition found an unexpected current value.
	ErrStaleState = fmt.Errorf("%w: stale state", services.ErrConsistency)
	// ErrNotFound reports a missing topic.
	ErrNotFound = fmt.Errorf("topic %w", services.ErrNotFound)
)
