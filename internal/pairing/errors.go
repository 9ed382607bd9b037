package pairing

import (
	"fmt"
	"time"
)

// FilterTimeoutError reports that the unpaired-SKU filter control never
// matched. Discovery still returns whatever rows are visible; callers flag
// the run as degraded instead of aborting it.
type FilterTimeoutError struct {
	Budget   time.Duration
	Attempts int
}

func (e *FilterTimeoutError) Error() string {
	return fmt.Sprintf("unpaired filter not found after %d attempts within %s", e.Attempts, e.Budget)
}
