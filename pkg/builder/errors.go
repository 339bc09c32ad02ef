package builder

import (
	"fmt"
	"time"
)

// ReportExpiredError rejects a single uploaded file whose declared source
// timestamp is older than the configured maximum age. Only that file is
// dropped; the rest of the upload still processes.
type ReportExpiredError struct {
	Path        string
	GeneratedAt time.Time
	MaxAge      time.Duration
}

func (e *ReportExpiredError) Error() string {
	return fmt.Sprintf("coverage for %s generated at %s is older than %s",
		e.Path, e.GeneratedAt.Format(time.RFC3339), e.MaxAge)
}
