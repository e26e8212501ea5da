package workflow

import (
	"errors"
	"fmt"

	"flambient/internal/jobs"
)

// ErrJobLocked is returned when another process holds the job's lock.
var ErrJobLocked = errors.New("job is locked by another process")

// ResumableError reports a step failure after the job was persisted as
// failed. The job can be continued with Resume.
type ResumableError struct {
	JobID int64
	Step  jobs.Status
	Err   error
}

func (e *ResumableError) Error() string {
	return fmt.Sprintf("job %d failed during %s: %v", e.JobID, e.Step, e.Err)
}

func (e *ResumableError) Unwrap() error { return e.Err }

// ResumeHint returns the command that continues the job.
func (e *ResumableError) ResumeHint() string {
	return fmt.Sprintf("flambient edit --resume=%d", e.JobID)
}
