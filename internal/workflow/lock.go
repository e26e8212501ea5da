package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

type jobLock struct {
	lock *flock.Flock
}

// acquireJobLock takes the per-job lock file so only one process writes a
// job at a time. An empty dir disables locking.
func acquireJobLock(dir string, jobID int64) (*jobLock, error) {
	if strings.TrimSpace(dir) == "" {
		return &jobLock{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("job-%d.lock", jobID))
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %d (%s)", ErrJobLocked, jobID, path)
	}
	return &jobLock{lock: lock}, nil
}

func (l *jobLock) release() {
	if l == nil || l.lock == nil {
		return
	}
	_ = l.lock.Unlock()
}
