package transfer

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkers is the pool size used when callers pass zero.
	DefaultWorkers = 4
	// MaxWorkers caps concurrent transfers.
	MaxWorkers = 8
)

// Func transfers one file. A returned error marks only that file as failed.
type Func func(ctx context.Context, name string) error

// FileDone reports one finished transfer. Done counts finished files
// (successful or not) and never decreases across events.
type FileDone struct {
	Name  string
	Err   error
	Done  int
	Total int
}

// Reporter receives FileDone events. Calls are serialized.
type Reporter func(FileDone)

// Result records per-file outcomes in input order.
type Result struct {
	Succeeded []string
	Failed    []string
	Errors    map[string]error
}

// Total returns the number of files attempted.
func (r Result) Total() int {
	return len(r.Succeeded) + len(r.Failed)
}

// SuccessRate returns the percentage of files that succeeded. An empty
// result reports 100.
func (r Result) SuccessRate() float64 {
	total := r.Total()
	if total == 0 {
		return 100
	}
	return float64(len(r.Succeeded)) * 100 / float64(total)
}

// IsFullySuccessful reports whether no file failed.
func (r Result) IsFullySuccessful() bool {
	return len(r.Failed) == 0
}

// ClampWorkers normalizes a configured worker count.
func ClampWorkers(workers int) int {
	switch {
	case workers <= 0:
		return DefaultWorkers
	case workers > MaxWorkers:
		return MaxWorkers
	default:
		return workers
	}
}

// Run transfers every file with at most workers concurrent calls to fn. One
// file failing never stops the others. When ctx is cancelled, files that have
// not started are recorded as failed with the context error.
func Run(ctx context.Context, workers int, files []string, fn Func, report Reporter) Result {
	errs := make([]error, len(files))
	var (
		mu   sync.Mutex
		done int
	)

	var g errgroup.Group
	g.SetLimit(ClampWorkers(workers))
	for i, name := range files {
		g.Go(func() error {
			var err error
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			} else {
				err = fn(ctx, name)
			}

			mu.Lock()
			defer mu.Unlock()
			errs[i] = err
			done++
			if report != nil {
				report(FileDone{Name: name, Err: err, Done: done, Total: len(files)})
			}
			return nil
		})
	}
	_ = g.Wait()

	result := Result{Errors: make(map[string]error)}
	for i, name := range files {
		if errs[i] != nil {
			result.Failed = append(result.Failed, name)
			result.Errors[name] = errs[i]
			continue
		}
		result.Succeeded = append(result.Succeeded, name)
	}
	return result
}
