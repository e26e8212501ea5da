package workflow

import (
	"context"

	"flambient/internal/jobs"
)

// Confirmer decides whether a pending job may start uploading.
type Confirmer interface {
	Confirm(ctx context.Context, job *jobs.Job) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, job *jobs.Job) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, job *jobs.Job) (bool, error) {
	return f(ctx, job)
}

// AlwaysConfirm approves every job.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, *jobs.Job) (bool, error) { return true, nil })
