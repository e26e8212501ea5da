package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"flambient/internal/config"
	"flambient/internal/jobs"
	"flambient/internal/logging"
	"flambient/internal/remote"
	"flambient/internal/services"
	"flambient/internal/transfer"
)

// RemoteEditor is the subset of the editing API the workflow drives.
type RemoteEditor interface {
	CreateProject(ctx context.Context, name string) (string, error)
	RequestUploadSlots(ctx context.Context, projectID string, filenames []string) (map[string]string, error)
	UploadFile(ctx context.Context, signedURL, localPath string) error
	StartEdit(ctx context.Context, projectID, profileKey string, opts remote.EditOptions) error
	EditStatus(ctx context.Context, projectID string) (remote.Progress, error)
	StartExport(ctx context.Context, projectID string) error
	ExportStatus(ctx context.Context, projectID string) (remote.Progress, error)
	ResultLinks(ctx context.Context, projectID string) ([]remote.Link, error)
	DownloadFile(ctx context.Context, signedURL, destDir, filename string) (string, error)
}

// Store persists job checkpoints.
type Store interface {
	Update(ctx context.Context, job *jobs.Job) error
}

// Settings collects everything the runner needs from configuration.
type Settings struct {
	PollInterval    time.Duration
	PollMaxAttempts int
	TransferWorkers int
	// LockDir holds per-job lock files; empty disables locking.
	LockDir string
}

// SettingsFromConfig extracts runner settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		PollInterval:    cfg.PollInterval(),
		PollMaxAttempts: cfg.Workflow.PollMaxAttempts,
		TransferWorkers: cfg.Workflow.TransferWorkers,
		LockDir:         cfg.LockDir(),
	}
}

// Runner walks a job through upload, process, export and download,
// checkpointing to the store so a failed run can be resumed.
type Runner struct {
	settings Settings
	store    Store
	editor   RemoteEditor
	observer Observer
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option customizes the runner.
type Option func(*Runner)

// WithObserver attaches an observer for progress events.
func WithObserver(observer Observer) Option {
	return func(r *Runner) {
		if observer != nil {
			r.observer = observer
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithPollSleep overrides the wait between status checks (useful for tests).
func WithPollSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) {
		r.sleep = sleep
	}
}

// NewRunner constructs a runner.
func NewRunner(settings Settings, store Store, editor RemoteEditor, opts ...Option) *Runner {
	settings.TransferWorkers = transfer.ClampWorkers(settings.TransferWorkers)
	r := &Runner{
		settings: settings,
		store:    store,
		editor:   editor,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "workflow")
	return r
}

// ResumeOptions adjusts a resumed run.
type ResumeOptions struct {
	// ProfileKey replaces the job's editing profile when non-empty.
	ProfileKey string
}

// Start runs a pending job from the upload step. When the confirmer declines,
// the job is cancelled without any remote calls.
func (r *Runner) Start(ctx context.Context, job *jobs.Job, confirmer Confirmer) error {
	if job == nil {
		return services.Wrap(services.ErrValidation, "workflow", "start", "job is nil", nil)
	}
	if job.Status != jobs.StatusPending {
		return services.Wrap(services.ErrValidation, "workflow", "start",
			fmt.Sprintf("job %d is %s, not pending", job.ID, job.Status), nil)
	}

	lock, err := acquireJobLock(r.settings.LockDir, job.ID)
	if err != nil {
		return err
	}
	defer lock.release()

	if confirmer == nil {
		confirmer = AlwaysConfirm
	}
	ok, err := confirmer.Confirm(ctx, job)
	if err != nil {
		return fmt.Errorf("confirm job %d: %w", job.ID, err)
	}
	if !ok {
		job.Status = jobs.StatusCancelled
		job.SetProgress("cancelled by operator", 0)
		if err := r.store.Update(context.WithoutCancel(ctx), job); err != nil {
			return fmt.Errorf("persist cancellation: %w", err)
		}
		r.logger.Info("job cancelled before upload",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.String(logging.FieldEventType, "job_cancelled"),
		)
		r.emit(Event{Kind: EventCancelled, JobID: job.ID, Status: job.Status, Message: job.ProgressMessage})
		return nil
	}

	now := time.Now().UTC()
	job.StartedAt = &now
	return r.run(ctx, job, 0)
}

// Resume continues a job from the step it was in (or failed in) and runs
// every later step in the same call. Pending jobs go through Start.
func (r *Runner) Resume(ctx context.Context, job *jobs.Job, opts ResumeOptions) error {
	if job == nil {
		return services.Wrap(services.ErrValidation, "workflow", "resume", "job is nil", nil)
	}
	if !job.IsResumable() {
		return services.Wrap(services.ErrValidation, "workflow", "resume",
			fmt.Sprintf("job %d is %s and cannot be resumed", job.ID, job.Status), nil)
	}

	lock, err := acquireJobLock(r.settings.LockDir, job.ID)
	if err != nil {
		return err
	}
	defer lock.release()

	if key := strings.TrimSpace(opts.ProfileKey); key != "" && key != job.ProfileKey {
		r.logger.Info("editing profile changed for resume",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.String("previous_profile", job.ProfileKey),
			logging.String("profile", key),
		)
		job.ProfileKey = key
	}
	if job.StartedAt == nil {
		now := time.Now().UTC()
		job.StartedAt = &now
	}

	start := stepIndex(job.ResumeStatus())
	if start < 0 {
		start = 0
	}
	r.logger.Info("resuming job",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("from_step", string(steps[start].status)),
		logging.String(logging.FieldEventType, "job_resume"),
	)
	return r.run(ctx, job, start)
}

func (r *Runner) run(ctx context.Context, job *jobs.Job, start int) error {
	ctx = services.WithJobID(ctx, job.ID)
	for _, st := range steps[start:] {
		stepCtx := services.WithStage(ctx, string(st.status))
		stepCtx = services.WithRequestID(stepCtx, uuid.NewString())
		logger := logging.WithContext(stepCtx, r.logger)

		if err := r.enterStep(stepCtx, job, st.status); err != nil {
			return err
		}
		stepStart := time.Now()
		logger.Info("step started", logging.String(logging.FieldEventType, "step_start"))

		if err := st.run(r, stepCtx, job); err != nil {
			return r.fail(stepCtx, logger, job, err)
		}

		job.SetProgress(st.doneMessage, 100)
		if err := r.checkpoint(stepCtx, job); err != nil {
			return r.fail(stepCtx, logger, job, err)
		}
		logger.Info("step completed",
			logging.String(logging.FieldEventType, "step_complete"),
			logging.Duration("step_duration", time.Since(stepStart)),
		)
		r.emit(Event{Kind: EventStepDone, JobID: job.ID, Status: job.Status, Percent: 100, Message: st.doneMessage})
	}

	now := time.Now().UTC()
	job.Status = jobs.StatusCompleted
	job.CompletedAt = &now
	job.ErrorMessage = ""
	job.SetProgress("completed", 100)
	if err := r.store.Update(context.WithoutCancel(ctx), job); err != nil {
		return fmt.Errorf("persist completion: %w", err)
	}
	r.logger.Info("job completed",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.Int("downloaded", job.DownloadedCount),
		logging.String(logging.FieldEventType, "job_complete"),
	)
	r.emit(Event{Kind: EventCompleted, JobID: job.ID, Status: job.Status, Percent: 100, Message: "completed"})
	return nil
}

func (r *Runner) enterStep(ctx context.Context, job *jobs.Job, status jobs.Status) error {
	job.Status = status
	job.ErrorMessage = ""
	job.SetProgress(string(status)+" started", 0)
	if err := r.store.Update(context.WithoutCancel(ctx), job); err != nil {
		return fmt.Errorf("persist %s transition: %w", status, err)
	}
	r.emit(Event{Kind: EventStepStarted, JobID: job.ID, Status: status, Message: job.ProgressMessage})
	return nil
}

// checkpoint persists job progress. Cancellation of ctx does not prevent the
// write so an interrupted run still records what finished.
func (r *Runner) checkpoint(ctx context.Context, job *jobs.Job) error {
	if err := r.store.Update(context.WithoutCancel(ctx), job); err != nil {
		return fmt.Errorf("checkpoint job %d: %w", job.ID, err)
	}
	return nil
}

func (r *Runner) fail(ctx context.Context, logger *slog.Logger, job *jobs.Job, stepErr error) error {
	step := job.Status
	message := strings.TrimSpace(stepErr.Error())
	if message == "" {
		message = string(step) + " failed"
	}
	job.SetFailed(message)

	logging.ErrorWithContext(logger, "step failed", "step_failure",
		logging.String("failed_status", string(job.FailedStatus)),
		logging.String(logging.FieldErrorHint, fmt.Sprintf("run flambient edit --resume=%d", job.ID)),
		logging.Error(stepErr),
	)
	if err := r.store.Update(context.WithoutCancel(ctx), job); err != nil {
		logger.Error("failed to persist step failure", logging.Error(err))
		stepErr = errors.Join(stepErr, err)
	}
	r.emit(Event{Kind: EventFailed, JobID: job.ID, Status: job.Status, Message: message, Err: stepErr})
	return &ResumableError{JobID: job.ID, Step: job.FailedStatus, Err: stepErr}
}

func (r *Runner) emit(event Event) {
	r.observer.Observe(event)
}

func (r *Runner) poller() remote.Poller {
	p := remote.NewPoller(r.settings.PollInterval, r.settings.PollMaxAttempts)
	p.Sleep = r.sleep
	return p
}
