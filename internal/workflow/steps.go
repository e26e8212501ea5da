package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"flambient/internal/jobs"
	"flambient/internal/logging"
	"flambient/internal/remote"
	"flambient/internal/services"
	"flambient/internal/transfer"
)

type step struct {
	status      jobs.Status
	doneMessage string
	run         func(r *Runner, ctx context.Context, job *jobs.Job) error
}

// steps is the ordered pipeline. A resumed job starts at the step matching its
// status and falls through every later step.
var steps = []step{
	{status: jobs.StatusUploading, doneMessage: "upload complete", run: (*Runner).upload},
	{status: jobs.StatusProcessing, doneMessage: "edit complete", run: (*Runner).process},
	{status: jobs.StatusExporting, doneMessage: "export complete", run: (*Runner).export},
	{status: jobs.StatusDownloading, doneMessage: "download complete", run: (*Runner).download},
}

func stepIndex(status jobs.Status) int {
	if status == jobs.StatusPending {
		return 0
	}
	for i, st := range steps {
		if st.status == status {
			return i
		}
	}
	return -1
}

func (r *Runner) upload(ctx context.Context, job *jobs.Job) error {
	if job.RemoteProjectID == "" {
		projectID, err := r.editor.CreateProject(ctx, job.ProjectName)
		if err != nil {
			return err
		}
		job.RemoteProjectID = projectID
		if err := r.checkpoint(ctx, job); err != nil {
			return err
		}
		logging.WithContext(ctx, r.logger).Info("remote project created", logging.String("project_id", projectID))
	}

	pending := job.PendingUploads()
	if len(pending) > 0 {
		slots, err := r.editor.RequestUploadSlots(ctx, job.RemoteProjectID, pending)
		if err != nil {
			return err
		}
		upload := func(ctx context.Context, name string) error {
			return r.editor.UploadFile(ctx, slots[name], filepath.Join(job.InputDir, name))
		}

		total := len(job.Manifest)
		var checkpointErr error
		result := transfer.Run(ctx, r.settings.TransferWorkers, pending, upload, func(done transfer.FileDone) {
			if done.Err != nil {
				job.MarkUploadFailed(done.Name)
				logging.WarnWithContext(logging.WithContext(ctx, r.logger), "upload failed", "upload_failed",
					logging.String("file", done.Name),
					logging.Error(done.Err),
					logging.String(logging.FieldImpact, "file will be retried on resume"),
				)
			} else {
				job.MarkUploaded(done.Name)
			}
			percent := float64(job.UploadedCount) / float64(total) * 100
			job.SetProgress(fmt.Sprintf("uploaded %d/%d", job.UploadedCount, total), percent)
			if err := r.checkpoint(ctx, job); err != nil && checkpointErr == nil {
				checkpointErr = err
			}
			r.emit(Event{
				Kind: EventFileDone, JobID: job.ID, Status: job.Status, Percent: percent,
				Message: job.ProgressMessage, File: done.Name, Err: done.Err,
				Done: job.UploadedCount, Total: total,
			})
		})
		if checkpointErr != nil {
			return checkpointErr
		}
		if !result.IsFullySuccessful() {
			return services.Wrap(services.ErrTransient, "upload", "transfer",
				fmt.Sprintf("%d of %d uploads failed (%.0f%% succeeded)", len(result.Failed), result.Total(), result.SuccessRate()), result.Errors[result.Failed[0]])
		}
	}

	if job.UploadedCount == 0 {
		return services.Wrap(services.ErrValidation, "upload", "verify", "nothing to edit: no files were uploaded", nil)
	}
	if len(job.FailedUploads) > 0 {
		return services.Wrap(services.ErrTransient, "upload", "verify",
			fmt.Sprintf("%d uploads still failed", len(job.FailedUploads)), nil)
	}
	now := time.Now().UTC()
	job.UploadDoneAt = &now
	return nil
}

func (r *Runner) process(ctx context.Context, job *jobs.Job) error {
	if err := r.requireProject(job); err != nil {
		return err
	}
	if err := r.editor.StartEdit(ctx, job.RemoteProjectID, job.ProfileKey, job.EditOptions); err != nil {
		return err
	}
	check := func(ctx context.Context) (remote.Progress, error) {
		return r.editor.EditStatus(ctx, job.RemoteProjectID)
	}
	if err := r.waitRemote(ctx, job, check); err != nil {
		return err
	}
	now := time.Now().UTC()
	job.ProcessDoneAt = &now
	return nil
}

func (r *Runner) export(ctx context.Context, job *jobs.Job) error {
	if err := r.requireProject(job); err != nil {
		return err
	}
	if err := r.editor.StartExport(ctx, job.RemoteProjectID); err != nil {
		return err
	}
	check := func(ctx context.Context) (remote.Progress, error) {
		return r.editor.ExportStatus(ctx, job.RemoteProjectID)
	}
	return r.waitRemote(ctx, job, check)
}

func (r *Runner) download(ctx context.Context, job *jobs.Job) error {
	if err := r.requireProject(job); err != nil {
		return err
	}
	links, err := r.editor.ResultLinks(ctx, job.RemoteProjectID)
	if err != nil {
		return err
	}
	urls := make(map[string]string, len(links))
	names := make([]string, 0, len(links))
	for _, link := range links {
		if _, dup := urls[link.Filename]; dup {
			continue
		}
		urls[link.Filename] = link.URL
		names = append(names, link.Filename)
	}
	if len(names) == 0 {
		return services.Wrap(services.ErrRemote, "download", "links", "remote returned no result files", nil)
	}

	job.DownloadedCount = 0
	job.FailedDownloads = nil
	total := len(names)
	var checkpointErr error
	fetch := func(ctx context.Context, name string) error {
		_, err := r.editor.DownloadFile(ctx, urls[name], job.OutputDir, name)
		return err
	}
	result := transfer.Run(ctx, r.settings.TransferWorkers, names, fetch, func(done transfer.FileDone) {
		if done.Err != nil {
			job.MarkDownloadFailed(done.Name)
			logging.WarnWithContext(logging.WithContext(ctx, r.logger), "download failed", "download_failed",
				logging.String("file", done.Name),
				logging.Error(done.Err),
				logging.String(logging.FieldImpact, "file will be retried on resume"),
			)
		} else {
			job.MarkDownloaded(done.Name)
		}
		percent := float64(job.DownloadedCount) / float64(total) * 100
		job.SetProgress(fmt.Sprintf("downloaded %d/%d", job.DownloadedCount, total), percent)
		if err := r.checkpoint(ctx, job); err != nil && checkpointErr == nil {
			checkpointErr = err
		}
		r.emit(Event{
			Kind: EventFileDone, JobID: job.ID, Status: job.Status, Percent: percent,
			Message: job.ProgressMessage, File: done.Name, Err: done.Err,
			Done: job.DownloadedCount, Total: total,
		})
	})
	if checkpointErr != nil {
		return checkpointErr
	}
	if !result.IsFullySuccessful() {
		return services.Wrap(services.ErrTransient, "download", "transfer",
			fmt.Sprintf("%d of %d downloads failed (%.0f%% succeeded)", len(result.Failed), result.Total(), result.SuccessRate()), result.Errors[result.Failed[0]])
	}
	return nil
}

// waitRemote polls check until the remote work completes, checkpointing the
// job each time progress enters a new 10% bucket.
func (r *Runner) waitRemote(ctx context.Context, job *jobs.Job, check remote.CheckFunc) error {
	sampler := logging.NewProgressSampler(10)
	stage := string(job.Status)
	var checkpointErr error
	_, err := r.poller().Wait(ctx, check, func(p remote.Progress) {
		job.SetProgress(fmt.Sprintf("%s %.0f%%", p.Status, p.Percent), p.Percent)
		r.emit(Event{Kind: EventProgress, JobID: job.ID, Status: job.Status, Percent: p.Percent, Message: job.ProgressMessage})
		if sampler.ShouldLog(p.Percent, stage) {
			if err := r.checkpoint(ctx, job); err != nil && checkpointErr == nil {
				checkpointErr = err
			}
		}
	})
	if err != nil {
		return err
	}
	return checkpointErr
}

func (r *Runner) requireProject(job *jobs.Job) error {
	if job.RemoteProjectID == "" {
		return services.Wrap(services.ErrValidation, string(job.Status), "project",
			"job has no remote project; resume from upload", nil)
	}
	return nil
}
