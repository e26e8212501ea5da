package jobs

import (
	"slices"
	"strings"
	"time"

	"flambient/internal/remote"
)

// Status represents the lifecycle of a remote edit job.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUploading   Status = "uploading"
	StatusProcessing  Status = "processing"
	StatusExporting   Status = "exporting"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// pipeline lists the forward path a job walks through.
var pipeline = []Status{
	StatusPending,
	StatusUploading,
	StatusProcessing,
	StatusExporting,
	StatusDownloading,
	StatusCompleted,
}

var allStatuses = append(slices.Clone(pipeline), StatusFailed, StatusCancelled)

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	return slices.Clone(allStatuses)
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	return normalized, slices.Contains(allStatuses, normalized)
}

// IsTerminal reports whether a job in this status can never change again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsStep reports whether the status names one of the four remote steps.
func (s Status) IsStep() bool {
	switch s {
	case StatusUploading, StatusProcessing, StatusExporting, StatusDownloading:
		return true
	}
	return false
}

func pipelineIndex(s Status) int {
	return slices.Index(pipeline, s)
}

// CanTransition reports whether a job may move from one status to another.
// Jobs move forward one step at a time, may fail or be cancelled from any
// non-terminal state, and re-enter a step state from failed. Staying in the
// same non-terminal state is allowed so progress can be checkpointed.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if from == to {
		return true
	}
	switch to {
	case StatusFailed, StatusCancelled:
		return true
	}
	if from == StatusFailed {
		return to.IsStep()
	}
	fromIdx, toIdx := pipelineIndex(from), pipelineIndex(to)
	return fromIdx >= 0 && toIdx == fromIdx+1
}

// Job is a persisted remote edit.
type Job struct {
	ID              int64
	ProjectName     string
	InputDir        string
	OutputDir       string
	RemoteProjectID string
	ProfileKey      string
	EditOptions     remote.EditOptions
	Status          Status
	FailedStatus    Status
	ProgressPercent float64
	ProgressMessage string
	Manifest        []string
	UploadedFiles   []string
	UploadedCount   int
	DownloadedCount int
	FailedUploads   []string
	FailedDownloads []string
	ErrorMessage    string
	StartedAt       *time.Time
	UploadDoneAt    *time.Time
	ProcessDoneAt   *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewJob carries the fields needed to create a job.
type NewJob struct {
	ProjectName string
	InputDir    string
	OutputDir   string
	ProfileKey  string
	EditOptions remote.EditOptions
	Manifest    []string
}

// PendingUploads returns manifest files not yet confirmed uploaded, in
// manifest order.
func (j *Job) PendingUploads() []string {
	uploaded := make(map[string]struct{}, len(j.UploadedFiles))
	for _, name := range j.UploadedFiles {
		uploaded[name] = struct{}{}
	}
	pending := make([]string, 0, max(len(j.Manifest)-len(uploaded), 0))
	for _, name := range j.Manifest {
		if _, ok := uploaded[name]; !ok {
			pending = append(pending, name)
		}
	}
	return pending
}

// MarkUploaded records a confirmed upload.
func (j *Job) MarkUploaded(name string) {
	if !slices.Contains(j.UploadedFiles, name) {
		j.UploadedFiles = append(j.UploadedFiles, name)
	}
	j.UploadedCount = len(j.UploadedFiles)
	j.FailedUploads = slices.DeleteFunc(j.FailedUploads, func(n string) bool { return n == name })
}

// MarkUploadFailed records a failed upload attempt.
func (j *Job) MarkUploadFailed(name string) {
	if !slices.Contains(j.FailedUploads, name) {
		j.FailedUploads = append(j.FailedUploads, name)
	}
}

// MarkDownloaded records a file present in the output directory.
func (j *Job) MarkDownloaded(name string) {
	j.DownloadedCount++
	j.FailedDownloads = slices.DeleteFunc(j.FailedDownloads, func(n string) bool { return n == name })
}

// MarkDownloadFailed records a failed download attempt.
func (j *Job) MarkDownloadFailed(name string) {
	if !slices.Contains(j.FailedDownloads, name) {
		j.FailedDownloads = append(j.FailedDownloads, name)
	}
}

// SetProgress updates the progress fields together.
func (j *Job) SetProgress(message string, percent float64) {
	j.ProgressMessage = message
	j.ProgressPercent = percent
}

// SetFailed marks the job failed while remembering the step it failed in.
func (j *Job) SetFailed(message string) {
	if j.Status != StatusFailed {
		j.FailedStatus = j.Status
	}
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.ProgressMessage = message
}

// ResumeStatus is the status a resumed run continues from.
func (j *Job) ResumeStatus() Status {
	if j.Status == StatusFailed {
		if j.FailedStatus == "" || j.FailedStatus == StatusPending {
			return StatusUploading
		}
		return j.FailedStatus
	}
	return j.Status
}

// IsResumable reports whether Resume may run against this job.
func (j *Job) IsResumable() bool {
	return !j.Status.IsTerminal() && j.Status != StatusPending
}
