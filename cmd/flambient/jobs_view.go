package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"flambient/internal/jobs"
	"flambient/internal/services"
)

func listJobs(cmd *cobra.Command, store *jobs.Store) error {
	list, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No jobs")
		return nil
	}

	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			strconv.FormatInt(job.ID, 10),
			job.ProjectName,
			jobStatusLabel(job),
			job.ProfileKey,
			fmt.Sprintf("%d/%d", job.UploadedCount, len(job.Manifest)),
			strconv.Itoa(job.DownloadedCount),
			formatTime(job.UpdatedAt),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Project", "Status", "Profile", "Uploaded", "Downloaded", "Updated"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))

	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, formatStats(stats))
	return nil
}

// formatStats renders per-status counts in pipeline order.
func formatStats(stats map[jobs.Status]int) string {
	parts := make([]string, 0, len(stats))
	total := 0
	for _, status := range jobs.AllStatuses() {
		count := stats[status]
		if count == 0 {
			continue
		}
		total += count
		parts = append(parts, fmt.Sprintf("%d %s", count, status))
	}
	return fmt.Sprintf("%d job(s): %s", total, strings.Join(parts, ", "))
}

func jobStatusLabel(job *jobs.Job) string {
	label := statusLabel(string(job.Status))
	if job.Status == jobs.StatusFailed && job.FailedStatus != "" {
		label = fmt.Sprintf("%s (%s)", label, job.FailedStatus)
	}
	return label
}

func showJob(cmd *cobra.Command, store *jobs.Store, id int64) error {
	job, err := store.GetByID(cmd.Context(), id)
	if err != nil {
		return err
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "edit", "status", fmt.Sprintf("job %d not found", id), nil)
	}
	printJob(cmd.OutOrStdout(), job)
	return nil
}

func printJob(out io.Writer, job *jobs.Job) {
	fmt.Fprintf(out, "Job:        %d\n", job.ID)
	fmt.Fprintf(out, "Project:    %s\n", job.ProjectName)
	fmt.Fprintf(out, "Status:     %s\n", jobStatusLabel(job))
	fmt.Fprintf(out, "Profile:    %s\n", job.ProfileKey)
	fmt.Fprintf(out, "Options:    sky replacement %s, window pull %s, perspective correction %s\n",
		yesNo(job.EditOptions.SkyReplacement), yesNo(job.EditOptions.WindowPull), yesNo(job.EditOptions.PerspectiveCorrection))
	fmt.Fprintf(out, "Input:      %s\n", job.InputDir)
	fmt.Fprintf(out, "Output:     %s\n", job.OutputDir)
	if job.RemoteProjectID != "" {
		fmt.Fprintf(out, "Remote:     %s\n", job.RemoteProjectID)
	}
	progress := fmt.Sprintf("%.0f%%", job.ProgressPercent)
	if job.ProgressMessage != "" {
		progress += " " + job.ProgressMessage
	}
	fmt.Fprintf(out, "Progress:   %s\n", progress)
	fmt.Fprintf(out, "Uploaded:   %d/%d\n", job.UploadedCount, len(job.Manifest))
	fmt.Fprintf(out, "Downloaded: %d\n", job.DownloadedCount)
	fmt.Fprintf(out, "Created:    %s\n", formatTime(job.CreatedAt))
	if job.CompletedAt != nil {
		fmt.Fprintf(out, "Completed:  %s\n", formatTime(*job.CompletedAt))
	}
	if job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:      %s\n", job.ErrorMessage)
	}
	printFileList(out, "Failed uploads", job.FailedUploads)
	printFileList(out, "Failed downloads", job.FailedDownloads)
	if job.IsResumable() {
		fmt.Fprintf(out, "Resume with: flambient edit --resume=%d\n", job.ID)
	}
}

func printFileList(out io.Writer, title string, files []string) {
	if len(files) == 0 {
		return
	}
	fmt.Fprintf(out, "%s (%d):\n", title, len(files))
	for _, name := range files {
		fmt.Fprintf(out, "  - %s\n", name)
	}
}

func removeJob(cmd *cobra.Command, store *jobs.Store, id int64) error {
	removed, err := store.Remove(cmd.Context(), id)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(cmd.OutOrStdout(), "Job %d not found\n", id)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Job %d removed\n", id)
	return nil
}

func printEditPlan(out io.Writer, req jobs.NewJob) {
	fmt.Fprintf(out, "Project: %s\n", req.ProjectName)
	fmt.Fprintf(out, "Profile: %s\n", req.ProfileKey)
	fmt.Fprintf(out, "Input:   %s\n", req.InputDir)
	fmt.Fprintf(out, "Output:  %s\n", req.OutputDir)
	fmt.Fprintf(out, "Files:   %d\n", len(req.Manifest))
	for _, name := range req.Manifest {
		fmt.Fprintf(out, "  - %s\n", name)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
