package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"flambient/internal/services"
)

// Create inserts a pending job. The manifest is frozen at this point.
func (s *Store) Create(ctx context.Context, req NewJob) (*Job, error) {
	if strings.TrimSpace(req.ProjectName) == "" {
		return nil, services.Wrap(services.ErrValidation, "jobs", "create", "project name is required", nil)
	}
	if strings.TrimSpace(req.ProfileKey) == "" {
		return nil, services.Wrap(services.ErrValidation, "jobs", "create", "profile key is required", nil)
	}
	if len(req.Manifest) == 0 {
		return nil, services.Wrap(services.ErrValidation, "jobs", "create", "manifest is empty", nil)
	}

	manifestJSON, err := encodeList(req.Manifest)
	if err != nil {
		return nil, err
	}
	optionsJSON, err := encodeJSON(req.EditOptions)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            project_name, input_dir, output_dir, profile_key, edit_options_json,
            status, progress_percent, manifest_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ProjectName,
		req.InputDir,
		req.OutputDir,
		req.ProfileKey,
		optionsJSON,
		StatusPending,
		0.0,
		manifestJSON,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. A missing job returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job. Terminal records are never
// modified and status changes must satisfy CanTransition.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UploadedCount = len(job.UploadedFiles)

	uploadedJSON, err := encodeList(job.UploadedFiles)
	if err != nil {
		return err
	}
	failedUploadsJSON, err := encodeList(job.FailedUploads)
	if err != nil {
		return err
	}
	failedDownloadsJSON, err := encodeList(job.FailedDownloads)
	if err != nil {
		return err
	}
	optionsJSON, err := encodeJSON(job.EditOptions)
	if err != nil {
		return err
	}

	updatedAt := time.Now().UTC()
	err = retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var current string
		if err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, job.ID).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return services.Wrap(services.ErrNotFound, "jobs", "update", fmt.Sprintf("job %d not found", job.ID), nil)
			}
			return err
		}
		from := Status(current)
		if from.IsTerminal() {
			return fmt.Errorf("%w: job %d is %s", ErrTerminal, job.ID, from)
		}
		if !CanTransition(from, job.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, job.Status)
		}

		if _, err := tx.ExecContext(
			ctx,
			`UPDATE jobs
             SET project_name = ?, input_dir = ?, output_dir = ?, remote_project_id = ?,
                 profile_key = ?, edit_options_json = ?, status = ?, failed_status = ?,
                 progress_percent = ?, progress_message = ?, uploaded_files_json = ?,
                 downloaded_count = ?, failed_uploads_json = ?, failed_downloads_json = ?,
                 error_message = ?, started_at = ?, upload_done_at = ?, process_done_at = ?,
                 completed_at = ?, updated_at = ?
             WHERE id = ?`,
			job.ProjectName,
			job.InputDir,
			job.OutputDir,
			nullableString(job.RemoteProjectID),
			job.ProfileKey,
			optionsJSON,
			job.Status,
			nullableString(string(job.FailedStatus)),
			job.ProgressPercent,
			nullableString(job.ProgressMessage),
			uploadedJSON,
			job.DownloadedCount,
			failedUploadsJSON,
			failedDownloadsJSON,
			nullableString(job.ErrorMessage),
			nullableTime(job.StartedAt),
			nullableTime(job.UploadDoneAt),
			nullableTime(job.ProcessDoneAt),
			nullableTime(job.CompletedAt),
			updatedAt.Format(time.RFC3339Nano),
			job.ID,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("update job %d: %w", job.ID, err)
	}
	job.UpdatedAt = updatedAt
	return nil
}

// List returns jobs ordered by creation time, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Remove deletes a job record. It reports whether a row was deleted.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
