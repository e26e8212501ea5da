package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, project_name, input_dir, output_dir, remote_project_id, profile_key, edit_options_json, status, failed_status, progress_percent, progress_message, manifest_json, uploaded_files_json, downloaded_count, failed_uploads_json, failed_downloads_json, error_message, started_at, upload_done_at, process_done_at, completed_at, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              int64
		projectName     string
		inputDir        string
		outputDir       string
		remoteProjectID sql.NullString
		profileKey      string
		editOptions     sql.NullString
		statusStr       string
		failedStatus    sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		manifest        string
		uploadedFiles   sql.NullString
		downloadedCount int
		failedUploads   sql.NullString
		failedDownloads sql.NullString
		errorMessage    sql.NullString
		startedRaw      sql.NullString
		uploadDoneRaw   sql.NullString
		processDoneRaw  sql.NullString
		completedRaw    sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&projectName,
		&inputDir,
		&outputDir,
		&remoteProjectID,
		&profileKey,
		&editOptions,
		&statusStr,
		&failedStatus,
		&progressPercent,
		&progressMessage,
		&manifest,
		&uploadedFiles,
		&downloadedCount,
		&failedUploads,
		&failedDownloads,
		&errorMessage,
		&startedRaw,
		&uploadDoneRaw,
		&processDoneRaw,
		&completedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		ProjectName:     projectName,
		InputDir:        inputDir,
		OutputDir:       outputDir,
		RemoteProjectID: remoteProjectID.String,
		ProfileKey:      profileKey,
		Status:          Status(statusStr),
		FailedStatus:    Status(failedStatus.String),
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		DownloadedCount: downloadedCount,
		ErrorMessage:    errorMessage.String,
		StartedAt:       parseNullableTime(startedRaw),
		UploadDoneAt:    parseNullableTime(uploadDoneRaw),
		ProcessDoneAt:   parseNullableTime(processDoneRaw),
		CompletedAt:     parseNullableTime(completedRaw),
	}

	var err error
	if job.Manifest, err = decodeList(manifest); err != nil {
		return nil, fmt.Errorf("decode manifest for job %d: %w", id, err)
	}
	if job.UploadedFiles, err = decodeList(uploadedFiles.String); err != nil {
		return nil, fmt.Errorf("decode uploaded files for job %d: %w", id, err)
	}
	if job.FailedUploads, err = decodeList(failedUploads.String); err != nil {
		return nil, fmt.Errorf("decode failed uploads for job %d: %w", id, err)
	}
	if job.FailedDownloads, err = decodeList(failedDownloads.String); err != nil {
		return nil, fmt.Errorf("decode failed downloads for job %d: %w", id, err)
	}
	if editOptions.String != "" {
		if err := json.Unmarshal([]byte(editOptions.String), &job.EditOptions); err != nil {
			return nil, fmt.Errorf("decode edit options for job %d: %w", id, err)
		}
	}
	job.UploadedCount = len(job.UploadedFiles)

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	return encodeJSON(values)
}

func encodeJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode json column: %w", err)
	}
	return string(data), nil
}

func decodeList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	t, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
