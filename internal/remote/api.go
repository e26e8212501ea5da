package remote

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"flambient/internal/services"
)

// Remote processing states, normalized to lower case.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Profile is an editing preset offered by the remote service.
type Profile struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// EditOptions toggles optional edits applied on top of the profile.
type EditOptions struct {
	SkyReplacement        bool `json:"sky_replacement"`
	WindowPull            bool `json:"window_pull"`
	PerspectiveCorrection bool `json:"perspective_correction"`
}

// Progress is one status observation of a remote edit or export.
type Progress struct {
	Status  string  `json:"status"`
	Percent float64 `json:"progress"`
	Message string  `json:"message,omitempty"`
}

// Done reports whether the remote work finished successfully.
func (p Progress) Done() bool { return p.Status == StatusCompleted }

// Failed reports whether the remote work failed.
func (p Progress) Failed() bool { return p.Status == StatusFailed }

// Link is a signed URL for a file stored remotely.
type Link struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

type createProjectRequest struct {
	Name string `json:"name"`
}

type createProjectResponse struct {
	ID string `json:"id"`
}

type uploadSlotsRequest struct {
	Filenames []string `json:"filenames"`
}

type startEditRequest struct {
	ProfileKey string `json:"profile_key"`
	EditOptions
}

// CreateProject registers a new remote project and returns its identifier.
func (c *Client) CreateProject(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", services.Wrap(services.ErrValidation, "remote", "create project", "project name is required", nil)
	}
	var resp createProjectResponse
	if err := c.doJSON(ctx, "POST", "/v1/projects/", createProjectRequest{Name: name}, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.ID) == "" {
		return "", services.Wrap(services.ErrRemote, "remote", "create project", "response missing project id", nil)
	}
	return resp.ID, nil
}

// Profiles lists the editing profiles available to the account.
func (c *Client) Profiles(ctx context.Context) ([]Profile, error) {
	var profiles []Profile
	if err := c.doJSON(ctx, "GET", "/v1/profiles/", nil, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// RequestUploadSlots asks for one signed upload URL per filename.
func (c *Client) RequestUploadSlots(ctx context.Context, projectID string, filenames []string) (map[string]string, error) {
	if len(filenames) == 0 {
		return map[string]string{}, nil
	}
	var links []Link
	path := projectPath(projectID, "get_temporary_upload_links/")
	if err := c.doJSON(ctx, "POST", path, uploadSlotsRequest{Filenames: filenames}, &links); err != nil {
		return nil, err
	}
	slots := make(map[string]string, len(links))
	for _, link := range links {
		if link.Filename == "" || link.URL == "" {
			continue
		}
		slots[link.Filename] = link.URL
	}
	var missing []string
	for _, name := range filenames {
		if _, ok := slots[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return slots, services.Wrap(services.ErrRemote, "remote", "upload slots",
			fmt.Sprintf("no upload url for %d file(s): %s", len(missing), strings.Join(missing, ", ")), nil)
	}
	return slots, nil
}

// StartEdit submits the uploaded project for processing with the given profile.
func (c *Client) StartEdit(ctx context.Context, projectID, profileKey string, opts EditOptions) error {
	profileKey = strings.TrimSpace(profileKey)
	if profileKey == "" {
		return services.Wrap(services.ErrValidation, "remote", "start edit", "profile key is required", nil)
	}
	req := startEditRequest{ProfileKey: profileKey, EditOptions: opts}
	return c.doJSON(ctx, "POST", projectPath(projectID, "edit/"), req, nil)
}

// EditStatus performs one status check of the edit.
func (c *Client) EditStatus(ctx context.Context, projectID string) (Progress, error) {
	return c.status(ctx, projectPath(projectID, "edit/status"))
}

// StartExport requests export of the edited images.
func (c *Client) StartExport(ctx context.Context, projectID string) error {
	return c.doJSON(ctx, "POST", projectPath(projectID, "export/"), struct{}{}, nil)
}

// ExportStatus performs one status check of the export.
func (c *Client) ExportStatus(ctx context.Context, projectID string) (Progress, error) {
	return c.status(ctx, projectPath(projectID, "export/status"))
}

// ResultLinks returns signed download URLs for every exported image.
func (c *Client) ResultLinks(ctx context.Context, projectID string) ([]Link, error) {
	var links []Link
	if err := c.doJSON(ctx, "GET", projectPath(projectID, "export/get_temporary_download_links"), nil, &links); err != nil {
		return nil, err
	}
	out := links[:0]
	for _, link := range links {
		if link.Filename != "" && link.URL != "" {
			out = append(out, link)
		}
	}
	return out, nil
}

func (c *Client) status(ctx context.Context, path string) (Progress, error) {
	var progress Progress
	if err := c.doJSON(ctx, "GET", path, nil, &progress); err != nil {
		return Progress{}, err
	}
	return normalizeProgress(progress), nil
}

func normalizeProgress(p Progress) Progress {
	status := strings.ToLower(strings.TrimSpace(p.Status))
	switch status {
	case "complete", "done", "finished", "succeeded", "success":
		status = StatusCompleted
	case "error", "errored":
		status = StatusFailed
	case "":
		status = StatusQueued
	}
	p.Status = status
	switch {
	case p.Percent < 0:
		p.Percent = 0
	case p.Percent > 100:
		p.Percent = 100
	}
	if status == StatusCompleted {
		p.Percent = 100
	}
	return p
}

func projectPath(projectID, suffix string) string {
	return "/v1/projects/" + url.PathEscape(strings.TrimSpace(projectID)) + "/" + suffix
}
