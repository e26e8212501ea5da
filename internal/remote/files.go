package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"flambient/internal/fileutil"
	"flambient/internal/logging"
	"flambient/internal/services"
)

// UploadFile PUTs the raw bytes of localPath to a signed URL. The request
// carries only the body and its length: signed URLs reject extra headers.
func (c *Client) UploadFile(ctx context.Context, signedURL, localPath string) error {
	op := "upload " + filepath.Base(localPath)
	info, err := os.Stat(localPath)
	if err != nil {
		return services.Wrap(services.ErrNotFound, "remote", op, "stat upload source", err)
	}
	if !info.Mode().IsRegular() {
		return services.Wrap(services.ErrValidation, "remote", op, "upload source is not a regular file", nil)
	}

	err = c.withRetry(ctx, op, func() error {
		file, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		defer file.Close()

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, signedURL, file)
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.ContentLength = info.Size()
		// An empty value suppresses the default Go user agent.
		req.Header["User-Agent"] = []string{""}

		resp, err := c.transferClient.Do(req)
		if err != nil {
			return fmt.Errorf("put: %w", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
		if resp.StatusCode >= http.StatusMultipleChoices {
			return newStatusError(resp, body)
		}
		return nil
	})
	if err != nil {
		return classifyTransfer(op, err)
	}
	c.logger.Debug("file uploaded",
		logging.String("file", filepath.Base(localPath)),
		logging.Int64("bytes", info.Size()),
	)
	return nil
}

// DownloadFile fetches a signed URL into destDir/filename. An existing file
// is left untouched and its path returned. Data is written to a temp file and
// renamed so a partial download never appears under the final name.
func (c *Client) DownloadFile(ctx context.Context, signedURL, destDir, filename string) (string, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	op := "download " + name
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", services.Wrap(services.ErrValidation, "remote", "download", fmt.Sprintf("invalid filename %q", filename), nil)
	}
	target := filepath.Join(destDir, name)
	exists, err := fileutil.Exists(target)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "remote", op, "inspect destination", err)
	}
	if exists {
		c.logger.Debug("download skipped, file exists", logging.String("file", name))
		return target, nil
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "remote", op, "create destination dir", err)
	}

	var written int64
	err = c.withRetry(ctx, op, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		resp, err := c.transferClient.Do(req)
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusMultipleChoices {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
			return newStatusError(resp, body)
		}
		n, err := fileutil.WriteStreamAtomic(target, resp.Body, resp.ContentLength, 0o644)
		if err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		written = n
		return nil
	})
	if err != nil {
		return "", classifyTransfer(op, err)
	}
	c.logger.Debug("file downloaded", logging.String("file", name), logging.Int64("bytes", written))
	return target, nil
}

// classifyTransfer is classify for signed URLs, where an auth failure means
// the link expired rather than a bad API key.
func classifyTransfer(op string, err error) error {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) &&
		(statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden) {
		return services.Wrap(services.ErrRemote, "remote", op, "signed url rejected", err)
	}
	return classify(op, err)
}
