package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"flambient/internal/config"
	"flambient/internal/deps"
	"flambient/internal/remote"
	"flambient/internal/services"
)

const remoteCheckTimeout = 30 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckReadableDirectory verifies that the directory exists and can be listed.
func CheckReadableDirectory(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "read ok")
}

func checkDirectory(name, path string, mode uint32, ok string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, ok)}
}

// CheckWritableTarget accepts a directory that exists and is writable, or one
// that does not exist yet but whose nearest existing parent is writable.
func CheckWritableTarget(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	if _, err := os.Stat(path); err == nil {
		return CheckDirectoryAccess(name, path)
	}
	parent := filepath.Clean(path)
	for {
		next := filepath.Dir(parent)
		if next == parent {
			break
		}
		parent = next
		if _, err := os.Stat(parent); err == nil {
			break
		}
	}
	res := CheckDirectoryAccess(name, parent)
	if !res.Passed {
		return res
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
}

// CheckTools verifies the external binaries the command will invoke.
func CheckTools(cfg *config.Config, opts Options) []Result {
	var reqs []deps.Requirement
	if opts.Blend {
		reqs = append(reqs, deps.Requirement{
			Name:        "ExifTool",
			Command:     cfg.Tools.ExifTool,
			Description: "Required for reading exposure metadata",
		})
	}
	if opts.Render {
		reqs = append(reqs, deps.Requirement{
			Name:        "ImageMagick",
			Command:     cfg.Tools.Magick,
			Description: "Required for rendering blends",
		})
	}
	statuses := deps.CheckBinaries(reqs)
	results := make([]Result, 0, len(statuses))
	for _, s := range statuses {
		if s.Available {
			results = append(results, Result{Name: s.Name, Passed: true, Detail: s.Path})
			continue
		}
		results = append(results, Result{Name: s.Name, Detail: fmt.Sprintf("%s (%s)", s.Detail, s.Description)})
	}
	return results
}

// CheckRemote verifies that the editing API is reachable and the key is
// accepted. It makes a single attempt with no retries.
func CheckRemote(ctx context.Context, cfg *config.Config) Result {
	const name = "Editing API"

	if err := cfg.RequireRemote(); err != nil {
		return Result{Name: name, Detail: "API key missing"}
	}

	timeout := cfg.RemoteTimeout()
	if timeout <= 0 || timeout > remoteCheckTimeout {
		timeout = remoteCheckTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := remote.NewClient(remote.Config{
		BaseURL:        cfg.Remote.BaseURL,
		APIKey:         cfg.Remote.APIKey,
		TimeoutSeconds: cfg.Remote.TimeoutSeconds,
	}, remote.WithRetryMaxAttempts(1))

	profiles, err := client.Profiles(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeRemoteError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (%d profiles)", len(profiles))}
}

func summarizeRemoteError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	if errors.Is(err, services.ErrConfiguration) {
		return "API key rejected"
	}
	return err.Error()
}
