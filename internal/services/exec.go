package services

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Executor abstracts external command execution so tool wrappers can be tested
// without the real binaries installed.
type Executor interface {
	// Output runs binary with args and returns its stdout. A non-zero exit is
	// returned as an error carrying the trimmed stderr.
	Output(ctx context.Context, binary string, args ...string) ([]byte, error)
}

// CommandExecutor runs commands through os/exec.
type CommandExecutor struct{}

func (CommandExecutor) Output(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			return stdout.Bytes(), fmt.Errorf("%s: %w", binary, err)
		}
		return stdout.Bytes(), fmt.Errorf("%s: %w: %s", binary, err, detail)
	}
	return stdout.Bytes(), nil
}
