package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// runCommand runs a blocking subprocess with an explicit timeout,
// returning combined output. A timeout is reported as an error of the
// step, not a process-wide failure; callers decide whether it gates
// later steps.
func runCommand(ctx context.Context, argv []string, dir string, timeout time.Duration) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("empty command")
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, argv[0], argv[1:]...)
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return out.String(), fmt.Errorf("command %q timed out after %v", argv[0], timeout)
	}
	if err != nil {
		return out.String(), fmt.Errorf("command %q failed: %w", argv[0], err)
	}
	return out.String(), nil
}

// runShell runs a command line through the shell, for skill-declared test
// commands that are written as single strings.
func runShell(ctx context.Context, command, dir string, timeout time.Duration) (string, error) {
	return runCommand(ctx, []string{"/bin/sh", "-c", command}, dir, timeout)
}
