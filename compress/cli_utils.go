package compress

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// execCommand runs a command, killing it when timeout elapses or ctx is done.
// A zero timeout leaves only ctx in charge.
func execCommand(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	hideWindow(cmd)
	output, err := cmd.CombinedOutput()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return output, fmt.Errorf("%s timed out after %v", name, timeout)
	}
	if ctx.Err() != nil {
		return output, ctx.Err()
	}

	if err != nil {
		return output, fmt.Errorf("%s failed: %w", name, err)
	}

	return output, nil
}

// trimOutput keeps command output short enough for an error message.
func trimOutput(output []byte) string {
	const max = 200
	if len(output) > max {
		return string(output[:max]) + "..."
	}
	return string(output)
}
