//go:build windows

package compress

import (
	"os/exec"
	"syscall"
)

// hideWindow keeps console backends from flashing a window.
func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}
