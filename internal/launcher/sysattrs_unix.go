//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr detaches background children into their own session.
// Foreground children get their own process group so a Ctrl-C aimed at the
// watchdog leaves them running.
func configureSysProcAttr(cmd *exec.Cmd, background bool) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: background, Setpgid: !background}
}
