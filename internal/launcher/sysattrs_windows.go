//go:build windows

package launcher

import (
	"os/exec"
	"syscall"
)

const (
	createNewProcessGroup = 0x00000200
	createNoWindow        = 0x08000000
)

// configureSysProcAttr keeps the child out of the watchdog's console control
// group. Background children get no console window at all.
func configureSysProcAttr(cmd *exec.Cmd, background bool) {
	flags := uint32(createNewProcessGroup)
	if background {
		flags |= createNoWindow
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: flags, HideWindow: background}
}
