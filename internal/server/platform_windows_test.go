//go:build windows

package server

import (
	"path/filepath"
	"testing"
)

// getPlatformAbsPath returns a valid absolute path for Windows systems
func getPlatformAbsPath() string {
	return filepath.Join("C:\\", "tmp", "x")
}

func addPlatformSpecificSeeds(f *testing.F) {
	f.Add("agent.exe", `C:\Program Files\Agent\agent.exe`)
	f.Add("", `C:\Tools\worker.exe`)
}
