//go:build !windows

package server

import (
	"path/filepath"
	"testing"
)

// getPlatformAbsPath returns a valid absolute path for Unix systems
func getPlatformAbsPath() string {
	return filepath.Join(string(filepath.Separator), "tmp", "x")
}

func addPlatformSpecificSeeds(f *testing.F) {
	f.Add("agent", "/opt/agent/agent")
	f.Add("", "/usr/local/bin/worker")
}
