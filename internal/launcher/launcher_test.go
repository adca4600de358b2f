package launcher

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/loykin/procwatch/internal/logger"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

func waitForFile(t *testing.T, p string) []byte {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if b, err := os.ReadFile(p); err == nil && len(b) > 0 {
			return b
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", p)
	return nil
}

func TestStart_UsesExecutableDirAsWorkDir(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	marker := filepath.Join(dir, "cwd.txt")
	script := writeScript(t, dir, "agent.sh", "pwd > cwd.txt")

	e := New(false, logger.FileConfig{}, nil)
	begin := time.Now()
	if err := e.Start(script); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if time.Since(begin) > time.Second {
		t.Fatal("Start must not wait for the child")
	}
	got := strings.TrimSpace(string(waitForFile(t, marker)))
	want, _ := filepath.EvalSymlinks(dir)
	gotResolved, _ := filepath.EvalSymlinks(got)
	if gotResolved != want {
		t.Fatalf("child cwd=%q want %q", gotResolved, want)
	}
}

func TestStart_DoesNotWaitForLongRunningChild(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	script := writeScript(t, dir, "sleeper.sh", "sleep 5")
	e := &Exec{Background: true}
	begin := time.Now()
	if err := e.Start(script); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if d := time.Since(begin); d > time.Second {
		t.Fatalf("Start blocked for %v", d)
	}
}

func TestStart_MissingPath(t *testing.T) {
	e := &Exec{}
	err := e.Start(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := e.Start("   "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty path, got %v", err)
	}
}

func TestStart_Directory(t *testing.T) {
	e := &Exec{}
	if err := e.Start(t.TempDir()); !errors.Is(err, ErrNotRunnable) {
		t.Fatalf("expected ErrNotRunnable, got %v", err)
	}
}

func TestStart_NotExecutable(t *testing.T) {
	requireUnix(t)
	p := filepath.Join(t.TempDir(), "data.txt")
	if err := os.WriteFile(p, []byte("plain"), 0o600); err != nil {
		t.Fatal(err)
	}
	e := &Exec{}
	if err := e.Start(p); err == nil {
		t.Fatal("expected spawn error for non-executable file")
	}
}

func TestStart_CapturesOutput(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	logs := filepath.Join(dir, "logs")
	script := writeScript(t, dir, "talker.sh", "echo hello-out; echo hello-err 1>&2")
	e := New(false, logger.FileConfig{Dir: logs}, nil)
	if err := e.Start(script); err != nil {
		t.Fatalf("Start: %v", err)
	}
	out := waitForFile(t, filepath.Join(logs, "talker.sh.stdout.log"))
	if !strings.Contains(string(out), "hello-out") {
		t.Fatalf("stdout=%q", out)
	}
	errOut := waitForFile(t, filepath.Join(logs, "talker.sh.stderr.log"))
	if !strings.Contains(string(errOut), "hello-err") {
		t.Fatalf("stderr=%q", errOut)
	}
}

func TestStart_Environment(t *testing.T) {
	requireUnix(t)
	t.Setenv("PROCWATCH_PARENT_VAR", "leak")

	cases := map[string]struct {
		env     []string
		inherit bool
	}{
		"nil inherits":     {env: nil, inherit: true},
		"empty is clean":   {env: []string{}, inherit: false},
		"explicit is used": {env: []string{"ONLY=1"}, inherit: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			script := writeScript(t, dir, "env.sh", "export -p > env.txt; echo done >> env.txt")
			e := New(false, logger.FileConfig{}, nil)
			e.Env = tc.env
			if err := e.Start(script); err != nil {
				t.Fatalf("Start: %v", err)
			}
			var got string
			deadline := time.Now().Add(3 * time.Second)
			for time.Now().Before(deadline) && !strings.Contains(got, "done") {
				b, _ := os.ReadFile(filepath.Join(dir, "env.txt"))
				got = string(b)
				time.Sleep(20 * time.Millisecond)
			}
			if !strings.Contains(got, "done") {
				t.Fatalf("child never wrote its environment: %q", got)
			}
			if strings.Contains(got, "PROCWATCH_PARENT_VAR") != tc.inherit {
				t.Fatalf("inherit=%v, child env:\n%s", tc.inherit, got)
			}
			if len(tc.env) > 0 && !strings.Contains(got, "ONLY") {
				t.Fatalf("explicit variable missing:\n%s", got)
			}
		})
	}
}

func TestFunc(t *testing.T) {
	var got string
	f := Func(func(p string) error { got = p; return nil })
	if err := f.Start("/x"); err != nil || got != "/x" {
		t.Fatalf("Func adapter: got=%q err=%v", got, err)
	}
}

func TestDetachSetsAttrs(t *testing.T) {
	cmd := exec.Command("procwatch")
	Detach(cmd)
	if cmd.SysProcAttr == nil {
		t.Fatal("Detach left SysProcAttr unset")
	}
}
