package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

type fakeProc struct {
	name string
	err  error
}

func (f fakeProc) NameWithContext(context.Context) (string, error) { return f.name, f.err }

func fakeList(ps ...namedProcess) lister {
	return func(context.Context) ([]namedProcess, error) { return ps, nil }
}

func TestNameProbe_CaseInsensitive(t *testing.T) {
	p := &NameProbe{list: fakeList(fakeProc{name: "Agent.EXE"}, fakeProc{name: "other"})}
	if !p.IsRunning("agent.exe") {
		t.Fatal("expected case-insensitive match")
	}
	if p.IsRunning("agent") {
		t.Fatal("prefix must not match")
	}
	if p.IsRunning("") {
		t.Fatal("empty name never matches")
	}
}

func TestNameProbe_SkipsPerProcessErrors(t *testing.T) {
	p := &NameProbe{list: fakeList(
		fakeProc{err: errors.New("process exited")},
		fakeProc{name: "", err: errors.New("permission denied")},
		fakeProc{name: "target"},
	)}
	if !p.IsRunning("target") {
		t.Fatal("errors on other processes must not hide a match")
	}
}

func TestNameProbe_EnumerationFailure(t *testing.T) {
	p := &NameProbe{list: func(context.Context) ([]namedProcess, error) {
		return nil, errors.New("api unavailable")
	}}
	if p.IsRunning("anything") {
		t.Fatal("enumeration failure must report not running")
	}
}

func TestNameProbe_RealProcessTable(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("process name of the test binary is only predictable on linux")
	}
	exe, err := os.Executable()
	if err != nil {
		t.Skipf("executable: %v", err)
	}
	self := filepath.Base(exe)
	if len(self) > 15 {
		t.Skip("kernel comm name is truncated")
	}
	p := NewNameProbe(nil)
	if !p.IsRunning(strings.ToUpper(self)) {
		t.Fatalf("expected own process %q to be found", self)
	}
	if p.IsRunning("__definitely_not_running__") {
		t.Fatal("unexpected match for a bogus name")
	}
}

func TestFunc(t *testing.T) {
	f := Func(func(n string) bool { return n == "x" })
	if !f.IsRunning("x") || f.IsRunning("y") {
		t.Fatal("Func adapter mismatch")
	}
	if f.Describe() != "func" {
		t.Fatalf("Describe=%q", f.Describe())
	}
}
