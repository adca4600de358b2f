package probe

import (
	"context"
	"log/slog"
	"strings"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/procwatch/internal/metrics"
)

// Probe determines whether a process with a given image name is running.
// It must be safe for concurrent use.
type Probe interface {
	// IsRunning reports whether a process called name is in the process table.
	IsRunning(name string) bool
	// Describe returns a human-readable description of the detection method.
	Describe() string
}

// namedProcess is the part of a gopsutil process the probe needs.
type namedProcess interface {
	NameWithContext(ctx context.Context) (string, error)
}

// lister enumerates the process table.
type lister func(ctx context.Context) ([]namedProcess, error)

func gopsutilLister(ctx context.Context) ([]namedProcess, error) {
	ps, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]namedProcess, len(ps))
	for i, p := range ps {
		out[i] = p
	}
	return out, nil
}

// NameProbe scans the OS process table and matches process names
// case-insensitively.
type NameProbe struct {
	Timeout time.Duration // per-scan budget; 0 means 5s
	Logger  *slog.Logger

	list lister
}

func NewNameProbe(logger *slog.Logger) *NameProbe {
	return &NameProbe{Logger: logger}
}

func (p *NameProbe) IsRunning(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	list := p.list
	if list == nil {
		list = gopsutilLister
	}
	procs, err := list(ctx)
	if err != nil {
		p.logger().Error("process enumeration failed", "name", name, "error", err)
		metrics.IncProbeError()
		return false
	}
	for _, proc := range procs {
		pn, err := proc.NameWithContext(ctx)
		if err != nil {
			// exited mid-scan or access denied
			continue
		}
		if strings.EqualFold(pn, name) {
			metrics.ObserveProbe(true)
			return true
		}
	}
	metrics.ObserveProbe(false)
	return false
}

func (p *NameProbe) Describe() string { return "name:process-table" }

func (p *NameProbe) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Func adapts a plain function to Probe.
type Func func(name string) bool

func (f Func) IsRunning(name string) bool { return f(name) }
func (f Func) Describe() string           { return "func" }
