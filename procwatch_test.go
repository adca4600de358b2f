package procwatch

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/procwatch/internal/watchdog"
)

type failures struct {
	watchdog.NopObserver
	mu    sync.Mutex
	names []string
}

func (f *failures) ProgramStartFailed(name string, _ error) {
	f.mu.Lock()
	f.names = append(f.names, name)
	f.mu.Unlock()
}

func (f *failures) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.names)
}

func TestWatchdogFacade(t *testing.T) {
	missing, _ := filepath.Abs(filepath.Join(t.TempDir(), "procwatch-facade-missing"))
	p, err := NewProgram("", missing, true)
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}
	obs := &failures{}
	w := New(DefaultTiming(), NewRegistry(p), Options{Observer: obs})

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.Start(); err != ErrAlreadyRunning {
		t.Fatalf("second start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for obs.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if obs.count() == 0 {
		t.Fatal("expected a failed launch for a missing program")
	}
	if err := w.Stop(time.Second); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if w.Running() {
		t.Fatal("still running after Stop")
	}
	if st := w.Status(); st.Failures == 0 || st.State != watchdog.LifecycleStopped {
		t.Fatalf("unexpected status: %+v", st)
	}
	if err := w.Stop(0); err != ErrNotRunning {
		t.Fatalf("stop when idle: %v", err)
	}
}

func TestHTTPHandlerFacade(t *testing.T) {
	reg := NewRegistry()
	w := New(DefaultTiming(), reg, Options{})
	srv := httptest.NewServer(NewHTTPHandler(reg, w, "/api"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
}

func TestConfigFacade(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "procwatch.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Settings.CheckCycleSec != 60 {
		t.Fatalf("unexpected defaults: %+v", c.Settings)
	}
}

func TestMetricsFacade(t *testing.T) {
	if err := RegisterMetrics(prometheus.NewRegistry()); err != nil {
		t.Fatalf("RegisterMetrics: %v", err)
	}
	if MetricsHandler() == nil {
		t.Fatal("nil metrics handler")
	}
}
