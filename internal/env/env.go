package env

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Env composes the environment handed to launched programs: the watchdog's own
// environment (optional), then .env files, then explicit KEY=VALUE entries.
type Env struct {
	inherit bool
	vars    map[string]string
}

func New(inheritOS bool) *Env {
	return &Env{inherit: inheritOS, vars: map[string]string{}}
}

// Set overrides a single variable. Empty keys are ignored.
func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	e.vars[k] = v
}

// Apply sets every well-formed KEY=VALUE pair; malformed entries are skipped.
func (e *Env) Apply(pairs []string) {
	for _, kv := range pairs {
		if k, v, ok := strings.Cut(kv, "="); ok {
			e.Set(strings.TrimSpace(k), v)
		}
	}
}

// LoadFile applies a simple .env file: KEY=VALUE lines, # comments, optional
// "export " prefix and surrounding quotes on values.
func (e *Env) LoadFile(path string) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		s = strings.TrimPrefix(s, "export ")
		k, v, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("%s:%d: expected KEY=VALUE", path, line)
		}
		e.Set(strings.TrimSpace(k), unquote(strings.TrimSpace(v)))
	}
	return sc.Err()
}

// Empty reports whether launching with this Env would differ from inheriting
// the watchdog's environment unchanged.
func (e *Env) Empty() bool { return e.inherit && len(e.vars) == 0 }

// List returns sorted KEY=VALUE pairs with ${VAR} and $VAR references expanded
// against the composed set. Unknown references expand to "".
func (e *Env) List() []string {
	m := make(map[string]string)
	if e.inherit {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
				m[k] = v
			}
		}
	}
	for k, v := range e.vars {
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+os.Expand(v, func(ref string) string { return m[ref] }))
	}
	sort.Strings(out)
	return out
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}
