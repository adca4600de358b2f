package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound  = errors.New("program not found")
	ErrDuplicate = errors.New("program already registered")
	ErrInvalid   = errors.New("invalid program")
)

// Program is one monitored executable.
// Name is the process image name searched for in the process table;
// it is compared case-insensitively.
type Program struct {
	Name    string `json:"name" mapstructure:"name"`
	Path    string `json:"path" mapstructure:"path"`
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
}

// Snapshot is a point-in-time copy of the registry used for one check cycle.
type Snapshot []Program

// Len reports the number of programs in the snapshot.
func (s Snapshot) Len() int { return len(s) }

// At returns the program at i and whether i is in range.
func (s Snapshot) At(i int) (Program, bool) {
	if i < 0 || i >= len(s) {
		return Program{}, false
	}
	return s[i], true
}

// NameFromPath returns the file component of path. Both slash styles are
// accepted so that Windows paths in a config file work on any host.
func NameFromPath(path string) string {
	p := strings.TrimSpace(path)
	p = strings.TrimRight(p, `/\`)
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		p = p[i+1:]
	}
	return p
}

// New builds a program record from path, deriving the name when empty.
func New(name, path string, enabled bool) (Program, error) {
	p := Program{
		Name:    strings.TrimSpace(name),
		Path:    strings.TrimSpace(path),
		Enabled: enabled,
	}
	if p.Name == "" {
		p.Name = NameFromPath(p.Path)
	}
	if err := p.Validate(); err != nil {
		return Program{}, err
	}
	return p, nil
}

func (p Program) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("%w: path required", ErrInvalid)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: name required for %s", ErrInvalid, p.Path)
	}
	return nil
}

// WithPath points p at path. When the path changes the name is derived from
// the new file name, since the probe looks processes up by that name.
func (p Program) WithPath(path string) Program {
	path = strings.TrimSpace(path)
	if path == "" || path == p.Path {
		return p
	}
	p.Path = path
	p.Name = NameFromPath(path)
	return p
}

// SameName compares process names the way the probe does.
func SameName(a, b string) bool { return strings.EqualFold(a, b) }
