package registry

import (
	"fmt"
	"sync"
)

// Registry is the ordered, concurrently editable list of monitored programs.
// Writers are the configuration layer and the HTTP API; the supervision loop
// only ever reads it through Snapshot.
type Registry struct {
	mu       sync.RWMutex
	programs []Program
	onChange []func(Snapshot)
}

func NewRegistry(programs ...Program) *Registry {
	r := &Registry{}
	r.programs = filterValid(programs)
	return r
}

// Snapshot returns a deep copy of the current entries taken under the read lock.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(Snapshot, len(r.programs))
	copy(out, r.programs)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.programs)
}

// Get looks a program up by name (case-insensitive).
func (r *Registry) Get(name string) (Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexLocked(name)
	if i < 0 {
		return Program{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return r.programs[i], nil
}

// Add appends p. Names must be unique.
func (r *Registry) Add(p Program) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	if r.indexLocked(p.Name) >= 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicate, p.Name)
	}
	r.programs = append(r.programs, p)
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.notify(snap)
	return nil
}

// Remove deletes the program with the given name.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	i := r.indexLocked(name)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	r.programs = append(r.programs[:i:i], r.programs[i+1:]...)
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.notify(snap)
	return nil
}

// Update replaces the program called name with p, keeping its position.
func (r *Registry) Update(name string, p Program) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	i := r.indexLocked(name)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if j := r.indexLocked(p.Name); j >= 0 && j != i {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicate, p.Name)
	}
	r.programs[i] = p
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.notify(snap)
	return nil
}

func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	i := r.indexLocked(name)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	r.programs[i].Enabled = enabled
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.notify(snap)
	return nil
}

// Replace swaps the whole list, dropping invalid records. Used on config reload.
func (r *Registry) Replace(programs []Program) {
	valid := filterValid(programs)
	r.mu.Lock()
	r.programs = valid
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.notify(snap)
}

// OnChange registers fn to be called with a fresh snapshot after every edit.
// fn runs on the editing goroutine, outside the registry lock.
func (r *Registry) OnChange(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.onChange = append(r.onChange, fn)
	r.mu.Unlock()
}

func (r *Registry) notify(s Snapshot) {
	r.mu.RLock()
	fns := make([]func(Snapshot), len(r.onChange))
	copy(fns, r.onChange)
	r.mu.RUnlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (r *Registry) snapshotLocked() Snapshot {
	out := make(Snapshot, len(r.programs))
	copy(out, r.programs)
	return out
}

func (r *Registry) indexLocked(name string) int {
	for i, p := range r.programs {
		if SameName(p.Name, name) {
			return i
		}
	}
	return -1
}

func filterValid(programs []Program) []Program {
	out := make([]Program, 0, len(programs))
	for _, p := range programs {
		if p.Validate() != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}
