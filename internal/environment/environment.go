// Package environment holds the active environment and the chain
// bindings derived from response extraction. The store is a shared,
// single-writer-many-reader resource: the chain extractor is the only
// writer of derived bindings, and every pipeline invocation takes a
// copied snapshot up front so switching environments never affects an
// in-flight execution.
package environment

import (
	"fmt"
	"sync"

	"github.com/studiowebux/postdad/internal/types"
)

// Store manages the loaded environments, the active selection and the
// chain-derived binding overlay. All methods are safe for concurrent
// use.
type Store struct {
	mu     sync.RWMutex
	envs   map[string]types.Environment
	order  []string
	active string
	chain  map[string]string
}

// NewStore creates a store over the given environments. The first
// environment becomes active; with none loaded the store behaves as
// an empty environment.
func NewStore(envs ...types.Environment) *Store {
	s := &Store{
		envs:  make(map[string]types.Environment, len(envs)),
		chain: make(map[string]string),
	}
	for _, e := range envs {
		if _, ok := s.envs[e.Name]; !ok {
			s.order = append(s.order, e.Name)
		}
		s.envs[e.Name] = e
	}
	if len(s.order) > 0 {
		s.active = s.order[0]
	}
	return s
}

// Names returns the environment names in load order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Activate switches the active environment. The switch is atomic with
// respect to Snapshot: executions resolved before the switch keep
// their old bindings.
func (s *Store) Activate(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.envs[name]; !ok {
		return fmt.Errorf("unknown environment: %s", name)
	}
	s.active = name
	return nil
}

// Active returns a copy of the active environment.
func (s *Store) Active() types.Environment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env := s.envs[s.active]
	out := types.Environment{Name: env.Name, BaseURL: env.BaseURL}
	if env.Variables != nil {
		out.Variables = make(map[string]string, len(env.Variables))
		for k, v := range env.Variables {
			out.Variables[k] = v
		}
	}
	return out
}

// Snapshot returns independent copies of the active environment's
// bindings and the chain overlay, the inputs to one resolution pass.
// Later writes to the store are invisible to the returned maps.
func (s *Store) Snapshot() (env map[string]string, chain map[string]string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := s.envs[s.active]
	env = active.Bindings()
	chain = make(map[string]string, len(s.chain))
	for k, v := range s.chain {
		chain[k] = v
	}
	return env, chain
}

// SetChainBinding records a chain-derived binding. It becomes visible
// to the next Snapshot, never retroactively to snapshots already
// taken.
func (s *Store) SetChainBinding(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chain[name] = value
}

// ChainBindings returns a copy of the current chain overlay.
func (s *Store) ChainBindings() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.chain))
	for k, v := range s.chain {
		out[k] = v
	}
	return out
}

// ClearChainBindings drops the overlay, typically on environment
// switch or at the start of a fresh collection run.
func (s *Store) ClearChainBindings() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chain = make(map[string]string)
}
