package engine

import "sync"

// State is the consumer-visible status shared by every engine component:
// a loading flag and a single error slot. The slot keeps the latest
// failure until the next successful operation clears it.
type State struct {
	mu      sync.RWMutex
	loading bool
	err     error
}

// NewState returns an idle state with an empty error slot.
func NewState() *State {
	return &State{}
}

func (s *State) SetLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func (s *State) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Fail stores err in the error slot.
func (s *State) Fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Clear empties the error slot.
func (s *State) Clear() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

// Err returns the error in the slot, or nil.
func (s *State) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Message returns the error slot as text; "" when empty.
func (s *State) Message() string {
	if err := s.Err(); err != nil {
		return err.Error()
	}
	return ""
}
