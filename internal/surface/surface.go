// Package surface is the passthrough drawing-surface adapter handed to the
// embedding application. It only remembers the native handle it wraps;
// every drawing call is a no-op.
package surface

import "sync"

type Surface struct {
	mu     sync.RWMutex
	handle any
}

func New() *Surface {
	return &Surface{}
}

// SetHandle stores the native handle, replacing any previous one.
func (s *Surface) SetHandle(h any) {
	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()
}

func (s *Surface) Handle() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

func (s *Surface) Resize(width, height int) {}

func (s *Surface) Invalidate() {}

func (s *Surface) Present() {}
