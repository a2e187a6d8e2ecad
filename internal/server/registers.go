package server

import (
	"fmt"
	"sync"
)

// Register is a shared nullable integer. The zero value is unset.
type Register struct {
	mu    sync.Mutex
	value *int64
}

// SetIfUnset stores n only when the register is unset and returns the
// stored value either way.
func (r *Register) SetIfUnset(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.value == nil {
		r.value = &n
	}
	return *r.value
}

// Force overwrites the register unconditionally.
func (r *Register) Force(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value = &n
}

// Reset clears the register back to unset.
func (r *Register) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value = nil
}

// Peek returns the current value without modifying it.
func (r *Register) Peek() (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.value == nil {
		return 0, false
	}
	return *r.value, true
}

// Increment bumps the register, initializing an unset register to zero.
func (r *Register) Increment() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var next int64
	if r.value != nil {
		next = *r.value + 1
	}
	r.value = &next
	return next
}

// renderOption keeps the downstream-visible Some(n)/None rendering.
func renderOption(v int64, ok bool) string {
	if !ok {
		return "None"
	}
	return fmt.Sprintf("Some(%d)", v)
}
