package ml

import (
	"sync"

	"github.com/viniciushammett/go-threat-monitor/internal/features"
)

// Window is a fixed-capacity ring of feature vectors; the oldest entry is
// overwritten once it is full.
type Window struct {
	mu   sync.Mutex
	data []features.Vector
	size int
	pos  int
	full bool
}

func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{data: make([]features.Vector, size), size: size}
}

func (w *Window) Push(v features.Vector) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data[w.pos] = v
	w.pos = (w.pos + 1) % w.size
	if w.pos == 0 {
		w.full = true
	}
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.full {
		return w.size
	}
	return w.pos
}

func (w *Window) Cap() int { return w.size }

// Snapshot copies the contents, oldest first.
func (w *Window) Snapshot() []features.Vector {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.full {
		out := make([]features.Vector, w.pos)
		copy(out, w.data[:w.pos])
		return out
	}
	out := make([]features.Vector, 0, w.size)
	out = append(out, w.data[w.pos:]...)
	return append(out, w.data[:w.pos]...)
}
