package resilience

import "sync"

// window keeps the outcomes of the last len(failed) calls.
type window struct {
	mu       sync.Mutex
	failed   []bool
	next     int
	size     int
	failures int
}

func newWindow(n uint32) *window {
	return &window{failed: make([]bool, n)}
}

func (w *window) record(failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.size == len(w.failed) {
		if w.failed[w.next] {
			w.failures--
		}
	} else {
		w.size++
	}
	w.failed[w.next] = failed
	if failed {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.failed)
}

// ratio returns the number of recorded calls and their failure ratio.
func (w *window) ratio() (uint32, float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.size == 0 {
		return 0, 0
	}
	return uint32(w.size), float64(w.failures) / float64(w.size)
}

func (w *window) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.failed)
	w.next, w.size, w.failures = 0, 0, 0
}
