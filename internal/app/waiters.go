package service

import "sync"

// waiters wakes callers blocked on an assessment reaching a terminal status.
type waiters struct {
	mu sync.Mutex
	m  map[string]map[chan struct{}]struct{}
}

func newWaiters() *waiters {
	return &waiters{m: make(map[string]map[chan struct{}]struct{})}
}

// add registers interest in id. The returned func must be called once the
// caller stops waiting.
func (w *waiters) add(id string) (<-chan struct{}, func()) {
	ch := make(chan struct{})
	w.mu.Lock()
	set, ok := w.m[id]
	if !ok {
		set = make(map[chan struct{}]struct{})
		w.m[id] = set
	}
	set[ch] = struct{}{}
	w.mu.Unlock()

	return ch, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if set, ok := w.m[id]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(w.m, id)
			}
		}
	}
}

func (w *waiters) wake(id string) {
	w.mu.Lock()
	set := w.m[id]
	delete(w.m, id)
	w.mu.Unlock()

	for ch := range set {
		close(ch)
	}
}

func (w *waiters) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, set := range w.m {
		n += len(set)
	}
	return n
}
