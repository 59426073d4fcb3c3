package media

import (
	"strings"
	"sync"
)

// DefaultStderrTail is how much child process output is kept for errors.
const DefaultStderrTail = 8 << 10

// StderrTail keeps the last Limit bytes written to it. exec copies a child's
// stderr into it from its own goroutine, so reads are safe while the child
// is still running.
type StderrTail struct {
	Limit int

	mu  sync.Mutex
	buf []byte
}

func NewStderrTail(limit int) *StderrTail {
	if limit <= 0 {
		limit = DefaultStderrTail
	}
	return &StderrTail{Limit: limit}
}

func (t *StderrTail) Write(p []byte) (int, error) {
	n := len(p)
	limit := t.Limit
	if limit <= 0 {
		limit = DefaultStderrTail
	}
	if len(p) > limit {
		p = p[len(p)-limit:]
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return n, nil
}

func (t *StderrTail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buf)
}

// String returns the retained output with surrounding space trimmed.
func (t *StderrTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
