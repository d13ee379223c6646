package worker

import (
	"sync"
	"time"
)

// DefaultOutputLines is the default number of output lines retained.
const DefaultOutputLines = 1000

// Stream identifies which pipe a line came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Line is one retained line of backend output.
type Line struct {
	Stream Stream    `json:"stream"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
	RunID  string    `json:"run_id,omitempty"`
}

// OutputBuffer is a thread-safe circular buffer of the most recent output
// lines. It overwrites the oldest line when full.
type OutputBuffer struct {
	// +checklocks:mu
	lines []Line
	size  int // immutable after creation
	// +checklocks:mu
	head int
	// +checklocks:mu
	count int
	// +checklocks:mu
	total int64
	mu    sync.RWMutex
}

// NewOutputBuffer creates a buffer holding size lines.
// If size <= 0, DefaultOutputLines is used.
func NewOutputBuffer(size int) *OutputBuffer {
	if size <= 0 {
		size = DefaultOutputLines
	}
	return &OutputBuffer{
		lines: make([]Line, size),
		size:  size,
	}
}

// Add appends a line.
func (b *OutputBuffer) Add(l Line) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines[b.head] = l
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
	b.total++
}

// Lines returns the last n lines, oldest first.
// If n <= 0 or n > Len, all stored lines are returned.
func (b *OutputBuffer) Lines(n int) []Line {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || n > b.count {
		n = b.count
	}
	if n == 0 {
		return nil
	}

	// head is the next write position, so the newest line sits just before it.
	start := (b.head - n + b.size) % b.size
	out := make([]Line, n)
	for i := 0; i < n; i++ {
		out[i] = b.lines[(start+i)%b.size]
	}
	return out
}

// Len returns the number of lines currently stored.
func (b *OutputBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the maximum number of lines the buffer can hold.
func (b *OutputBuffer) Cap() int {
	return b.size
}

// Total returns how many lines were ever added, including overwritten ones.
func (b *OutputBuffer) Total() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}

// Clear removes all lines.
func (b *OutputBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.lines {
		b.lines[i] = Line{}
	}
	b.head = 0
	b.count = 0
}
