package pipeline

import (
	"strings"
	"sync"
)

// Carryover holds the trailing recognized text handed to the next job as a
// recognition hint.
type Carryover struct {
	mu    sync.Mutex
	limit int
	value string
}

func NewCarryover(limit int) *Carryover {
	if limit <= 0 {
		limit = 200
	}
	return &Carryover{limit: limit}
}

func (c *Carryover) Snapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Update replaces the value with the trailing bound of text and returns it.
func (c *Carryover) Update(text string) string {
	bounded := TrailingBound(text, c.limit)
	c.mu.Lock()
	c.value = bounded
	c.mu.Unlock()
	return bounded
}

func (c *Carryover) Reset() {
	c.mu.Lock()
	c.value = ""
	c.mu.Unlock()
}

// TrailingBound returns the last n runes of s with surrounding whitespace
// removed.
func TrailingBound(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[len(r)-n:]))
}
