// Package history keeps a bounded log of recent conversation turns per
// identity.
package history

import (
	"github.com/celerix-dev/celerix-companion/internal/engine"
)

// DefaultLimit is the number of turns kept per identity.
const DefaultLimit = 20

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Buffer owns per-identity turn logs, oldest first.
type Buffer struct {
	store engine.Store[[]Turn]
	limit int
}

// NewBuffer returns a buffer over store that keeps at most limit turns per
// identity. A non-positive limit selects DefaultLimit.
func NewBuffer(store engine.Store[[]Turn], limit int) *Buffer {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Buffer{store: store, limit: limit}
}

// Limit returns the per-identity cap.
func (b *Buffer) Limit() int { return b.limit }

// Append records one exchange and evicts the oldest turns beyond the cap.
func (b *Buffer) Append(id engine.Identity, user, assistant Turn) {
	b.store.Update(id, func(cur []Turn, _ bool) []Turn {
		next := make([]Turn, 0, len(cur)+2)
		next = append(next, cur...)
		next = append(next, user, assistant)
		if over := len(next) - b.limit; over > 0 {
			next = next[over:]
		}
		return next
	})
}

// Recent returns a copy of at most n of the newest turns. n <= 0 returns all.
func (b *Buffer) Recent(id engine.Identity, n int) []Turn {
	turns, ok := b.store.Get(id)
	if !ok {
		return nil
	}
	return Tail(turns, n)
}

// Len returns the number of stored turns for id.
func (b *Buffer) Len(id engine.Identity) int {
	turns, _ := b.store.Get(id)
	return len(turns)
}

// Tail copies at most n of the newest turns. n <= 0 copies all.
func Tail(turns []Turn, n int) []Turn {
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
