package replicator

import (
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Cursor tracks which source signatures have already been handled, per
// watched address. Entries are evicted oldest-first once an address exceeds
// the capacity: only recent replay protection matters, since the signature
// query itself is bounded. In-memory only; a restart replays recent history,
// which is a documented limitation of this design.
type Cursor struct {
	mu       sync.Mutex
	capacity int
	seen     map[solana.PublicKey]*seenSet
}

type seenSet struct {
	members map[solana.Signature]struct{}
	order   []solana.Signature
}

// NewCursor builds a cursor retaining up to capacity signatures per address.
func NewCursor(capacity int) *Cursor {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Cursor{
		capacity: capacity,
		seen:     make(map[solana.PublicKey]*seenSet),
	}
}

// Seen reports whether a signature was already handled for an address.
func (c *Cursor) Seen(address solana.PublicKey, signature solana.Signature) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.seen[address]
	if !ok {
		return false
	}
	_, ok = set.members[signature]
	return ok
}

// MarkSeen records a signature as handled. Marking is at-most-once per
// (address, signature) pair even under concurrent callers.
func (c *Cursor) MarkSeen(address solana.PublicKey, signature solana.Signature) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.seen[address]
	if !ok {
		set = &seenSet{members: make(map[solana.Signature]struct{})}
		c.seen[address] = set
	}
	if _, dup := set.members[signature]; dup {
		return
	}

	set.members[signature] = struct{}{}
	set.order = append(set.order, signature)

	for len(set.order) > c.capacity {
		oldest := set.order[0]
		set.order = set.order[1:]
		delete(set.members, oldest)
	}
}

// Len reports how many signatures are retained for an address.
func (c *Cursor) Len(address solana.PublicKey) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.seen[address]
	if !ok {
		return 0
	}
	return len(set.members)
}
