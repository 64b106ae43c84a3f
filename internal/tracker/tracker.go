// Package tracker keeps the per-challenge bookkeeping of which work items
// are solved, in progress, or idle. All state is scoped to the current
// challenge and wiped in full on every challenge transition.
package tracker

import (
	"sync"

	"github.com/mineworks/scavengerd/internal/domain"
)

// ReceiptCheck reports whether an external receipt already exists for the
// given address under the current challenge. Supplied by the caller; the
// tracker does not own receipt storage.
type ReceiptCheck func(address string) bool

// Tracker assigns work items to callers with at-most-one-claimant semantics.
// An item is in at most one of {solved, in progress} at any time.
//
// Every claim and mark carries the challenge ID the caller is working
// under. A call whose ID does not match the tracker's current scope is a
// no-op: a worker that finished an item for a retired challenge cannot
// poison the state of the challenge that replaced it.
type Tracker struct {
	mu         sync.Mutex
	scope      string
	items      []domain.WorkItem
	solved     map[string]bool
	inProgress map[string]bool
}

// New creates a Tracker over the externally supplied, index-ordered item
// list. The fee item must not be included; it is dispatched out-of-band.
// The tracker starts unscoped; Reset binds it to a challenge.
func New(items []domain.WorkItem) *Tracker {
	return &Tracker{
		items:      items,
		solved:     make(map[string]bool),
		inProgress: make(map[string]bool),
	}
}

// ClaimNext scans items in stable index order and claims the first one that
// is neither solved nor in progress. Items with an existing external receipt
// are marked solved without re-mining. Claim-and-mark is a single atomic
// region so no two callers can claim the same item. A caller bound to a
// challenge other than the current scope gets nothing.
func (t *Tracker) ClaimNext(challengeID string, hasReceipt ReceiptCheck) (*domain.WorkItem, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if challengeID != t.scope {
		return nil, false
	}

	for i := range t.items {
		item := &t.items[i]
		if t.solved[item.Address] || t.inProgress[item.Address] {
			continue
		}
		if hasReceipt != nil && hasReceipt(item.Address) {
			t.solved[item.Address] = true
			continue
		}
		t.inProgress[item.Address] = true
		claimed := *item
		return &claimed, true
	}
	return nil, false
}

// Release returns an item to the idle pool. Called from the guaranteed
// cleanup path of every worker attempt so an item is never stuck in
// progress after an error. Releases against a retired scope are no-ops.
func (t *Tracker) Release(challengeID string, item domain.WorkItem) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if challengeID != t.scope {
		return
	}
	delete(t.inProgress, item.Address)
}

// MarkSolved records an accepted solution for the item and removes any
// in-progress mark. It reports whether the mark was applied: a result for
// a retired challenge is discarded and must not be counted by the caller.
func (t *Tracker) MarkSolved(challengeID string, item domain.WorkItem) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if challengeID != t.scope {
		return false
	}
	delete(t.inProgress, item.Address)
	t.solved[item.Address] = true
	return true
}

// IsSolved reports whether the item is solved for the current challenge.
func (t *Tracker) IsSolved(item domain.WorkItem) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.solved[item.Address]
}

// Reset clears both sets and rebinds the tracker to the given challenge.
// Invoked exactly once per challenge transition; an empty ID parks the
// tracker so no claims succeed until the next adoption.
func (t *Tracker) Reset(challengeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scope = challengeID
	t.solved = make(map[string]bool)
	t.inProgress = make(map[string]bool)
}

// SolvedCount returns how many items are solved for the current challenge.
func (t *Tracker) SolvedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.solved)
}

// InProgressCount returns how many items are currently claimed.
func (t *Tracker) InProgressCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inProgress)
}

// TotalItems returns the size of the ordinary item pool.
func (t *Tracker) TotalItems() int {
	return len(t.items)
}

// AllSolved reports whether every ordinary item is solved.
func (t *Tracker) AllSolved() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.solved) == len(t.items)
}
