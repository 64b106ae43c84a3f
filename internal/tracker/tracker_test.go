package tracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mineworks/scavengerd/internal/domain"
)

const testScope = "challenge-1"

func testItems(n int) []domain.WorkItem {
	items := make([]domain.WorkItem, n)
	for i := range items {
		items[i] = domain.WorkItem{Index: i, Address: addrFor(i), Registered: true}
	}
	return items
}

func addrFor(i int) string {
	return "addr1q" + string(rune('a'+i%26)) + string(rune('a'+(i/26)%26))
}

func scopedTracker(n int) *Tracker {
	tr := New(testItems(n))
	tr.Reset(testScope)
	return tr
}

func TestClaimNext_StableIndexOrder(t *testing.T) {
	tr := scopedTracker(3)

	for i := 0; i < 3; i++ {
		item, ok := tr.ClaimNext(testScope, nil)
		require.True(t, ok, "claim %d", i)
		assert.Equal(t, i, item.Index, "claims must follow index order")
	}

	_, ok := tr.ClaimNext(testScope, nil)
	assert.False(t, ok, "pool exhausted")
}

func TestClaimNext_SkipsSolvedAndInProgress(t *testing.T) {
	tr := scopedTracker(3)

	first, ok := tr.ClaimNext(testScope, nil)
	require.True(t, ok)
	tr.MarkSolved(testScope, *first)

	second, ok := tr.ClaimNext(testScope, nil)
	require.True(t, ok)
	assert.Equal(t, 1, second.Index)

	third, ok := tr.ClaimNext(testScope, nil)
	require.True(t, ok)
	assert.Equal(t, 2, third.Index)
}

func TestClaimNext_ExternalReceiptTreatedAsSolved(t *testing.T) {
	items := testItems(3)
	tr := New(items)
	tr.Reset(testScope)

	withReceipt := items[0].Address
	item, ok := tr.ClaimNext(testScope, func(addr string) bool { return addr == withReceipt })
	require.True(t, ok)
	assert.Equal(t, 1, item.Index, "item 0 skipped via external receipt")
	assert.Equal(t, 1, tr.SolvedCount(), "receipt-bearing item counted solved without mining")
}

func TestClaimNext_RefusesRetiredScope(t *testing.T) {
	tr := scopedTracker(2)

	_, ok := tr.ClaimNext("challenge-0", nil)
	assert.False(t, ok, "claim under a non-current challenge must fail")

	tr.Reset("")
	_, ok = tr.ClaimNext(testScope, nil)
	assert.False(t, ok, "parked tracker hands out nothing")
}

func TestRelease_MakesItemClaimableAgain(t *testing.T) {
	tr := scopedTracker(1)

	item, ok := tr.ClaimNext(testScope, nil)
	require.True(t, ok)

	_, ok = tr.ClaimNext(testScope, nil)
	require.False(t, ok, "single item is in progress")

	tr.Release(testScope, *item)
	again, ok := tr.ClaimNext(testScope, nil)
	require.True(t, ok)
	assert.Equal(t, item.Address, again.Address)
}

func TestSolvedAndInProgress_MutuallyExclusive(t *testing.T) {
	tr := scopedTracker(4)

	a, _ := tr.ClaimNext(testScope, nil)
	b, _ := tr.ClaimNext(testScope, nil)
	require.True(t, tr.MarkSolved(testScope, *a))
	tr.Release(testScope, *b)

	assert.Equal(t, 1, tr.SolvedCount())
	assert.Equal(t, 0, tr.InProgressCount())
	assert.True(t, tr.IsSolved(*a))
	assert.False(t, tr.IsSolved(*b))
}

func TestReset_ClearsBothSetsAndRebinds(t *testing.T) {
	tr := scopedTracker(4)

	a, _ := tr.ClaimNext(testScope, nil)
	tr.MarkSolved(testScope, *a)
	tr.ClaimNext(testScope, nil)

	tr.Reset("challenge-2")
	assert.Equal(t, 0, tr.SolvedCount())
	assert.Equal(t, 0, tr.InProgressCount())

	item, ok := tr.ClaimNext("challenge-2", nil)
	require.True(t, ok)
	assert.Equal(t, 0, item.Index, "scan restarts from the top after reset")
}

// A mark or release carried over from a challenge that has since been
// replaced must leave the current challenge's state untouched.
func TestStaleMarksDiscardedAfterReset(t *testing.T) {
	tr := scopedTracker(2)

	stale, ok := tr.ClaimNext(testScope, nil)
	require.True(t, ok)

	tr.Reset("challenge-2")
	fresh, ok := tr.ClaimNext("challenge-2", nil)
	require.True(t, ok)
	require.Equal(t, stale.Address, fresh.Address, "fresh scope re-claims from the top")

	assert.False(t, tr.MarkSolved(testScope, *stale), "stale mark reports discarded")
	assert.Equal(t, 0, tr.SolvedCount(), "stale mark must not count for the new challenge")
	assert.False(t, tr.IsSolved(*fresh))

	tr.Release(testScope, *stale)
	assert.Equal(t, 1, tr.InProgressCount(), "stale release must not free the fresh claim")
}

// Simulated concurrent claims: no two goroutines may ever hold the same item.
func TestConcurrentClaims_NoDoubleAssignment(t *testing.T) {
	const n = 50
	tr := scopedTracker(n)

	var mu sync.Mutex
	claimed := make(map[string]int)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, ok := tr.ClaimNext(testScope, nil)
				if !ok {
					return
				}
				mu.Lock()
				claimed[item.Address]++
				mu.Unlock()
				tr.MarkSolved(testScope, *item)
			}
		}()
	}
	wg.Wait()

	require.Len(t, claimed, n, "every item claimed exactly once")
	for addr, count := range claimed {
		assert.Equal(t, 1, count, "item %s claimed %d times", addr, count)
	}
	assert.True(t, tr.AllSolved())
}

func TestAllSolved(t *testing.T) {
	tr := scopedTracker(2)
	assert.False(t, tr.AllSolved())

	a, _ := tr.ClaimNext(testScope, nil)
	tr.MarkSolved(testScope, *a)
	assert.False(t, tr.AllSolved())

	b, _ := tr.ClaimNext(testScope, nil)
	tr.MarkSolved(testScope, *b)
	assert.True(t, tr.AllSolved())
}
