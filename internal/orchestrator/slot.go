package orchestrator

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/mineworks/scavengerd/internal/domain"
)

// slot is one worker slot. A slot runs at most one goroutine at a time;
// alive doubles as the restart guard, flipped with CompareAndSwap so the
// supervisor and the transition path can never double-start a slot.
type slot struct {
	id    int
	alive atomic.Bool
	state atomic.Value // domain.SlotState
}

func (s *slot) setState(st domain.SlotState) {
	s.state.Store(st)
}

// startSlot launches the slot's loop bound to the given challenge if it is
// not already running. Returns true when a new loop was started.
func (o *Orchestrator) startSlot(ctx context.Context, s *slot, ch domain.Challenge) bool {
	if !s.alive.CompareAndSwap(false, true) {
		return false
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer s.alive.Store(false)
		defer s.setState(domain.SlotExited)
		o.runSlot(ctx, s, ch)
	}()
	return true
}

// runSlot is the claim/mine/submit loop for one slot, bound to a single
// challenge. The loop exits when the pool is drained, the bound challenge
// is no longer current, or the context is cancelled. A slot that is
// mid-mining when a newer challenge appears still submits its solution
// first; the binding is only checked between items.
func (o *Orchestrator) runSlot(ctx context.Context, s *slot, ch domain.Challenge) {
	for {
		if ctx.Err() != nil {
			return
		}
		cur := o.current.Load()
		if cur == nil || cur.ID != ch.ID {
			return
		}

		s.setState(domain.SlotClaiming)
		item, ok := o.tracker.ClaimNext(ch.ID, o.receiptCheck(ctx, ch.ID))
		if !ok {
			log.Printf("slot %d: no claimable item remains, exiting", s.id)
			s.setState(domain.SlotIdle)
			return
		}

		o.workItem(ctx, s, *item, ch)
		s.setState(domain.SlotIdle)
	}
}

// workItem runs one claimed item through mine and submit. The release-on-
// failure path is a defer so the item can never stay stuck in progress.
func (o *Orchestrator) workItem(ctx context.Context, s *slot, item domain.WorkItem, ch domain.Challenge) {
	solved := false
	defer func() {
		if !solved {
			o.tracker.Release(ch.ID, item)
		}
	}()

	res, err := o.mineSubmitOnce(ctx, s.id, s, item, ch)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("slot %d: item %s on challenge %s: %v", s.id, item.Address, ch.ID, err)
			o.bus.Publish(Event{Type: EventError, ChallengeID: ch.ID, Address: item.Address, Message: err.Error()})
		}
		return
	}

	// The submission stands either way, but if the bound challenge was
	// retired while we were mining, the result must not touch the state
	// of the challenge that replaced it.
	solved = true
	if !o.tracker.MarkSolved(ch.ID, item) {
		log.Printf("slot %d: challenge %s retired mid-flight, discarding result for %s", s.id, ch.ID, item.Address)
		return
	}
	o.onAccepted(ctx, item, ch, res, false)
}

// mineSubmitOnce is the shared mine-then-submit pipeline used by both the
// ordinary slots and the fee run. A duplicate outcome is returned as
// success; a rejection or transport failure is returned as an error.
func (o *Orchestrator) mineSubmitOnce(ctx context.Context, workerID int, s *slot, item domain.WorkItem, ch domain.Challenge) (*domain.SubmitResult, error) {
	if s != nil {
		s.setState(domain.SlotMining)
	}
	sol, err := o.engine.MineUntilSolved(ctx, workerID, item, ch)
	if err != nil {
		return nil, err
	}

	if s != nil {
		s.setState(domain.SlotSubmitting)
	}
	res, err := o.chain.Submit(ctx, item.Address, ch.ID, sol.Nonce)
	if err != nil {
		return nil, err
	}
	switch res.Outcome {
	case domain.SubmitAccepted, domain.SubmitDuplicate:
		rec := domain.Receipt{
			ChallengeID: ch.ID,
			Address:     item.Address,
			Nonce:       sol.Nonce,
			Token:       res.Receipt,
			Fee:         item.Fee,
			Outcome:     res.Outcome,
		}
		if err := o.receipts.Record(ctx, rec); err != nil {
			// The chain already accepted the solution; a failed local write
			// must not undo that, so log and carry on.
			log.Printf("worker %d: record receipt for %s: %v", workerID, item.Address, err)
		}
		return res, nil
	default:
		return nil, domain.WrapMinerError(domain.ErrRemoteRejection.Code, "solution rejected: "+res.Reason, domain.ErrRemoteRejection)
	}
}

// onAccepted updates counters, publishes the solved event, and lets the fee
// scheduler evaluate its cadence. Fee acceptances do not advance the
// cadence counter.
func (o *Orchestrator) onAccepted(ctx context.Context, item domain.WorkItem, ch domain.Challenge, res *domain.SubmitResult, fee bool) {
	total := o.acceptedTotal.Add(1)
	o.bus.Publish(Event{
		Type:        EventWorkerSolved,
		ChallengeID: ch.ID,
		Address:     item.Address,
		Fee:         fee,
		SolvedCount: o.tracker.SolvedCount(),
	})
	if res.Outcome == domain.SubmitDuplicate {
		log.Printf("solution for %s on challenge %s already accepted (total %d)", item.Address, ch.ID, total)
	} else {
		log.Printf("solution for %s on challenge %s accepted (total %d)", item.Address, ch.ID, total)
	}

	if fee {
		return
	}
	n := o.nonFeeAccepted.Add(1)
	o.maybeScheduleFee(ctx, ch, n)
}
