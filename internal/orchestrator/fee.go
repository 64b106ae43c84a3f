package orchestrator

import (
	"context"
	"log"

	"github.com/mineworks/scavengerd/internal/domain"
)

// feeWorkerID is the out-of-band worker id used for fee runs, one past the
// ordinary slot range.
func (o *Orchestrator) feeWorkerID() int {
	return o.cfg.Workers + 1
}

// maybeScheduleFee launches a fee run when the accepted-count cadence
// fires. At most one fee run is in flight at a time and the fee item is
// mined at most once per challenge; a cadence hit while either guard is
// set is simply dropped.
func (o *Orchestrator) maybeScheduleFee(ctx context.Context, ch domain.Challenge, accepted int64) {
	if o.feeItem == nil || o.cfg.FeeCadence <= 0 {
		return
	}
	if accepted%int64(o.cfg.FeeCadence) != 0 {
		return
	}

	o.mu.Lock()
	solved := o.feeSolved
	o.mu.Unlock()
	if solved {
		return
	}
	if !o.feeActive.CompareAndSwap(false, true) {
		log.Printf("fee: run already active, skipping cadence trigger at %d accepted", accepted)
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.feeActive.Store(false)
		o.runFee(ctx, ch)
	}()
}

// runFee mines and submits the fee item once, outside the ordinary slot
// pool. Failures are logged and the guard released so a later cadence hit
// can try again.
func (o *Orchestrator) runFee(ctx context.Context, ch domain.Challenge) {
	item := *o.feeItem

	// Re-check the binding: the challenge may have rolled over between the
	// cadence trigger and this goroutine starting.
	cur := o.current.Load()
	if cur == nil || cur.ID != ch.ID {
		return
	}
	if exists, err := o.receipts.Exists(ctx, ch.ID, item.Address); err == nil && exists {
		o.mu.Lock()
		o.feeSolved = true
		o.mu.Unlock()
		return
	}

	log.Printf("fee: mining fee item %s on challenge %s", item.Address, ch.ID)
	res, err := o.mineSubmitOnce(ctx, o.feeWorkerID(), nil, item, ch)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("fee: item %s on challenge %s: %v", item.Address, ch.ID, err)
			o.bus.Publish(Event{Type: EventError, ChallengeID: ch.ID, Address: item.Address, Message: err.Error()})
		}
		return
	}

	// Same mid-flight rule as the slots: a fee solved for a challenge that
	// was retired while mining must not carry its guard into the new one.
	if cur := o.current.Load(); cur == nil || cur.ID != ch.ID {
		log.Printf("fee: challenge %s retired mid-flight, discarding fee result", ch.ID)
		return
	}
	o.mu.Lock()
	o.feeSolved = true
	o.mu.Unlock()
	o.onAccepted(ctx, item, ch, res, true)
}
