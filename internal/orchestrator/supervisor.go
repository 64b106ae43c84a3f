package orchestrator

import (
	"context"
	"log"
	"time"
)

// superviseLoop periodically restarts dead worker slots. A slot is only
// restarted while a challenge is current, no transition is buffering, and
// claimable work remains; a slot that drained the pool is left exited
// until the next challenge restarts the whole pool.
func (o *Orchestrator) superviseLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.checkSlots(ctx)
		}
	}
}

func (o *Orchestrator) checkSlots(ctx context.Context) {
	cur := o.current.Load()
	if cur == nil {
		return
	}
	o.mu.Lock()
	transitioning := o.pending != nil
	o.mu.Unlock()
	if transitioning {
		return
	}
	claimable := o.tracker.TotalItems() - o.tracker.SolvedCount() - o.tracker.InProgressCount()
	if claimable <= 0 {
		return
	}

	for _, s := range o.slots {
		if s.alive.Load() {
			continue
		}
		if o.startSlot(ctx, s, *cur) {
			log.Printf("supervisor: restarted slot %d on challenge %s", s.id, cur.ID)
		}
	}
}
