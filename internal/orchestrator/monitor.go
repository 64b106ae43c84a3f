package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/mineworks/scavengerd/internal/domain"
)

// monitorLoop polls the remote challenge source and drives challenge
// adoption, the transition buffer, and challenge retirement. It is the only
// goroutine that mutates current, pending, and the transition clock.
func (o *Orchestrator) monitorLoop(ctx context.Context) {
	defer o.wg.Done()

	// Immediate first poll so startup does not idle a full interval.
	o.pollOnce(ctx)

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.pollOnce(ctx)
		}
	}
}

func (o *Orchestrator) pollOnce(ctx context.Context) {
	phase, ch, err := o.chain.FetchChallenge(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("monitor: fetch challenge: %v", err)
			o.bus.Publish(Event{Type: EventError, Message: err.Error()})
		}
		return
	}

	switch phase {
	case domain.PhasePending:
		// Nothing to mine yet; keep whatever is running untouched.
	case domain.PhaseEnded:
		o.retireCurrent(ctx)
	case domain.PhaseActive:
		o.observeActive(ctx, *ch)
	}
}

// observeActive handles an active-phase observation: first adoption, steady
// state, or a new challenge superseding the current one. A new challenge is
// held in pending for the transition buffer so in-flight work on the old
// challenge can finish; when the buffer elapses the cutover is forced.
func (o *Orchestrator) observeActive(ctx context.Context, ch domain.Challenge) {
	cur := o.current.Load()
	if cur == nil {
		o.adopt(ctx, ch)
		return
	}
	if cur.ID == ch.ID {
		// The source can momentarily re-report the old challenge during a
		// rollover; an unchanged ID always clears any pending transition.
		o.mu.Lock()
		o.pending = nil
		o.mu.Unlock()
		return
	}

	o.mu.Lock()
	if o.pending == nil || o.pending.ID != ch.ID {
		pending := ch
		o.pending = &pending
		o.transitionSince = time.Now()
		o.mu.Unlock()
		log.Printf("monitor: challenge %s observed, buffering transition from %s for %s",
			ch.ID, cur.ID, o.cfg.TransitionBuffer)
		return
	}
	elapsed := time.Since(o.transitionSince)
	o.mu.Unlock()

	if elapsed >= o.cfg.TransitionBuffer || o.tracker.InProgressCount() == 0 {
		o.cutover(ctx, *cur, ch)
	}
}

// adopt brings the first (or a post-gap) challenge live and starts the
// slot pool against it.
func (o *Orchestrator) adopt(ctx context.Context, ch domain.Challenge) {
	if err := o.engine.Initialize(ctx, ch); err != nil {
		log.Printf("monitor: initialize engine for challenge %s: %v", ch.ID, err)
		o.bus.Publish(Event{Type: EventError, ChallengeID: ch.ID, Message: err.Error()})
		return
	}

	o.tracker.Reset(ch.ID)
	o.mu.Lock()
	o.pending = nil
	o.feeSolved = false
	o.mu.Unlock()
	o.nonFeeAccepted.Store(0)
	adopted := ch
	o.current.Store(&adopted)

	if err := o.challenges.MarkStarted(ctx, ch); err != nil {
		log.Printf("monitor: record challenge %s start: %v", ch.ID, err)
	}
	o.bus.Publish(Event{Type: EventChallengeStarted, ChallengeID: ch.ID})
	log.Printf("monitor: challenge %s adopted", ch.ID)

	for _, s := range o.slots {
		o.startSlot(ctx, s, ch)
	}
}

// cutover retires the old challenge and adopts the new one in a single
// step: slots bound to the old challenge observe the changed current
// pointer and exit; adopt then restarts the pool against the new one.
func (o *Orchestrator) cutover(ctx context.Context, old, next domain.Challenge) {
	solved := o.tracker.SolvedCount()
	log.Printf("monitor: cutting over from challenge %s (%d solved) to %s", old.ID, solved, next.ID)

	// Unbind the slots before touching the engine so no slot starts a new
	// mining call against the retiring challenge.
	o.current.Store(nil)
	if err := o.engine.StopMining(ctx); err != nil {
		log.Printf("monitor: stop mining for challenge %s: %v", old.ID, err)
	}

	if err := o.challenges.MarkCompleted(ctx, old.ID, solved); err != nil {
		log.Printf("monitor: record challenge %s completion: %v", old.ID, err)
	}
	o.bus.Publish(Event{Type: EventChallengeCompleted, ChallengeID: old.ID, SolvedCount: solved})

	o.adopt(ctx, next)
}

// retireCurrent handles an ended phase with no successor: stop the slots,
// close out the challenge log entry, and go back to waiting.
func (o *Orchestrator) retireCurrent(ctx context.Context) {
	cur := o.current.Load()
	if cur == nil {
		return
	}
	solved := o.tracker.SolvedCount()
	log.Printf("monitor: challenge %s ended with %d solved", cur.ID, solved)

	o.current.Store(nil)
	o.mu.Lock()
	o.pending = nil
	o.mu.Unlock()
	if err := o.engine.StopMining(ctx); err != nil {
		log.Printf("monitor: stop mining for challenge %s: %v", cur.ID, err)
	}
	o.tracker.Reset("")

	if err := o.challenges.MarkCompleted(ctx, cur.ID, solved); err != nil {
		log.Printf("monitor: record challenge %s completion: %v", cur.ID, err)
	}
	o.bus.Publish(Event{Type: EventChallengeCompleted, ChallengeID: cur.ID, SolvedCount: solved})
}
