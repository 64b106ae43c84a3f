package orchestrator

import (
	"context"
	"log"
	"time"
)

// statsLoop periodically pulls telemetry from the compute engine and
// republishes it on the bus. A failed pull skips the cycle; the last good
// snapshot stays visible through Status.
func (o *Orchestrator) statsLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.pollStats(ctx)
		}
	}
}

func (o *Orchestrator) pollStats(ctx context.Context) {
	stats, err := o.engine.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("stats: poll engine: %v", err)
		}
		return
	}
	o.lastStats.Store(stats)

	ev := Event{Type: EventStatsSnapshot, Stats: stats}
	if cur := o.current.Load(); cur != nil {
		ev.ChallengeID = cur.ID
	}
	o.bus.Publish(ev)
}
