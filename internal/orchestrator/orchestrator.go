// Package orchestrator drives the challenge-following mining pipeline: it
// watches the remote challenge source, keeps a fixed pool of worker slots
// mining the current challenge, submits solutions, and records receipts.
package orchestrator

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mineworks/scavengerd/internal/domain"
	"github.com/mineworks/scavengerd/internal/tracker"
)

// ComputeClient is the surface of the local compute engine the orchestrator
// depends on.
type ComputeClient interface {
	Initialize(ctx context.Context, ch domain.Challenge) error
	MineUntilSolved(ctx context.Context, slotID int, item domain.WorkItem, ch domain.Challenge) (*domain.Solution, error)
	Stats(ctx context.Context) (*domain.EngineStats, error)
	StopMining(ctx context.Context) error
}

// ChainClient is the surface of the remote challenge source.
type ChainClient interface {
	FetchChallenge(ctx context.Context) (domain.ChallengePhase, *domain.Challenge, error)
	Submit(ctx context.Context, address, challengeID, nonce string) (*domain.SubmitResult, error)
}

// ReceiptLog persists submission outcomes and answers receipt lookups.
type ReceiptLog interface {
	Record(ctx context.Context, rec domain.Receipt) error
	Exists(ctx context.Context, challengeID, address string) (bool, error)
}

// ChallengeLog records challenge adoption and retirement.
type ChallengeLog interface {
	MarkStarted(ctx context.Context, ch domain.Challenge) error
	MarkCompleted(ctx context.Context, challengeID string, solvedCount int) error
}

// Config carries the orchestrator's timing and sizing knobs.
type Config struct {
	Workers          int
	FeeCadence       int
	PollInterval     time.Duration
	HealthInterval   time.Duration
	StatsInterval    time.Duration
	TransitionBuffer time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 5 * time.Second
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = 10 * time.Second
	}
	if c.TransitionBuffer <= 0 {
		c.TransitionBuffer = 15 * time.Minute
	}
}

// Orchestrator owns the worker slots, the challenge monitor, the health
// supervisor, the fee scheduler, and the stats aggregator.
type Orchestrator struct {
	cfg Config

	engine     ComputeClient
	chain      ChainClient
	receipts   ReceiptLog
	challenges ChallengeLog
	tracker    *tracker.Tracker
	feeItem    *domain.WorkItem
	bus        *Bus

	// current is the adopted challenge; nil while no challenge is live.
	// Written only by the monitor goroutine, read by everyone.
	current atomic.Pointer[domain.Challenge]

	// Transition bookkeeping, owned by the monitor goroutine; mu guards it
	// against concurrent Status readers.
	mu              sync.Mutex
	pending         *domain.Challenge
	transitionSince time.Time
	feeSolved       bool

	slots []*slot

	acceptedTotal  atomic.Int64
	nonFeeAccepted atomic.Int64
	feeActive      atomic.Bool

	running   atomic.Bool
	startedAt time.Time
	lastStats atomic.Pointer[domain.EngineStats]

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires an orchestrator over its collaborators. The item list must be
// the ordinary pool only; feeItem may be nil when the wallet has no fee
// entry.
func New(cfg Config, eng ComputeClient, chain ChainClient, receipts ReceiptLog, challenges ChallengeLog, items []domain.WorkItem, feeItem *domain.WorkItem, bus *Bus) *Orchestrator {
	cfg.applyDefaults()
	if bus == nil {
		bus = NewBus()
	}

	o := &Orchestrator{
		cfg:        cfg,
		engine:     eng,
		chain:      chain,
		receipts:   receipts,
		challenges: challenges,
		tracker:    tracker.New(items),
		feeItem:    feeItem,
		bus:        bus,
	}
	o.slots = make([]*slot, cfg.Workers)
	for i := range o.slots {
		o.slots[i] = &slot{id: i + 1}
	}
	return o
}

// Bus returns the orchestrator's event bus for external subscribers.
func (o *Orchestrator) Bus() *Bus {
	return o.bus
}

// Start launches the monitor, supervisor, and stats loops. It is an error
// to call Start twice without an intervening Stop.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return domain.ErrAlreadyRunning
	}
	o.startedAt = time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(3)
	go o.monitorLoop(runCtx)
	go o.superviseLoop(runCtx)
	go o.statsLoop(runCtx)
	log.Printf("orchestrator: started with %d worker slots", o.cfg.Workers)
	return nil
}

// Stop cancels all loops and slots, waits for them to drain, and tells the
// engine to stop mining. Safe to call more than once.
func (o *Orchestrator) Stop() {
	if !o.running.CompareAndSwap(true, false) {
		return
	}
	o.cancel()
	o.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.engine.StopMining(ctx); err != nil {
		log.Printf("orchestrator: stop-mining on shutdown: %v", err)
	}
	log.Printf("orchestrator: stopped")
}

// Status returns a point-in-time snapshot for the status endpoint.
func (o *Orchestrator) Status() domain.StatusSnapshot {
	snap := domain.StatusSnapshot{
		Running:       o.running.Load(),
		AcceptedTotal: o.acceptedTotal.Load(),
		TotalItems:    o.tracker.TotalItems(),
	}
	if cur := o.current.Load(); cur != nil {
		snap.ChallengeID = cur.ID
		snap.SolvedThisChallenge = o.tracker.SolvedCount()
	}
	o.mu.Lock()
	snap.Transitioning = o.pending != nil
	o.mu.Unlock()
	if st := o.lastStats.Load(); st != nil {
		snap.HashRate = st.HashRate
	}
	if snap.Running {
		snap.UptimeSeconds = time.Since(o.startedAt).Seconds()
	}
	return snap
}

// receiptCheck adapts the receipt log to the tracker's claim predicate.
// Lookup failures count as "no receipt" so a flaky store can only cause a
// redundant mine, never a skipped item.
func (o *Orchestrator) receiptCheck(ctx context.Context, challengeID string) tracker.ReceiptCheck {
	return func(address string) bool {
		ok, err := o.receipts.Exists(ctx, challengeID, address)
		if err != nil {
			log.Printf("orchestrator: receipt lookup for %s: %v", address, err)
			return false
		}
		return ok
	}
}
