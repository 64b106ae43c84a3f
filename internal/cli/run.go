package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mineworks/scavengerd/internal/chain"
	"github.com/mineworks/scavengerd/internal/config"
	"github.com/mineworks/scavengerd/internal/domain"
	"github.com/mineworks/scavengerd/internal/engine"
	"github.com/mineworks/scavengerd/internal/ipc"
	"github.com/mineworks/scavengerd/internal/orchestrator"
	"github.com/mineworks/scavengerd/internal/retry"
	"github.com/mineworks/scavengerd/internal/store"
	"github.com/mineworks/scavengerd/internal/wallet"
)

// NewRunCommand creates the run command, the daemon's main entry point.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the mining orchestrator",
		Long: `Start the orchestrator: load the address book, open the receipt store,
connect to the compute engine and the challenge source, and serve the
local status API until interrupted.

Example:
  scavengerd run --config ./config.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(rootOpts)
		},
	}
}

func runDaemon(opts *RootOptions) error {
	if opts.Verbose {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}

	path := opts.ConfigPath
	if path == "" {
		path = os.Getenv("SCAVENGERD_CONFIG")
	}
	if path == "" {
		path = discoverConfig()
	}
	if path == "" {
		return fmt.Errorf("no config found: place config.json next to the executable, use --config <path>, or set SCAVENGERD_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	book, err := wallet.Load(cfg.AddressesPath)
	if err != nil {
		return fmt.Errorf("load address book: %w", err)
	}

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	pol := retry.Policy{
		MaxAttempts: cfg.RetryAttempts,
		BaseDelay:   time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
	}

	eng := engine.NewClient(engine.ClientConfig{
		BaseURL:     cfg.EngineURL,
		Workers:     cfg.Workers,
		MineCeiling: time.Duration(cfg.MineCeilingSec) * time.Second,
		Retry:       pol,
		Ash: engine.AshConfig{
			NbLoops:       cfg.Ash.NbLoops,
			NbInstrs:      cfg.Ash.NbInstrs,
			PreSize:       cfg.Ash.PreSize,
			RomSize:       cfg.Ash.RomSize,
			MixingNumbers: cfg.Ash.MixingNumbers,
		},
	})
	chainClient := chain.NewClient(chain.ClientConfig{
		BaseURL:       cfg.ChainAPIURL,
		SubmitTimeout: time.Duration(cfg.SubmitTimeoutSec) * time.Second,
		Retry:         pol,
	})

	receiptRepo := &store.ReceiptRepo{}
	challengeRepo := &store.ChallengeRepo{}
	eventRepo := &store.EventRepo{}
	statsRepo := &store.StatsRepo{}

	orch := orchestrator.New(orchestrator.Config{
		Workers:          cfg.Workers,
		FeeCadence:       cfg.FeeCadence,
		PollInterval:     time.Duration(cfg.PollIntervalSec) * time.Second,
		HealthInterval:   time.Duration(cfg.HealthIntervalSec) * time.Second,
		StatsInterval:    time.Duration(cfg.StatsIntervalSec) * time.Second,
		TransitionBuffer: time.Duration(cfg.TransitionBufferSec) * time.Second,
	},
		eng,
		chainClient,
		&receiptLog{db: db, repo: receiptRepo},
		&challengeLog{db: db, repo: challengeRepo},
		book.Items(),
		book.FeeItem(),
		nil,
	)

	handler := &ipc.Handler{
		Orchestrator:  orch,
		DB:            db,
		ReceiptRepo:   receiptRepo,
		ChallengeRepo: challengeRepo,
		EventRepo:     eventRepo,
		StatsRepo:     statsRepo,
	}
	srv := ipc.NewServer(handler, cfg.ListenAddr)

	if err := orch.Start(context.Background()); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}

	// Persist the event feed. Stats snapshots go to the telemetry history
	// table, everything else to the event log.
	busID, busCh := orch.Bus().Subscribe()
	go func() {
		for ev := range busCh {
			ctx := context.Background()
			if ev.Type == orchestrator.EventStatsSnapshot {
				if ev.Stats == nil {
					continue
				}
				sample := domain.StatsSample{
					ChallengeID:    ev.ChallengeID,
					TotalHashes:    ev.Stats.TotalHashes,
					SolutionsFound: ev.Stats.SolutionsFound,
					HashRate:       ev.Stats.HashRate,
					MiningActive:   ev.Stats.MiningActive,
					CreatedAt:      ev.At,
				}
				if err := statsRepo.Record(ctx, db, sample); err != nil {
					log.Printf("persist stats sample: %v", err)
				}
				continue
			}
			rec := domain.EventRecord{
				Type:        string(ev.Type),
				ChallengeID: ev.ChallengeID,
				Address:     ev.Address,
				Fee:         ev.Fee,
				Message:     ev.Message,
				CreatedAt:   ev.At,
			}
			if err := eventRepo.Append(ctx, db, rec); err != nil {
				log.Printf("persist event %s: %v", ev.Type, err)
			}
		}
	}()

	// Graceful shutdown on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("shutting down...")

		orch.Stop()
		orch.Bus().Unsubscribe(busID)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("scavengerd listening on %s (%d addresses, %d workers)",
		cfg.ListenAddr, len(book.Items()), cfg.Workers)

	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// discoverConfig looks for config.json next to the executable, then in the cwd.
func discoverConfig() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "config.json")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := os.Stat("config.json"); err == nil {
		return "config.json"
	}
	return ""
}

// receiptLog binds the receipt repo to its database handle for the
// orchestrator's ReceiptLog interface.
type receiptLog struct {
	db   *sql.DB
	repo *store.ReceiptRepo
}

func (l *receiptLog) Record(ctx context.Context, rec domain.Receipt) error {
	return l.repo.Record(ctx, l.db, rec)
}

func (l *receiptLog) Exists(ctx context.Context, challengeID, address string) (bool, error) {
	return l.repo.Exists(ctx, l.db, challengeID, address)
}

// challengeLog binds the challenge repo to its database handle for the
// orchestrator's ChallengeLog interface.
type challengeLog struct {
	db   *sql.DB
	repo *store.ChallengeRepo
}

func (l *challengeLog) MarkStarted(ctx context.Context, ch domain.Challenge) error {
	return l.repo.MarkStarted(ctx, l.db, ch)
}

func (l *challengeLog) MarkCompleted(ctx context.Context, challengeID string, solvedCount int) error {
	return l.repo.MarkCompleted(ctx, l.db, challengeID, solvedCount)
}
