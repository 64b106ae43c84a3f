// Package engine provides the resilient HTTP client for the native hash
// compute service. All calls classify failures into the orchestrator's
// error taxonomy and retry transient ones with backoff.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mineworks/scavengerd/internal/domain"
	"github.com/mineworks/scavengerd/internal/retry"
)

// mineCeiling is the hard upper bound on a single mining call. It exists
// only to prevent indefinite hangs; exceeding it is retryable, not fatal.
const mineCeiling = 30 * time.Minute

// poolHeadroom is added to the worker count when sizing the idle connection
// pool, since the monitor and stats loops issue calls alongside the slots.
const poolHeadroom = 4

// AshConfig carries the engine's ROM and program parameters on /init.
// Field names follow the service's wire format.
type AshConfig struct {
	NbLoops       uint32 `json:"nbLoops"`
	NbInstrs      uint32 `json:"nbInstrs"`
	PreSize       uint32 `json:"pre_size"`
	RomSize       uint32 `json:"rom_size"`
	MixingNumbers uint32 `json:"mixing_numbers"`
}

// ClientConfig holds tunable parameters for the compute client.
type ClientConfig struct {
	BaseURL     string
	Workers     int           // orchestrator slot count, used to size the pool
	MineCeiling time.Duration // zero means the 30-minute default
	CallTimeout time.Duration // per-attempt timeout for short calls
	Retry       retry.Policy
	Ash         AshConfig
}

// Client is the typed wrapper around the remote compute service.
type Client struct {
	cfg  ClientConfig
	http *http.Client

	// initMu serializes Initialize with StopMining and makes Initialize
	// idempotent per no_pre_mine value.
	initMu        sync.Mutex
	lastNoPreMine string
}

// NewClient creates a Client with a persistent connection pool sized to
// comfortably exceed the worker count.
func NewClient(cfg ClientConfig) *Client {
	if cfg.MineCeiling == 0 {
		cfg.MineCeiling = mineCeiling
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}

	poolSize := cfg.Workers + poolHeadroom
	transport := &http.Transport{
		MaxIdleConns:        poolSize * 2,
		MaxIdleConnsPerHost: poolSize,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		cfg: cfg,
		// No client-level timeout: mining calls run for up to the ceiling
		// and are bounded per-call via context deadlines.
		http: &http.Client{Transport: transport},
	}
}

type initRequest struct {
	NoPreMine string    `json:"no_pre_mine"`
	AshConfig AshConfig `json:"ashConfig"`
}

type initResponse struct {
	Status    string `json:"status"`
	WorkerPID uint32 `json:"worker_pid"`
}

type mineRequest struct {
	WorkerID  uint64        `json:"worker_id"`
	Address   string        `json:"address"`
	Challenge challengeWire `json:"challenge"`
}

type challengeWire struct {
	ChallengeID      string `json:"challenge_id"`
	Difficulty       string `json:"difficulty"`
	NoPreMine        string `json:"no_pre_mine"`
	LatestSubmission string `json:"latest_submission"`
	NoPreMineHour    string `json:"no_pre_mine_hour"`
}

type solutionWire struct {
	Nonce    string `json:"nonce"`
	Hash     string `json:"hash"`
	Preimage string `json:"preimage"`
}

type mineResponse struct {
	Solutions      []solutionWire `json:"solutions"`
	HashesComputed uint64         `json:"hashes_computed"`
}

// Initialize prepares the compute engine's ROM for the given challenge.
// It is idempotent per no_pre_mine value and must complete before mining.
func (c *Client) Initialize(ctx context.Context, ch domain.Challenge) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.lastNoPreMine == ch.NoPreMine {
		return nil
	}

	req := initRequest{NoPreMine: ch.NoPreMine, AshConfig: c.cfg.Ash}
	var resp initResponse
	// ROM generation takes several seconds on the remote side; give init
	// a generous per-attempt window.
	if err := c.postRetry(ctx, "/init", req, &resp, 2*time.Minute); err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}

	c.lastNoPreMine = ch.NoPreMine
	return nil
}

// MineUntilSolved blocks until the engine finds a solution for the given
// address under the challenge, or the hard ceiling elapses. A ceiling hit
// yields a timeout-coded error that callers treat as retryable.
func (c *Client) MineUntilSolved(ctx context.Context, slotID int, item domain.WorkItem, ch domain.Challenge) (*domain.Solution, error) {
	req := mineRequest{
		WorkerID: uint64(slotID),
		Address:  item.Address,
		Challenge: challengeWire{
			ChallengeID:      ch.ID,
			Difficulty:       ch.Difficulty,
			NoPreMine:        ch.NoPreMine,
			LatestSubmission: ch.LatestSubmission,
			NoPreMineHour:    ch.NoPreMineHour,
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.MineCeiling)
	defer cancel()

	var resp mineResponse
	if err := c.postOnce(callCtx, "/start-mining", req, &resp); err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, domain.WrapMinerError(domain.ErrMineTimeout.Code,
				fmt.Sprintf("slot %d mining %s", slotID, item.Address), err)
		}
		return nil, err
	}

	if len(resp.Solutions) == 0 {
		return nil, domain.NewMinerError(domain.ErrTransient.Code,
			"engine returned without a solution")
	}

	s := resp.Solutions[0]
	return &domain.Solution{Nonce: s.Nonce, Hash: s.Hash, Preimage: s.Preimage}, nil
}

// Stats fetches the engine's telemetry snapshot.
func (c *Client) Stats(ctx context.Context) (*domain.EngineStats, error) {
	var stats domain.EngineStats
	if err := c.getRetry(ctx, "/stats", &stats); err != nil {
		return nil, fmt.Errorf("fetch engine stats: %w", err)
	}
	return &stats, nil
}

// StopMining asks the engine to abandon work for an obsolete challenge.
// Best-effort: older engines do not expose the endpoint, so a request-level
// rejection is not an error.
func (c *Client) StopMining(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	err := c.postOnce(ctx, "/stop-mining", struct{}{}, nil)
	if err != nil && domain.CodeOf(err) == domain.ErrClientRequest.Code {
		return nil
	}
	return err
}

// postRetry issues a POST with the retry policy, using the given per-attempt
// timeout.
func (c *Client) postRetry(ctx context.Context, path string, body, out interface{}, attemptTimeout time.Duration) error {
	return c.withRetry(ctx, func(attemptCtx context.Context) error {
		return c.postOnce(attemptCtx, path, body, out)
	}, attemptTimeout)
}

// getRetry issues a GET with the retry policy.
func (c *Client) getRetry(ctx context.Context, path string, out interface{}) error {
	return c.withRetry(ctx, func(attemptCtx context.Context) error {
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.cfg.BaseURL+path, nil)
		if err != nil {
			return domain.WrapMinerError(domain.ErrClientRequest.Code, "build request", err)
		}
		return c.do(req, out)
	}, c.cfg.CallTimeout)
}

// withRetry runs fn up to MaxAttempts times, backing off between attempts.
// Non-transient errors abort immediately. Unknown failures are treated as
// transient once, then surfaced.
func (c *Client) withRetry(ctx context.Context, fn func(context.Context) error, attemptTimeout time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.Retry.MaxAttempts; attempt++ {
		if delay := c.cfg.Retry.Delay(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return domain.WrapMinerError(domain.ErrTransient.Code, "retry canceled", ctx.Err())
			case <-time.After(delay):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if !domain.IsTransient(err) {
			return err
		}
		// An unclassified remote failure gets a single retry, not the full
		// attempt budget.
		if domain.CodeOf(err) == domain.ErrUnknownRemote.Code && attempt >= 1 {
			return err
		}
	}
	return domain.WrapMinerError(domain.ErrRetriesExhausted.Code,
		fmt.Sprintf("%d attempts failed", c.cfg.Retry.MaxAttempts), lastErr)
}

// postOnce issues a single POST without retry.
func (c *Client) postOnce(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.WrapMinerError(domain.ErrClientRequest.Code, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return domain.WrapMinerError(domain.ErrClientRequest.Code, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

// do executes the request and classifies the outcome.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.WrapMinerError(domain.ErrTransient.Code, "read response body", err)
	}

	if err := classifyStatus(resp.StatusCode, data); err != nil {
		return err
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return domain.WrapMinerError(domain.ErrTransient.Code, "decode response", err)
	}
	return nil
}

// classifyStatus maps HTTP status codes onto the error taxonomy.
func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		return domain.NewMinerError(domain.ErrClientRequest.Code,
			fmt.Sprintf("status %d: %s", status, truncate(body, 200)))
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		return domain.NewMinerError(domain.ErrTransient.Code,
			fmt.Sprintf("service busy: status %d", status))
	default:
		// Unknown failure: the retry loop gives it exactly one more chance
		// before surfacing.
		return domain.NewMinerError(domain.ErrUnknownRemote.Code,
			fmt.Sprintf("unexpected status %d: %s", status, truncate(body, 200)))
	}
}

// classifyTransportError maps connection-level failures onto the taxonomy.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapMinerError(domain.ErrTransient.Code, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.WrapMinerError(domain.ErrTransient.Code, "network timeout", err)
	}
	// Connection refused, reset, DNS failures and the like.
	return domain.WrapMinerError(domain.ErrTransient.Code, "connection failure", err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
