// Package chain talks to the remote challenge and acceptance service.
// The challenge feed is read-only and eventually consistent; submissions
// are classified into accepted, duplicate, or rejected outcomes.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mineworks/scavengerd/internal/domain"
	"github.com/mineworks/scavengerd/internal/retry"
)

// ClientConfig holds tunable parameters for the chain API client.
type ClientConfig struct {
	BaseURL       string
	SubmitTimeout time.Duration // bound on one submission attempt
	Retry         retry.Policy
}

// Client wraps the remote challenge source and acceptance endpoint.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient creates a chain API client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.SubmitTimeout == 0 {
		cfg.SubmitTimeout = 15 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Transport: &http.Transport{MaxIdleConnsPerHost: 4}},
	}
}

type challengeWire struct {
	ChallengeID      string `json:"challenge_id"`
	Difficulty       string `json:"difficulty"`
	NoPreMine        string `json:"no_pre_mine"`
	LatestSubmission string `json:"latest_submission"`
	NoPreMineHour    string `json:"no_pre_mine_hour"`
}

type challengeResponse struct {
	Phase     string         `json:"phase"`
	Challenge *challengeWire `json:"challenge"`
}

type submitRequest struct {
	Address     string `json:"address"`
	ChallengeID string `json:"challenge_id"`
	Nonce       string `json:"nonce"`
}

type submitResponse struct {
	Status  string `json:"status"`
	Receipt string `json:"receipt"`
	Reason  string `json:"reason"`
}

// FetchChallenge polls the current challenge descriptor and its phase code.
// The descriptor is nil unless the phase is active.
func (c *Client) FetchChallenge(ctx context.Context) (domain.ChallengePhase, *domain.Challenge, error) {
	var resp challengeResponse
	err := c.withRetry(ctx, func(attemptCtx context.Context) error {
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.cfg.BaseURL+"/challenge/current", nil)
		if err != nil {
			return domain.WrapMinerError(domain.ErrClientRequest.Code, "build request", err)
		}
		return c.do(req, &resp)
	})
	if err != nil {
		return "", nil, fmt.Errorf("fetch challenge: %w", err)
	}

	phase, err := parsePhase(resp.Phase)
	if err != nil {
		return "", nil, err
	}

	if phase != domain.PhaseActive || resp.Challenge == nil {
		return phase, nil, nil
	}

	cw := resp.Challenge
	return phase, &domain.Challenge{
		ID:               cw.ChallengeID,
		Difficulty:       cw.Difficulty,
		NoPreMine:        cw.NoPreMine,
		LatestSubmission: cw.LatestSubmission,
		NoPreMineHour:    cw.NoPreMineHour,
		ObservedAt:       time.Now().Unix(),
	}, nil
}

// Submit sends one solution to the acceptance endpoint. The remote service
// independently validates challenge freshness, so stale submissions are
// allowed through and simply come back rejected.
func (c *Client) Submit(ctx context.Context, address, challengeID, nonce string) (*domain.SubmitResult, error) {
	body := submitRequest{Address: address, ChallengeID: challengeID, Nonce: nonce}

	var result *domain.SubmitResult
	err := c.withRetry(ctx, func(attemptCtx context.Context) error {
		payload, err := json.Marshal(body)
		if err != nil {
			return domain.WrapMinerError(domain.ErrClientRequest.Code, "marshal submission", err)
		}
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.BaseURL+"/solution", bytes.NewReader(payload))
		if err != nil {
			return domain.WrapMinerError(domain.ErrClientRequest.Code, "build request", err)
		}
		req.Header.Set("Content-Type", "application/json")

		result, err = c.doSubmit(req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("submit solution for %s: %w", address, err)
	}
	return result, nil
}

// doSubmit executes one submission attempt and classifies the response.
func (c *Client) doSubmit(req *http.Request) (*domain.SubmitResult, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.WrapMinerError(domain.ErrTransient.Code, "read response body", err)
	}

	var sr submitResponse
	// Tolerate non-JSON error bodies; classification falls back to status.
	_ = json.Unmarshal(data, &sr)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if isDuplicateStatus(sr.Status) {
			return &domain.SubmitResult{Outcome: domain.SubmitDuplicate}, nil
		}
		return &domain.SubmitResult{Outcome: domain.SubmitAccepted, Receipt: sr.Receipt}, nil

	case resp.StatusCode == http.StatusConflict:
		return &domain.SubmitResult{Outcome: domain.SubmitDuplicate}, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return nil, domain.NewMinerError(domain.ErrTransient.Code,
			fmt.Sprintf("acceptance service busy: status %d", resp.StatusCode))

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		if isDuplicateStatus(sr.Status) || strings.Contains(strings.ToLower(string(data)), "already") {
			return &domain.SubmitResult{Outcome: domain.SubmitDuplicate}, nil
		}
		reason := sr.Reason
		if reason == "" {
			reason = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return &domain.SubmitResult{Outcome: domain.SubmitRejected, Reason: reason}, nil

	default:
		return nil, domain.NewMinerError(domain.ErrTransient.Code,
			fmt.Sprintf("unexpected status %d from acceptance endpoint", resp.StatusCode))
	}
}

// do executes a GET-style request and decodes the JSON body.
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

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		return domain.NewMinerError(domain.ErrClientRequest.Code,
			fmt.Sprintf("status %d: %s", resp.StatusCode, data))
	default:
		return domain.NewMinerError(domain.ErrTransient.Code,
			fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return domain.WrapMinerError(domain.ErrTransient.Code, "decode response", err)
	}
	return nil
}

func (c *Client) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.Retry.MaxAttempts; attempt++ {
		if delay := c.cfg.Retry.Delay(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return domain.WrapMinerError(domain.ErrTransient.Code, "retry canceled", ctx.Err())
			case <-time.After(delay):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if !domain.IsTransient(err) {
			return err
		}
	}
	return domain.WrapMinerError(domain.ErrRetriesExhausted.Code,
		fmt.Sprintf("%d attempts failed", c.cfg.Retry.MaxAttempts), lastErr)
}

func parsePhase(s string) (domain.ChallengePhase, error) {
	switch domain.ChallengePhase(s) {
	case domain.PhasePending, domain.PhaseActive, domain.PhaseEnded:
		return domain.ChallengePhase(s), nil
	default:
		return "", domain.NewMinerError(domain.ErrTransient.Code,
			fmt.Sprintf("unknown challenge phase %q", s))
	}
}

// isDuplicateStatus reports whether the response status marks a solution
// that was already accepted for this challenge.
func isDuplicateStatus(status string) bool {
	switch status {
	case "duplicate", "already_exists", "already_accepted":
		return true
	}
	return false
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapMinerError(domain.ErrTransient.Code, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.WrapMinerError(domain.ErrTransient.Code, "network timeout", err)
	}
	return domain.WrapMinerError(domain.ErrTransient.Code, "connection failure", err)
}
