package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mineworks/scavengerd/internal/domain"
	"github.com/mineworks/scavengerd/internal/retry"
)

func fastClient(baseURL string) *Client {
	return NewClient(ClientConfig{
		BaseURL:       baseURL,
		SubmitTimeout: 2 * time.Second,
		Retry: retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			Jitter:      func(time.Duration) time.Duration { return 0 },
		},
	})
}

func TestFetchChallenge_Active(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/challenge/current" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(challengeResponse{
			Phase: "active",
			Challenge: &challengeWire{
				ChallengeID:      "ch-7",
				Difficulty:       "0000ffff",
				NoPreMine:        "aabb",
				LatestSubmission: "ccdd",
				NoPreMineHour:    "eeff",
			},
		})
	}))
	defer srv.Close()

	phase, ch, err := fastClient(srv.URL).FetchChallenge(context.Background())
	if err != nil {
		t.Fatalf("FetchChallenge: %v", err)
	}
	if phase != domain.PhaseActive {
		t.Errorf("phase = %q, want active", phase)
	}
	if ch == nil || ch.ID != "ch-7" || ch.Difficulty != "0000ffff" {
		t.Errorf("challenge = %+v, want ch-7 / 0000ffff", ch)
	}
	if ch.ObservedAt == 0 {
		t.Error("ObservedAt not set")
	}
}

func TestFetchChallenge_PendingHasNoDescriptor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(challengeResponse{Phase: "pending"})
	}))
	defer srv.Close()

	phase, ch, err := fastClient(srv.URL).FetchChallenge(context.Background())
	if err != nil {
		t.Fatalf("FetchChallenge: %v", err)
	}
	if phase != domain.PhasePending {
		t.Errorf("phase = %q, want pending", phase)
	}
	if ch != nil {
		t.Errorf("challenge = %+v, want nil", ch)
	}
}

func TestFetchChallenge_UnknownPhase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(challengeResponse{Phase: "weird"})
	}))
	defer srv.Close()

	_, _, err := fastClient(srv.URL).FetchChallenge(context.Background())
	if err == nil {
		t.Fatal("expected error for unknown phase, got nil")
	}
}

func TestSubmit_Accepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Address != "addr1qaa" || req.ChallengeID != "ch-7" || req.Nonce != "2a" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(submitResponse{Status: "accepted", Receipt: "rcpt-1"})
	}))
	defer srv.Close()

	res, err := fastClient(srv.URL).Submit(context.Background(), "addr1qaa", "ch-7", "2a")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Outcome != domain.SubmitAccepted || res.Receipt != "rcpt-1" {
		t.Errorf("result = %+v, want accepted with rcpt-1", res)
	}
}

func TestSubmit_DuplicateByStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	res, err := fastClient(srv.URL).Submit(context.Background(), "a", "c", "n")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Outcome != domain.SubmitDuplicate {
		t.Errorf("outcome = %q, want duplicate", res.Outcome)
	}
}

func TestSubmit_DuplicateByBodyMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(submitResponse{Status: "rejected", Reason: "solution already submitted"})
	}))
	defer srv.Close()

	res, err := fastClient(srv.URL).Submit(context.Background(), "a", "c", "n")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Outcome != domain.SubmitDuplicate {
		t.Errorf("outcome = %q, want duplicate (body marker)", res.Outcome)
	}
}

func TestSubmit_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(submitResponse{Status: "rejected", Reason: "stale challenge"})
	}))
	defer srv.Close()

	res, err := fastClient(srv.URL).Submit(context.Background(), "a", "c", "n")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Outcome != domain.SubmitRejected {
		t.Errorf("outcome = %q, want rejected", res.Outcome)
	}
	if res.Reason != "stale challenge" {
		t.Errorf("reason = %q, want stale challenge", res.Reason)
	}
}

func TestSubmit_TransientRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(submitResponse{Status: "accepted", Receipt: "rcpt-2"})
	}))
	defer srv.Close()

	res, err := fastClient(srv.URL).Submit(context.Background(), "a", "c", "n")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Outcome != domain.SubmitAccepted {
		t.Errorf("outcome = %q, want accepted after retry", res.Outcome)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}
