package ipc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mineworks/scavengerd/internal/domain"
	"github.com/mineworks/scavengerd/internal/orchestrator"
	"github.com/mineworks/scavengerd/internal/store"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.NewDB(dbPath)
	if err != nil {
		t.Fatalf("create db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	items := []domain.WorkItem{
		{Index: 0, Address: "addr-00", Registered: true},
		{Index: 1, Address: "addr-01", Registered: true},
	}
	orch := orchestrator.New(orchestrator.Config{Workers: 2}, nil, nil, nil, nil, items, nil, nil)

	return &Handler{
		Orchestrator:  orch,
		DB:            db,
		ReceiptRepo:   &store.ReceiptRepo{},
		ChallengeRepo: &store.ChallengeRepo{},
		EventRepo:     &store.EventRepo{},
		StatsRepo:     &store.StatsRepo{},
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()

	h.Health(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp HealthResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %s", resp.Status)
	}
	if resp.Time == 0 {
		t.Errorf("expected a timestamp")
	}
}

func TestStatus(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()

	h.Status(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap domain.StatusSnapshot
	json.NewDecoder(w.Body).Decode(&snap)
	if snap.Running {
		t.Errorf("expected running=false before start")
	}
	if snap.TotalItems != 2 {
		t.Errorf("expected 2 total items, got %d", snap.TotalItems)
	}
}

func TestListReceipts(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	rec := domain.Receipt{
		ChallengeID: "ch-1",
		Address:     "addr-00",
		Nonce:       "n1",
		Outcome:     domain.SubmitAccepted,
		CreatedAt:   time.Now().Unix(),
	}
	if err := h.ReceiptRepo.Record(ctx, h.DB, rec); err != nil {
		t.Fatalf("record receipt: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/receipts/ch-1", nil)
	req.SetPathValue("challengeID", "ch-1")
	w := httptest.NewRecorder()

	h.ListReceipts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var recs []domain.Receipt
	json.NewDecoder(w.Body).Decode(&recs)
	if len(recs) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(recs))
	}
	if recs[0].Address != "addr-00" {
		t.Errorf("expected addr-00, got %s", recs[0].Address)
	}
}

func TestListReceipts_Empty(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/receipts/none", nil)
	req.SetPathValue("challengeID", "none")
	w := httptest.NewRecorder()

	h.ListReceipts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("expected empty array, got %s", got)
	}
}

func TestListChallenges(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	ch := domain.Challenge{ID: "ch-1", Difficulty: "00ffff"}
	if err := h.ChallengeRepo.MarkStarted(ctx, h.DB, ch); err != nil {
		t.Fatalf("mark started: %v", err)
	}
	if err := h.ChallengeRepo.MarkCompleted(ctx, h.DB, "ch-1", 7); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/challenges", nil)
	w := httptest.NewRecorder()

	h.ListChallenges(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var entries []domain.ChallengeLogEntry
	json.NewDecoder(w.Body).Decode(&entries)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].SolvedCount != 7 {
		t.Errorf("expected solved_count=7, got %d", entries[0].SolvedCount)
	}
}

func TestListEvents(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := h.EventRepo.Append(ctx, h.DB, domain.EventRecord{
			Type: "worker-solved", ChallengeID: "ch-1",
		})
		if err != nil {
			t.Fatalf("append event: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?since_seq=1", nil)
	w := httptest.NewRecorder()

	h.ListEvents(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var events []domain.EventRecord
	json.NewDecoder(w.Body).Decode(&events)
	if len(events) != 2 {
		t.Fatalf("expected 2 events past seq 1, got %d", len(events))
	}
}

func TestStatsHistory(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := h.StatsRepo.Record(ctx, h.DB, domain.StatsSample{
			ChallengeID: "ch-1", HashRate: uint64(100 + i),
		})
		if err != nil {
			t.Fatalf("record sample: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats/history?limit=2", nil)
	w := httptest.NewRecorder()

	h.StatsHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var samples []domain.StatsSample
	json.NewDecoder(w.Body).Decode(&samples)
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].HashRate != 102 {
		t.Errorf("expected newest sample first, got hash_rate=%d", samples[0].HashRate)
	}
}

func TestStreamEvents(t *testing.T) {
	h := newTestHandler(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.StreamEvents(w, req)
	}()

	// Give the handler time to subscribe, then publish and tear down.
	bus := h.Orchestrator.Bus()
	deadline := time.After(2 * time.Second)
	for bus.SubscriberCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("handler never subscribed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	bus.Publish(orchestrator.Event{Type: orchestrator.EventChallengeStarted, ChallengeID: "ch-1"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: challenge-started") {
		t.Errorf("expected SSE event line, got %q", body)
	}
	if !strings.Contains(body, `"challenge_id":"ch-1"`) {
		t.Errorf("expected challenge id in payload, got %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected SSE content type, got %s", ct)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestHandler(t)
	srv := NewServer(h, ":0")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	w := httptest.NewRecorder()

	srv.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("expected CORS origin header")
	}
}
