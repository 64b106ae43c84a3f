// Package domain defines the core types for the scavenger orchestrator.
package domain

// ChallengePhase is the phase code reported by the remote challenge source.
type ChallengePhase string

const (
	PhasePending ChallengePhase = "pending"
	PhaseActive  ChallengePhase = "active"
	PhaseEnded   ChallengePhase = "ended"
)

// Challenge is one proof-of-work round as observed from the remote source.
// Challenges are immutable once observed and compared by ID only.
type Challenge struct {
	ID               string
	Difficulty       string // hex-encoded difficulty mask, opaque to the core
	NoPreMine        string // ROM seed blob, forwarded to the compute engine
	LatestSubmission string
	NoPreMineHour    string
	ObservedAt       int64
}

// WorkItem is a single address eligible for mining. The item list is supplied
// at startup and never modified by the orchestrator; only its per-challenge
// solved/in-progress marks change.
type WorkItem struct {
	Index      int
	Address    string
	Registered bool
	Fee        bool
}

// Solution is the result of one successful mining call, scoped to a
// (challenge, address) pair. It is consumed immediately by submission and
// never stored by the orchestrator itself.
type Solution struct {
	Nonce    string
	Hash     string
	Preimage string
}

// SubmitOutcome classifies the acceptance endpoint's response.
type SubmitOutcome string

const (
	SubmitAccepted  SubmitOutcome = "accepted"
	SubmitDuplicate SubmitOutcome = "duplicate"
	SubmitRejected  SubmitOutcome = "rejected"
)

// SubmitResult is the acceptance endpoint's response to one solution.
type SubmitResult struct {
	Outcome SubmitOutcome
	Receipt string // opaque receipt token, empty unless accepted
	Reason  string // rejection reason, empty unless rejected
}

// EngineStats is the compute engine's telemetry snapshot.
type EngineStats struct {
	TotalHashes    uint64 `json:"total_hashes"`
	SolutionsFound uint64 `json:"solutions_found"`
	HashRate       uint64 `json:"hash_rate"`
	UptimeSeconds  uint64 `json:"uptime_seconds"`
	MiningActive   bool   `json:"mining_active"`
	CPUMode        string `json:"cpu_mode"`
}

// SlotState is the lifecycle state of a worker slot's loop.
type SlotState string

const (
	SlotIdle       SlotState = "idle"
	SlotClaiming   SlotState = "claiming"
	SlotMining     SlotState = "mining"
	SlotSubmitting SlotState = "submitting"
	SlotExited     SlotState = "exited"
)

// Receipt records one submission outcome in the append-only log.
type Receipt struct {
	ID          string        `json:"id"`
	ChallengeID string        `json:"challenge_id"`
	Address     string        `json:"address"`
	Nonce       string        `json:"nonce"`
	Token       string        `json:"token,omitempty"`
	Fee         bool          `json:"fee"`
	Outcome     SubmitOutcome `json:"outcome"`
	CreatedAt   int64         `json:"created_at"`
}

// ChallengeLogEntry records when a challenge was adopted and retired.
type ChallengeLogEntry struct {
	ChallengeID string `json:"challenge_id"`
	Difficulty  string `json:"difficulty"`
	StartedAt   int64  `json:"started_at"`
	CompletedAt int64  `json:"completed_at,omitempty"` // zero until the challenge is superseded or ends
	SolvedCount int    `json:"solved_count"`
}

// StatsSample is one persisted engine telemetry reading.
type StatsSample struct {
	ID             int64  `json:"id"`
	ChallengeID    string `json:"challenge_id,omitempty"`
	TotalHashes    uint64 `json:"total_hashes"`
	SolutionsFound uint64 `json:"solutions_found"`
	HashRate       uint64 `json:"hash_rate"`
	MiningActive   bool   `json:"mining_active"`
	CreatedAt      int64  `json:"created_at"`
}

// EventRecord is one persisted orchestrator event. SeqNo is assigned by
// the store and strictly increases in insertion order.
type EventRecord struct {
	SeqNo       int64  `json:"seq_no"`
	Type        string `json:"type"`
	ChallengeID string `json:"challenge_id,omitempty"`
	Address     string `json:"address,omitempty"`
	Fee         bool   `json:"fee,omitempty"`
	Message     string `json:"message,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// StatusSnapshot is the pull-based status view of the orchestrator.
type StatusSnapshot struct {
	Running             bool    `json:"running"`
	ChallengeID         string  `json:"challenge_id"`
	Transitioning       bool    `json:"transitioning"`
	AcceptedTotal       int64   `json:"accepted_total"`
	TotalItems          int     `json:"total_items"`
	SolvedThisChallenge int     `json:"solved_this_challenge"`
	HashRate            uint64  `json:"hash_rate"`
	UptimeSeconds       float64 `json:"uptime_seconds"`
}
