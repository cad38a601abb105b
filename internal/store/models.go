package store

import (
	"strings"
	"time"
)

// Stage identifies one step of the fixed pipeline.
type Stage string

const (
	StageTranscribe Stage = "transcription"
	StageSummarize  Stage = "summarization"
	StageFinalize   Stage = "finalize"
)

// Status represents the lifecycle of a pipeline item.
type Status string

const (
	StatusDiscovered   Status = "discovered"
	StatusTranscribing Status = "transcribing"
	StatusTranscribed  Status = "transcribed"
	StatusSummarizing  Status = "summarizing"
	StatusSummarized   Status = "summarized"
	StatusFinalizing   Status = "finalizing"
	StatusDone         Status = "done"
	StatusRejected     Status = "rejected"
	StatusDeadLettered Status = "dead_lettered"
)

// Source identifies how an item entered the pipeline.
type Source string

const (
	SourceAutomated Source = "automated"
	SourceBackfill  Source = "manual-backfill"
)

var allStatuses = []Status{
	StatusDiscovered,
	StatusTranscribing,
	StatusTranscribed,
	StatusSummarizing,
	StatusSummarized,
	StatusFinalizing,
	StatusDone,
	StatusRejected,
	StatusDeadLettered,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// legalTransitions is the closed transition table. The two absorbing statuses
// are additionally reachable from every non-terminal status.
var legalTransitions = map[Status][]Status{
	StatusDiscovered:   {StatusTranscribing},
	StatusTranscribing: {StatusTranscribed, StatusDiscovered},
	StatusTranscribed:  {StatusSummarizing},
	StatusSummarizing:  {StatusSummarized, StatusTranscribed},
	StatusSummarized:   {StatusFinalizing},
	StatusFinalizing:   {StatusDone, StatusSummarized},
	StatusDeadLettered: {StatusDiscovered, StatusTranscribed, StatusSummarized},
}

var processingStatuses = map[Status]struct{}{
	StatusTranscribing: {},
	StatusSummarizing:  {},
	StatusFinalizing:   {},
}

var terminalStatuses = map[Status]struct{}{
	StatusDone:     {},
	StatusRejected: {},
}

// IsLegalTransition reports whether from -> to appears in the transition
// table. Dead-lettering and rejection are legal from any non-terminal status.
func IsLegalTransition(from, to Status) bool {
	if from == to {
		return false
	}
	if to == StatusDeadLettered || to == StatusRejected {
		return !IsTerminalStatus(from) && from != StatusDeadLettered
	}
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether a status is absorbing for the pipeline.
// Dead-lettered items are parked, not terminal: an operator requeue can still
// move them.
func IsTerminalStatus(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Item represents one unit of pipeline work persisted in SQLite.
type Item struct {
	ID              int64
	NaturalKey      string
	Title           string
	Status          Status
	DurationSeconds int
	Source          Source
	SheetOrigin     string
	PublishedAt     time.Time
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsProcessing returns true when the item has an in-flight stage.
func (i Item) IsProcessing() bool {
	return IsProcessingStatus(i.Status)
}

// Job is an attempt record for one pipeline stage against one item.
type Job struct {
	ID             int64
	ItemKey        string
	Stage          Stage
	AttemptCount   int
	ExternalRef    string
	LastError      string
	FailureHistory []FailureRecord
	NextRetryAt    *time.Time
	ResolvedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FailureRecord is one error snapshot in a job's failure history.
type FailureRecord struct {
	Attempt    int       `json:"attempt"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Severity grades dead letter entries for operator triage.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// DeadLetterEntry is the terminal failure record for one (item, stage) pair.
type DeadLetterEntry struct {
	ID             string
	ItemKey        string
	Stage          Stage
	AttemptCount   int
	FailureHistory []FailureRecord
	Severity       Severity
	CreatedAt      time.Time
	RequeuedAt     *time.Time
}

// BudgetState is one calendar day of usage for one budget dimension.
type BudgetState struct {
	DateKey    string
	Dimension  string
	AmountUsed float64
	Reserved   float64
	Limit      float64
	Unit       string
	Warned     bool
	UpdatedAt  time.Time
}

// Remaining returns the headroom left under the limit, counting outstanding
// reservations.
func (b BudgetState) Remaining() float64 {
	remaining := b.Limit - b.AmountUsed - b.Reserved
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Checkpoint is the monotonic discovery watermark for one source.
type Checkpoint struct {
	SourceID  string
	Watermark time.Time
	UpdatedAt time.Time
}

// AuditEntry is one append-only audit log row.
type AuditEntry struct {
	ID        int64
	Actor     string
	Action    string
	Entity    string
	EntityID  string
	Details   string
	CreatedAt time.Time
}

// StatusCounts aggregates item counts per lifecycle status.
type StatusCounts map[Status]int
