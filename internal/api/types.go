package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Item describes a pipeline item in a transport-friendly format.
type Item struct {
	ID              int64  `json:"id"`
	NaturalKey      string `json:"naturalKey"`
	Title           string `json:"title"`
	Status          string `json:"status"`
	DurationSeconds int    `json:"durationSeconds"`
	Source          string `json:"source"`
	SheetOrigin     string `json:"sheetOrigin,omitempty"`
	PublishedAt     string `json:"publishedAt,omitempty"`
	LastError       string `json:"lastError,omitempty"`
	CreatedAt       string `json:"createdAt,omitempty"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

// Job describes one stage attempt record for an item.
type Job struct {
	ID          int64     `json:"id"`
	ItemKey     string    `json:"itemKey"`
	Stage       string    `json:"stage"`
	Attempts    int       `json:"attempts"`
	ExternalRef string    `json:"externalRef,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
	Failures    []Failure `json:"failures,omitempty"`
	NextRetryAt string    `json:"nextRetryAt,omitempty"`
	ResolvedAt  string    `json:"resolvedAt,omitempty"`
}

// Failure is one entry in a job's failure history.
type Failure struct {
	Attempt    int    `json:"attempt"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	OccurredAt string `json:"occurredAt"`
}

// DeadLetter describes a parked item awaiting operator triage.
type DeadLetter struct {
	ID         string    `json:"id"`
	ItemKey    string    `json:"itemKey"`
	Stage      string    `json:"stage"`
	Attempts   int       `json:"attempts"`
	Severity   string    `json:"severity"`
	Failures   []Failure `json:"failures,omitempty"`
	CreatedAt  string    `json:"createdAt,omitempty"`
	RequeuedAt string    `json:"requeuedAt,omitempty"`
}

// BudgetDay is one day of usage for one budget dimension.
type BudgetDay struct {
	Date      string  `json:"date"`
	Dimension string  `json:"dimension"`
	Used      float64 `json:"used"`
	Reserved  float64 `json:"reserved"`
	Limit     float64 `json:"limit"`
	Remaining float64 `json:"remaining"`
	Unit      string  `json:"unit"`
	Warned    bool    `json:"warned"`
}

// Checkpoint is the discovery watermark for one source.
type Checkpoint struct {
	SourceID  string `json:"sourceId"`
	Watermark string `json:"watermark"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// PipelineStatus summarizes daemon execution state for the status view.
type PipelineStatus struct {
	Running     bool           `json:"running"`
	Counts      map[string]int `json:"counts"`
	OpenJobs    int            `json:"openJobs"`
	LastError   string         `json:"lastError,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
	Budget      []BudgetDay    `json:"budget"`
}

// ItemListResponse wraps a collection of items for API responses.
type ItemListResponse struct {
	Items []Item `json:"items"`
}

// DeadLetterListResponse wraps parked entries.
type DeadLetterListResponse struct {
	Entries []DeadLetter `json:"entries"`
}

// BudgetResponse wraps the per-dimension budget rows for one day.
type BudgetResponse struct {
	Days []BudgetDay `json:"days"`
}

// CheckpointListResponse wraps the known discovery watermarks.
type CheckpointListResponse struct {
	Checkpoints []Checkpoint `json:"checkpoints"`
}

// AuditRecord is one append-only audit log row.
type AuditRecord struct {
	ID        int64  `json:"id"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Entity    string `json:"entity"`
	EntityID  string `json:"entityId"`
	Details   string `json:"details,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// AuditListResponse wraps recent audit rows.
type AuditListResponse struct {
	Records []AuditRecord `json:"records"`
}
