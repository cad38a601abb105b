package api

import (
	"sort"
	"time"

	"gister/internal/store"
	"gister/internal/workflow"
)

// FromItem converts a store item into its transport representation.
func FromItem(item *store.Item) Item {
	if item == nil {
		return Item{}
	}
	return Item{
		ID:              item.ID,
		NaturalKey:      item.NaturalKey,
		Title:           item.Title,
		Status:          string(item.Status),
		DurationSeconds: item.DurationSeconds,
		Source:          string(item.Source),
		SheetOrigin:     item.SheetOrigin,
		PublishedAt:     formatTime(item.PublishedAt),
		LastError:       item.LastError,
		CreatedAt:       formatTime(item.CreatedAt),
		UpdatedAt:       formatTime(item.UpdatedAt),
	}
}

// FromItems converts a slice of store items.
func FromItems(items []*store.Item) []Item {
	converted := make([]Item, 0, len(items))
	for _, item := range items {
		converted = append(converted, FromItem(item))
	}
	return converted
}

// FromJob converts a job attempt record.
func FromJob(job *store.Job) Job {
	if job == nil {
		return Job{}
	}
	return Job{
		ID:          job.ID,
		ItemKey:     job.ItemKey,
		Stage:       string(job.Stage),
		Attempts:    job.AttemptCount,
		ExternalRef: job.ExternalRef,
		LastError:   job.LastError,
		Failures:    fromFailures(job.FailureHistory),
		NextRetryAt: formatTimePtr(job.NextRetryAt),
		ResolvedAt:  formatTimePtr(job.ResolvedAt),
	}
}

// FromDeadLetter converts a parked entry.
func FromDeadLetter(entry *store.DeadLetterEntry) DeadLetter {
	if entry == nil {
		return DeadLetter{}
	}
	return DeadLetter{
		ID:         entry.ID,
		ItemKey:    entry.ItemKey,
		Stage:      string(entry.Stage),
		Attempts:   entry.AttemptCount,
		Severity:   string(entry.Severity),
		Failures:   fromFailures(entry.FailureHistory),
		CreatedAt:  formatTime(entry.CreatedAt),
		RequeuedAt: formatTimePtr(entry.RequeuedAt),
	}
}

// FromDeadLetters converts a slice of parked entries.
func FromDeadLetters(entries []*store.DeadLetterEntry) []DeadLetter {
	converted := make([]DeadLetter, 0, len(entries))
	for _, entry := range entries {
		converted = append(converted, FromDeadLetter(entry))
	}
	return converted
}

// FromBudgetState converts one day of budget usage.
func FromBudgetState(state *store.BudgetState) BudgetDay {
	if state == nil {
		return BudgetDay{}
	}
	return BudgetDay{
		Date:      state.DateKey,
		Dimension: state.Dimension,
		Used:      state.AmountUsed,
		Reserved:  state.Reserved,
		Limit:     state.Limit,
		Remaining: state.Remaining(),
		Unit:      state.Unit,
		Warned:    state.Warned,
	}
}

// FromBudgetStates converts a slice of budget rows.
func FromBudgetStates(states []*store.BudgetState) []BudgetDay {
	converted := make([]BudgetDay, 0, len(states))
	for _, state := range states {
		converted = append(converted, FromBudgetState(state))
	}
	return converted
}

// FromCheckpoint converts a discovery watermark.
func FromCheckpoint(cp *store.Checkpoint) Checkpoint {
	if cp == nil {
		return Checkpoint{}
	}
	return Checkpoint{
		SourceID:  cp.SourceID,
		Watermark: formatTime(cp.Watermark),
		UpdatedAt: formatTime(cp.UpdatedAt),
	}
}

// FromCheckpoints converts a slice of watermarks.
func FromCheckpoints(cps []*store.Checkpoint) []Checkpoint {
	converted := make([]Checkpoint, 0, len(cps))
	for _, cp := range cps {
		converted = append(converted, FromCheckpoint(cp))
	}
	return converted
}

// FromAuditEntry converts one audit row.
func FromAuditEntry(entry *store.AuditEntry) AuditRecord {
	if entry == nil {
		return AuditRecord{}
	}
	return AuditRecord{
		ID:        entry.ID,
		Actor:     entry.Actor,
		Action:    entry.Action,
		Entity:    entry.Entity,
		EntityID:  entry.EntityID,
		Details:   entry.Details,
		CreatedAt: formatTime(entry.CreatedAt),
	}
}

// FromAuditEntries converts a slice of audit rows.
func FromAuditEntries(entries []*store.AuditEntry) []AuditRecord {
	converted := make([]AuditRecord, 0, len(entries))
	for _, entry := range entries {
		converted = append(converted, FromAuditEntry(entry))
	}
	return converted
}

// FromStatusSummary converts workflow diagnostics into the status view.
func FromStatusSummary(summary workflow.StatusSummary) PipelineStatus {
	counts := make(map[string]int, len(summary.Counts))
	for status, count := range summary.Counts {
		counts[string(status)] = count
	}
	return PipelineStatus{
		Running:     summary.Running,
		Counts:      counts,
		OpenJobs:    summary.OpenJobs,
		LastError:   summary.LastError,
		StageHealth: stageHealthSlice(summary),
	}
}

// stageHealthSlice flattens the health map into a deterministic order.
func stageHealthSlice(summary workflow.StatusSummary) []StageHealth {
	names := make([]string, 0, len(summary.StageHealth))
	for name := range summary.StageHealth {
		names = append(names, name)
	}
	sort.Strings(names)

	health := make([]StageHealth, 0, len(names))
	for _, name := range names {
		h := summary.StageHealth[name]
		health = append(health, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return health
}

func fromFailures(records []store.FailureRecord) []Failure {
	if len(records) == 0 {
		return nil
	}
	failures := make([]Failure, 0, len(records))
	for _, record := range records {
		failures = append(failures, Failure{
			Attempt:    record.Attempt,
			Kind:       record.Kind,
			Message:    record.Message,
			OccurredAt: formatTime(record.OccurredAt),
		})
	}
	return failures
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
