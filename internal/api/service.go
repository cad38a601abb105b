package api

import (
	"context"

	"gister/internal/budget"
	"gister/internal/checkpoint"
	"gister/internal/deadletter"
	"gister/internal/store"
	"gister/internal/workflow"
)

// StatusProvider reports live workflow diagnostics. Satisfied by
// workflow.Manager; tests substitute a stub.
type StatusProvider interface {
	Status(ctx context.Context) workflow.StatusSummary
}

// Service exposes the operational query surface backing the HTTP API and
// the CLI.
type Service struct {
	store       *store.Store
	status      StatusProvider
	budget      *budget.Enforcer
	checkpoints *checkpoint.Manager
	deadletters *deadletter.Manager
}

func NewService(st *store.Store, status StatusProvider, enforcer *budget.Enforcer, checkpoints *checkpoint.Manager, deadletters *deadletter.Manager) *Service {
	return &Service{
		store:       st,
		status:      status,
		budget:      enforcer,
		checkpoints: checkpoints,
		deadletters: deadletters,
	}
}

// Status returns the combined pipeline view: run state, per-status counts,
// stage health, and today's budget rows.
func (s *Service) Status(ctx context.Context) (PipelineStatus, error) {
	var status PipelineStatus
	if s.status != nil {
		status = FromStatusSummary(s.status.Status(ctx))
	} else {
		counts, err := s.store.CountsByStatus(ctx)
		if err != nil {
			return PipelineStatus{}, err
		}
		converted := make(map[string]int, len(counts))
		for st, count := range counts {
			converted[string(st)] = count
		}
		status.Counts = converted
	}
	if s.budget != nil {
		states, err := s.budget.Snapshot(ctx)
		if err != nil {
			return PipelineStatus{}, err
		}
		status.Budget = FromBudgetStates(states)
	}
	return status, nil
}

// Items returns items filtered by status, or all items when no statuses are
// given.
func (s *Service) Items(ctx context.Context, statuses ...store.Status) ([]Item, error) {
	items, err := s.store.ListItems(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromItems(items), nil
}

// ItemDetail returns one item with its full job history, or nil when the
// key is unknown.
func (s *Service) ItemDetail(ctx context.Context, naturalKey string) (*Item, []Job, error) {
	item, err := s.store.GetByKey(ctx, naturalKey)
	if err != nil || item == nil {
		return nil, nil, err
	}
	jobs, err := s.store.JobsForItem(ctx, naturalKey)
	if err != nil {
		return nil, nil, err
	}
	dto := FromItem(item)
	converted := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		converted = append(converted, FromJob(job))
	}
	return &dto, converted, nil
}

// DeadLetters returns parked entries matching the filter.
func (s *Service) DeadLetters(ctx context.Context, filter store.DeadLetterFilter) ([]DeadLetter, error) {
	entries, err := s.deadletters.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromDeadLetters(entries), nil
}

// RequeueDeadLetter is the one operator mutation: put a parked item back
// into its queue.
func (s *Service) RequeueDeadLetter(ctx context.Context, id string) (*DeadLetter, error) {
	entry, err := s.deadletters.Requeue(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromDeadLetter(entry)
	return &dto, nil
}

// Budget returns today's usage per dimension.
func (s *Service) Budget(ctx context.Context) ([]BudgetDay, error) {
	states, err := s.budget.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return FromBudgetStates(states), nil
}

// Checkpoints returns the discovery watermarks.
func (s *Service) Checkpoints(ctx context.Context) ([]Checkpoint, error) {
	cps, err := s.checkpoints.List(ctx)
	if err != nil {
		return nil, err
	}
	return FromCheckpoints(cps), nil
}

// Audit returns the most recent audit rows.
func (s *Service) Audit(ctx context.Context, limit int) ([]AuditRecord, error) {
	entries, err := s.store.RecentAudit(ctx, limit)
	if err != nil {
		return nil, err
	}
	return FromAuditEntries(entries), nil
}
