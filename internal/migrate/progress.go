package migrate

import (
	"context"
	"sync"
	"time"

	"github.com/JonMunkholm/eventmigrate/internal/logging"
	"github.com/JonMunkholm/eventmigrate/internal/store"
)

// Phase is the coarse state of a run.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseResetting Phase = "resetting"
	PhaseUsers     Phase = "users"
	PhaseTenants   Phase = "tenants"
	PhaseComplete  Phase = "complete"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
)

// Snapshot is the progress of the current or last run.
type Snapshot struct {
	RunID     string          `json:"runId,omitempty"`
	Phase     Phase           `json:"phase"`
	Tenant    string          `json:"tenant,omitempty"`
	Stage     Stage           `json:"stage,omitempty"`
	StartedAt time.Time       `json:"startedAt,omitzero"`
	Users     StageCounts     `json:"users"`
	Tenants   []TenantSummary `json:"tenants"`
	Error     string          `json:"error,omitempty"`
	Code      string          `json:"code,omitempty"`
}

// Progress holds the latest Snapshot. It is safe for concurrent use; the
// status server reads it while a run writes it.
type Progress struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewProgress returns an idle Progress.
func NewProgress() *Progress {
	return &Progress{snap: Snapshot{Phase: PhaseIdle}}
}

// Snapshot returns a copy of the current state.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.snap
	s.Tenants = append([]TenantSummary(nil), p.snap.Tenants...)
	return s
}

func (p *Progress) update(fn func(*Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.snap)
}

// Recorder receives stage and tenant outcomes, typically for metrics.
type Recorder interface {
	ObserveStage(stage string, migrated, skipped int, elapsed time.Duration)
	ObserveTenant(status string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, int, int, time.Duration) {}
func (nopRecorder) ObserveTenant(string)                         {}

// stageTables lists the tables whose row counts are logged around a stage.
var stageTables = map[Stage][]store.Table{
	StageUsers:       {store.TableUsers},
	StageTenant:      {store.TableTenants},
	StageRoles:       {store.TableRoles},
	StageAssignments: {store.TableUserTenants, store.TableRoleAssignments},
	StageCategories:  {store.TableCategories, store.TableIcons},
	StageTemplates:   {store.TableTemplates, store.TableTemplateOptions, store.TableIcons},
	StageEvents:      {store.TableEvents, store.TableEventOptions, store.TableIcons},
}

// runStage runs fn as stage, logging table counts before and after it and
// reporting the outcome to the recorder and the progress snapshot.
func (s *Service) runStage(ctx context.Context, stage Stage, fn func(context.Context) (StageCounts, error)) (StageResult, error) {
	ctx = logging.WithFields(ctx, "stage", string(stage))
	log := logging.FromContext(ctx)

	if err := ctx.Err(); err != nil {
		return StageResult{}, err
	}
	s.progress.update(func(snap *Snapshot) { snap.Stage = stage })

	before, err := s.tableCounts(ctx, stage)
	if err != nil {
		return StageResult{}, err
	}
	log.Info("stage started", "counts", before)

	start := time.Now()
	counts, err := fn(ctx)
	elapsed := time.Since(start)
	if err != nil {
		log.Warn("stage aborted", "duration_ms", elapsed.Milliseconds())
		return StageResult{}, err
	}

	after, err := s.tableCounts(ctx, stage)
	if err != nil {
		return StageResult{}, err
	}
	log.Info("stage finished",
		"counts", after,
		"migrated", counts.Migrated,
		"skipped", counts.Skipped,
		"duration_ms", elapsed.Milliseconds(),
	)

	s.recorder.ObserveStage(string(stage), counts.Migrated, counts.Skipped, elapsed)
	return StageResult{Stage: stage, Counts: counts, Duration: elapsed}, nil
}

func (s *Service) tableCounts(ctx context.Context, stage Stage) (map[string]int64, error) {
	tables := stageTables[stage]
	out := make(map[string]int64, len(tables))
	for _, t := range tables {
		n, err := s.store.Count(ctx, t)
		if err != nil {
			return nil, err
		}
		out[string(t)] = n
	}
	return out, nil
}
