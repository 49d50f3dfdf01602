package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/eventmigrate/internal/legacy"
	"github.com/JonMunkholm/eventmigrate/internal/logging"
	"github.com/JonMunkholm/eventmigrate/internal/richtext"
	"github.com/JonMunkholm/eventmigrate/internal/store"
)

// ErrResetRefused is returned when a target reset is requested against a
// production environment.
var ErrResetRefused = errors.New("target reset refused in production")

// IconEnsurer stores the icons a stage references.
type IconEnsurer interface {
	Ensure(ctx context.Context, tenantID string, refs []string) error
}

// Options configures a Service.
type Options struct {
	// BatchSize is the page size of paged stages.
	BatchSize int

	// ResetTarget truncates the target before the run.
	ResetTarget bool

	// Production forbids any reset.
	Production bool

	Targets  []Target
	AuthIDs  AuthIDTransform
	Recorder Recorder
}

// Service runs migrations. Per-run state lives in a run value; a Service
// can be reused for several runs but not concurrently.
type Service struct {
	legacy   legacy.Store
	store    store.Store
	icons    IconEnsurer
	text     richtext.Converter
	opts     Options
	recorder Recorder
	progress *Progress
}

// NewService creates a Service. Zero options get defaults.
func NewService(src legacy.Store, dst store.Store, icons IconEnsurer, text richtext.Converter, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Targets == nil {
		opts.Targets = DefaultTargets
	}
	rec := opts.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Service{
		legacy:   src,
		store:    dst,
		icons:    icons,
		text:     text,
		opts:     opts,
		recorder: rec,
		progress: NewProgress(),
	}
}

// Progress exposes the live run state.
func (s *Service) Progress() *Progress {
	return s.progress
}

// Reset empties every target table. It refuses to run in production.
func (s *Service) Reset(ctx context.Context) error {
	if s.opts.Production {
		return ErrResetRefused
	}
	logging.FromContext(ctx).Warn("resetting target database", "tables", len(store.Tables))
	return s.store.Reset(ctx)
}

// run carries the state of one Run: the user resolver and the summary being
// built. Nothing in it outlives the run.
type run struct {
	*Service
	users   *Resolver
	summary *Summary
}

// Run executes one migration and returns its summary. The summary is
// returned with the error when the run fails part way.
func (s *Service) Run(ctx context.Context) (*Summary, error) {
	r := &run{
		Service: s,
		users:   NewResolver(s.legacy, s.store, s.opts.AuthIDs),
		summary: &Summary{RunID: store.NewID(), StartedAt: time.Now()},
	}
	ctx = logging.WithFields(ctx, "run_id", r.summary.RunID)
	log := logging.FromContext(ctx)

	s.progress.update(func(snap *Snapshot) {
		*snap = Snapshot{RunID: r.summary.RunID, Phase: PhaseIdle, StartedAt: r.summary.StartedAt}
	})
	log.Info("migration started", "targets", len(s.opts.Targets), "batch_size", s.opts.BatchSize)

	err := r.execute(ctx)

	r.summary.Duration = time.Since(r.summary.StartedAt)
	r.summary.Resolver = r.users.Stats()
	if err != nil {
		code := Classify(err)
		phase := PhaseFailed
		if errors.Is(err, context.Canceled) {
			phase = PhaseCancelled
		}
		s.progress.update(func(snap *Snapshot) {
			snap.Phase = phase
			snap.Error = err.Error()
			snap.Code = code.Code
		})
		log.Error("migration failed",
			"error", err,
			"code", code.Code,
			"support", FormatSupport(err),
			"duration_ms", r.summary.Duration.Milliseconds(),
		)
		return r.summary, err
	}

	s.progress.update(func(snap *Snapshot) {
		snap.Phase = PhaseComplete
		snap.Stage = ""
		snap.Tenant = ""
	})
	log.Info("migration complete",
		"users", r.summary.Users.Migrated,
		"tenants", len(r.summary.Tenants),
		"resolver_hits", r.summary.Resolver.Hits,
		"resolver_lookups", r.summary.Resolver.Lookups,
		"duration_ms", r.summary.Duration.Milliseconds(),
	)
	return r.summary, nil
}

func (r *run) execute(ctx context.Context) error {
	if r.opts.ResetTarget {
		r.progress.update(func(snap *Snapshot) { snap.Phase = PhaseResetting })
		if err := r.Reset(ctx); err != nil {
			return fmt.Errorf("clear target: %w", err)
		}
		r.summary.Reset = true
	}

	r.progress.update(func(snap *Snapshot) { snap.Phase = PhaseUsers })
	res, err := r.runStage(ctx, StageUsers, r.migrateUsers)
	if err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	r.summary.Users = res.Counts
	r.progress.update(func(snap *Snapshot) { snap.Users = res.Counts })

	r.progress.update(func(snap *Snapshot) { snap.Phase = PhaseTenants })
	for _, target := range r.opts.Targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		ts, err := r.migrateTenant(ctx, target)
		r.summary.Tenants = append(r.summary.Tenants, ts)
		r.recorder.ObserveTenant(string(ts.Status))
		r.progress.update(func(snap *Snapshot) { snap.Tenants = append(snap.Tenants, ts) })
		if err != nil {
			return fmt.Errorf("tenant %s: %w", target.Domain, err)
		}
	}
	return nil
}

// migrateTenant guards and migrates one target. Stage outputs are local to
// this call.
func (r *run) migrateTenant(ctx context.Context, target Target) (TenantSummary, error) {
	ctx = logging.WithFields(ctx, "tenant", target.Domain)
	log := logging.FromContext(ctx)
	start := time.Now()
	ts := TenantSummary{Domain: target.Domain}

	r.progress.update(func(snap *Snapshot) {
		snap.Tenant = target.Domain
		snap.Stage = ""
	})

	exists, err := r.store.TenantExists(ctx, target.Domain)
	if err != nil {
		ts.Status = TenantFailed
		return ts, err
	}
	if exists {
		log.Warn("tenant already migrated, skipping")
		ts.Status = TenantExists
		return ts, nil
	}

	src, err := r.legacy.TenantByShortName(ctx, target.ShortName)
	if errors.Is(err, legacy.ErrNotFound) {
		log.Warn("legacy tenant not found, skipping", "short_name", target.ShortName)
		ts.Status = TenantMissingLegacy
		return ts, nil
	}
	if err != nil {
		ts.Status = TenantFailed
		return ts, err
	}

	fail := func(err error) (TenantSummary, error) {
		ts.Status = TenantFailed
		ts.Duration = time.Since(start)
		return ts, err
	}
	record := func(res StageResult) { ts.Stages = append(ts.Stages, res) }

	var tenantID string
	res, err := r.runStage(ctx, StageTenant, func(ctx context.Context) (StageCounts, error) {
		id, err := r.store.CreateTenant(ctx, store.Tenant{ID: store.NewID(), Domain: target.Domain, Name: src.Name})
		if err != nil {
			return StageCounts{}, err
		}
		tenantID = id
		return StageCounts{Migrated: 1}, nil
	})
	if err != nil {
		return fail(err)
	}
	record(res)
	ts.TenantID = tenantID

	var roles RoleMap
	res, err = r.runStage(ctx, StageRoles, func(ctx context.Context) (c StageCounts, err error) {
		roles, c, err = r.migrateRoles(ctx, tenantID)
		return c, err
	})
	if err != nil {
		return fail(err)
	}
	record(res)

	res, err = r.runStage(ctx, StageAssignments, func(ctx context.Context) (StageCounts, error) {
		return r.migrateAssignments(ctx, src.ID, tenantID, roles)
	})
	if err != nil {
		return fail(err)
	}
	record(res)

	var categories IDMap
	res, err = r.runStage(ctx, StageCategories, func(ctx context.Context) (c StageCounts, err error) {
		categories, c, err = r.migrateCategories(ctx, src.ID, tenantID)
		return c, err
	})
	if err != nil {
		return fail(err)
	}
	record(res)

	var templates IDMap
	res, err = r.runStage(ctx, StageTemplates, func(ctx context.Context) (c StageCounts, err error) {
		templates, c, err = r.migrateTemplates(ctx, src.ID, tenantID, categories, roles)
		return c, err
	})
	if err != nil {
		return fail(err)
	}
	record(res)

	res, err = r.runStage(ctx, StageEvents, func(ctx context.Context) (StageCounts, error) {
		return r.migrateEvents(ctx, src.ID, tenantID, templates, roles)
	})
	if err != nil {
		return fail(err)
	}
	record(res)

	ts.Status = TenantMigrated
	ts.Duration = time.Since(start)
	log.Info("tenant migrated", "tenant_id", tenantID, "duration_ms", ts.Duration.Milliseconds())
	return ts, nil
}
