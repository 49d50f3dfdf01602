// Package metrics provides Prometheus metrics for migration runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MigrationMetrics contains the Prometheus metrics of the migration
// pipeline. It implements migrate.Recorder.
type MigrationMetrics struct {
	RowsMigrated  *prometheus.CounterVec
	RowsSkipped   *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Tenants       *prometheus.CounterVec
	IconsInserted prometheus.Counter
	IconMisses    prometheus.Counter
	ResolverHits  prometheus.Counter
}

// NewMigrationMetrics creates the metrics and registers them with registry.
func NewMigrationMetrics(registry *prometheus.Registry) (*MigrationMetrics, error) {
	m := &MigrationMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register migration metrics: %w", err)
	}
	return m, nil
}

func (m *MigrationMetrics) initMetrics() {
	m.RowsMigrated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "migrate_rows_migrated_total",
		Help: "Total number of legacy rows written to the target, by stage",
	}, []string{"stage"})

	m.RowsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "migrate_rows_skipped_total",
		Help: "Total number of legacy rows skipped, by stage",
	}, []string{"stage"})

	m.StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "migrate_stage_duration_seconds",
		Help:    "Time taken by one stage of one tenant",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
	}, []string{"stage"})

	m.Tenants = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "migrate_tenants_total",
		Help: "Total number of targets processed, by outcome",
	}, []string{"status"})

	m.IconsInserted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "migrate_icons_inserted_total",
		Help: "Total number of icon rows created",
	})

	m.IconMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "migrate_icon_color_misses_total",
		Help: "Total number of icons stored without a color",
	})

	m.ResolverHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "migrate_user_resolver_hits_total",
		Help: "Total number of user resolutions served from the run cache",
	})
}

// ObserveStage records the outcome of one stage.
func (m *MigrationMetrics) ObserveStage(stage string, migrated, skipped int, elapsed time.Duration) {
	m.RowsMigrated.WithLabelValues(stage).Add(float64(migrated))
	m.RowsSkipped.WithLabelValues(stage).Add(float64(skipped))
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveTenant records the outcome of one target.
func (m *MigrationMetrics) ObserveTenant(status string) {
	m.Tenants.WithLabelValues(status).Inc()
}

// AddIcons records icon totals at the end of a run.
func (m *MigrationMetrics) AddIcons(inserted int64, misses int) {
	m.IconsInserted.Add(float64(inserted))
	m.IconMisses.Add(float64(misses))
}

// AddResolverHits records resolver cache hits at the end of a run.
func (m *MigrationMetrics) AddResolverHits(hits int64) {
	m.ResolverHits.Add(float64(hits))
}

// Collect implements the prometheus.Collector interface.
func (m *MigrationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RowsMigrated.Collect(ch)
	m.RowsSkipped.Collect(ch)
	m.StageDuration.Collect(ch)
	m.Tenants.Collect(ch)
	ch <- m.IconsInserted
	ch <- m.IconMisses
	ch <- m.ResolverHits
}

// Describe implements the prometheus.Collector interface.
func (m *MigrationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RowsMigrated.Describe(ch)
	m.RowsSkipped.Describe(ch)
	m.StageDuration.Describe(ch)
	m.Tenants.Describe(ch)
	ch <- m.IconsInserted.Desc()
	ch <- m.IconMisses.Desc()
	ch <- m.ResolverHits.Desc()
}
