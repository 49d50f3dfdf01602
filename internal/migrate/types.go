package migrate

import (
	"time"

	"github.com/JonMunkholm/eventmigrate/internal/legacy"
)

// IDMap maps a legacy id to the current id created for it. Rows that were
// skipped are absent.
type IDMap map[string]string

// Lookup returns the current id for legacyID.
func (m IDMap) Lookup(legacyID string) (string, bool) {
	id, ok := m[legacyID]
	return id, ok
}

// RoleKey names an entry of a RoleMap: one of the legacy membership
// statuses, or RoleKeyAdmin for the admin flag.
type RoleKey string

const RoleKeyAdmin RoleKey = "ADMIN"

// RoleMap maps legacy statuses and the admin flag to current role ids of one
// tenant.
type RoleMap map[RoleKey]string

// ForStatus returns the role id for a legacy membership status.
func (m RoleMap) ForStatus(s legacy.MembershipStatus) (string, bool) {
	id, ok := m[RoleKey(s)]
	return id, ok
}

// IDs maps statuses to role ids. Unmapped statuses are dropped and
// duplicates removed, keeping first-seen order.
func (m RoleMap) IDs(statuses []legacy.MembershipStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		if id, ok := m.ForStatus(s); ok {
			out = appendUnique(out, id)
		}
	}
	return out
}

func appendUnique(ids []string, id string) []string {
	for _, have := range ids {
		if have == id {
			return ids
		}
	}
	return append(ids, id)
}

// Target pairs a legacy tenant short name with the domain it gets in the
// current system.
type Target struct {
	ShortName string
	Domain    string
}

// DefaultTargets is the tenant list a run migrates.
var DefaultTargets = []Target{
	{ShortName: "tumi", Domain: "tumi.esn.world"},
}

// Stage names one step of a tenant migration.
type Stage string

const (
	StageUsers       Stage = "users"
	StageTenant      Stage = "tenant"
	StageRoles       Stage = "roles"
	StageAssignments Stage = "assignments"
	StageCategories  Stage = "categories"
	StageTemplates   Stage = "templates"
	StageEvents      Stage = "events"
)

// StageCounts counts legacy rows a stage wrote or skipped.
type StageCounts struct {
	Migrated int `json:"migrated"`
	Skipped  int `json:"skipped"`
}

func (c *StageCounts) add(o StageCounts) {
	c.Migrated += o.Migrated
	c.Skipped += o.Skipped
}

// TenantStatus is the outcome of one target.
type TenantStatus string

const (
	TenantMigrated      TenantStatus = "migrated"
	TenantExists        TenantStatus = "skipped_exists"
	TenantMissingLegacy TenantStatus = "skipped_missing_legacy"
	TenantFailed        TenantStatus = "failed"
)

// StageResult is one finished stage of a tenant.
type StageResult struct {
	Stage    Stage         `json:"stage"`
	Counts   StageCounts   `json:"counts"`
	Duration time.Duration `json:"duration"`
}

// TenantSummary describes what happened to one target.
type TenantSummary struct {
	Domain   string        `json:"domain"`
	TenantID string        `json:"tenantId,omitempty"`
	Status   TenantStatus  `json:"status"`
	Stages   []StageResult `json:"stages"`
	Duration time.Duration `json:"duration"`
}

// Counts returns the counts recorded for stage.
func (t TenantSummary) Counts(stage Stage) StageCounts {
	for _, s := range t.Stages {
		if s.Stage == stage {
			return s.Counts
		}
	}
	return StageCounts{}
}

// Summary is the result of Run.
type Summary struct {
	RunID     string          `json:"runId"`
	StartedAt time.Time       `json:"startedAt"`
	Duration  time.Duration   `json:"duration"`
	Reset     bool            `json:"reset"`
	Users     StageCounts     `json:"users"`
	Tenants   []TenantSummary `json:"tenants"`
	Resolver  ResolverStats   `json:"resolver"`
}
