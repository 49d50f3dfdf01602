package migrate

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/eventmigrate/internal/legacy"
	"github.com/JonMunkholm/eventmigrate/internal/logging"
	"github.com/JonMunkholm/eventmigrate/internal/store"
)

// migrateAssignments links resolved users to the tenant with the roles
// their legacy membership implies.
func (r *run) migrateAssignments(ctx context.Context, legacyTenantID, tenantID string, roles RoleMap) (StageCounts, error) {
	log := logging.FromContext(ctx)
	var counts StageCounts
	assigned := make(map[string]bool)

	after := ""
	for {
		page, err := r.legacy.MembershipsAfter(ctx, legacyTenantID, after, r.opts.BatchSize)
		if err != nil {
			return counts, fmt.Errorf("memberships page after %q: %w", after, err)
		}
		if len(page) == 0 {
			break
		}

		rows := make([]store.UserTenant, 0, len(page))
		ids := make(pending, len(page))
		for _, m := range page {
			userID, ok := r.users.Resolve(ctx, m.UserID)
			if !ok {
				log.Warn("skipping membership of unresolved user", "legacy_user", m.UserID)
				counts.Skipped++
				continue
			}
			if assigned[userID] {
				log.Warn("skipping duplicate membership", "legacy_user", m.UserID, "user", userID)
				counts.Skipped++
				continue
			}
			assigned[userID] = true

			row := store.UserTenant{
				ID:       store.NewID(),
				UserID:   userID,
				TenantID: tenantID,
				RoleIDs:  membershipRoles(m, roles),
			}
			if len(row.RoleIDs) == 0 {
				log.Warn("membership maps to no role", "legacy_user", m.UserID, "status", m.Status)
			}
			ids.add(row.ID, m.UserID)
			rows = append(rows, row)
		}

		returned, err := r.store.InsertUserTenants(ctx, rows)
		if err != nil {
			return counts, fmt.Errorf("memberships page after %q: %w", after, err)
		}
		if _, err := ids.correlate(returned); err != nil {
			return counts, fmt.Errorf("memberships page after %q: %w", after, err)
		}
		counts.Migrated += len(rows)

		after = page[len(page)-1].UserID
		if len(page) < r.opts.BatchSize {
			break
		}
	}
	return counts, nil
}

// membershipRoles returns the role for the membership status, plus the
// admin and full member roles for admins, without duplicates.
func membershipRoles(m legacy.Membership, roles RoleMap) []string {
	out := make([]string, 0, 3)
	if id, ok := roles.ForStatus(m.Status); ok {
		out = appendUnique(out, id)
	}
	if m.Role == legacy.RoleAdmin {
		if id, ok := roles[RoleKeyAdmin]; ok {
			out = appendUnique(out, id)
		}
		if id, ok := roles.ForStatus(legacy.StatusFull); ok {
			out = appendUnique(out, id)
		}
	}
	return out
}
