package migrate

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/eventmigrate/internal/legacy"
	"github.com/JonMunkholm/eventmigrate/internal/store"
)

// roleSpec is one of the fixed roles every migrated tenant gets.
type roleSpec struct {
	key                  RoleKey
	name                 string
	description          string
	permissions          []string
	defaultUserRole      bool
	defaultOrganizerRole bool
}

var (
	memberPermissions = []string{
		"events:create",
		"events:viewPublic",
		"events:viewDrafts",
		"templates:view",
		"templates:create",
		"templates:editAll",
	}
	adminPermissions = []string{
		"admin:manageRoles",
		"admin:manageTenant",
		"admin:changeSettings",
		"events:create",
		"events:editAll",
		"events:review",
		"events:viewPublic",
		"events:viewDrafts",
		"templates:view",
		"templates:create",
		"templates:editAll",
		"templateCategories:manage",
	}
)

var tenantRoles = []roleSpec{
	{
		key:         RoleKeyAdmin,
		name:        "Admin",
		description: "Full access to the section",
		permissions: adminPermissions,
	},
	{
		key:                  RoleKey(legacy.StatusFull),
		name:                 "Section member",
		description:          "Full member of the section",
		permissions:          memberPermissions,
		defaultOrganizerRole: true,
	},
	{
		key:         RoleKey(legacy.StatusTrial),
		name:        "Trial member",
		description: "Member on trial",
		permissions: []string{"events:viewPublic", "templates:view"},
	},
	{
		key:         RoleKey(legacy.StatusAlumni),
		name:        "Alumni",
		description: "Former member of the section",
		permissions: []string{"events:viewPublic", "templates:view"},
	},
	{
		key:             RoleKey(legacy.StatusNone),
		name:            "Regular user",
		description:     "Default role for all users",
		permissions:     []string{"events:viewPublic"},
		defaultUserRole: true,
	},
}

// migrateRoles creates the fixed roles for tenantID.
func (r *run) migrateRoles(ctx context.Context, tenantID string) (RoleMap, StageCounts, error) {
	rows := make([]store.Role, 0, len(tenantRoles))
	ids := make(pending, len(tenantRoles))
	for _, spec := range tenantRoles {
		row := store.Role{
			ID:                   store.NewID(),
			TenantID:             tenantID,
			Name:                 spec.name,
			Description:          spec.description,
			Permissions:          spec.permissions,
			DefaultUserRole:      spec.defaultUserRole,
			DefaultOrganizerRole: spec.defaultOrganizerRole,
		}
		ids.add(row.ID, string(spec.key))
		rows = append(rows, row)
	}

	returned, err := r.store.InsertRoles(ctx, rows)
	if err != nil {
		return nil, StageCounts{}, fmt.Errorf("insert roles: %w", err)
	}
	byKey, err := ids.correlate(returned)
	if err != nil {
		return nil, StageCounts{}, fmt.Errorf("insert roles: %w", err)
	}

	roles := make(RoleMap, len(byKey))
	for k, id := range byKey {
		roles[RoleKey(k)] = id
	}
	return roles, StageCounts{Migrated: len(rows)}, nil
}
