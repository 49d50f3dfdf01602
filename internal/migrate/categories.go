package migrate

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/eventmigrate/internal/store"
)

// migrateCategories copies the tenant's template categories in one batch.
// Legacy tenants have few categories, so there is no paging.
func (r *run) migrateCategories(ctx context.Context, legacyTenantID, tenantID string) (IDMap, StageCounts, error) {
	cs, err := r.legacy.Categories(ctx, legacyTenantID)
	if err != nil {
		return nil, StageCounts{}, fmt.Errorf("read categories: %w", err)
	}

	refs := make([]string, 0, len(cs))
	rows := make([]store.Category, 0, len(cs))
	ids := make(pending, len(cs))
	for _, c := range cs {
		row := store.Category{
			ID:       store.NewID(),
			TenantID: tenantID,
			Title:    c.Name,
			Icon:     c.Icon,
		}
		ids.add(row.ID, c.ID)
		rows = append(rows, row)
		refs = append(refs, c.Icon)
	}

	if err := r.icons.Ensure(ctx, tenantID, refs); err != nil {
		return nil, StageCounts{}, fmt.Errorf("category icons: %w", err)
	}

	returned, err := r.store.InsertCategories(ctx, rows)
	if err != nil {
		return nil, StageCounts{}, err
	}
	m, err := ids.correlate(returned)
	if err != nil {
		return nil, StageCounts{}, fmt.Errorf("insert categories: %w", err)
	}
	return m, StageCounts{Migrated: len(m)}, nil
}
