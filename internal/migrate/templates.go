package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/eventmigrate/internal/logging"
	"github.com/JonMunkholm/eventmigrate/internal/store"
)

// templateLocationType marks a free-text template location.
const templateLocationType = "text"

// migrateTemplates copies templates whose category was migrated, together
// with two registration option blueprints each.
func (r *run) migrateTemplates(ctx context.Context, legacyTenantID, tenantID string, categories IDMap, roles RoleMap) (IDMap, StageCounts, error) {
	log := logging.FromContext(ctx)
	var counts StageCounts

	ts, err := r.legacy.Templates(ctx, legacyTenantID)
	if err != nil {
		return nil, counts, fmt.Errorf("read templates: %w", err)
	}

	var (
		refs    []string
		rows    []store.Template
		options []store.TemplateOption
	)
	ids := make(pending, len(ts))
	for _, t := range ts {
		categoryID, ok := categories.Lookup(t.CategoryID)
		if !ok {
			log.Warn("skipping template with unmapped category",
				"legacy_template", t.ID, "category", t.CategoryName)
			counts.Skipped++
			continue
		}

		description, err := r.text.ToHTML(t.Description)
		if err != nil {
			return nil, counts, fmt.Errorf("template %s description: %w", t.ID, err)
		}
		tips, err := r.text.ToHTML(t.Comment)
		if err != nil {
			return nil, counts, fmt.Errorf("template %s comment: %w", t.ID, err)
		}

		row := store.Template{
			ID:           store.NewID(),
			TenantID:     tenantID,
			CategoryID:   categoryID,
			Title:        t.Title,
			Icon:         t.Icon,
			Description:  description,
			PlanningTips: tips,
			Location:     templateLocation(t.Location),
		}
		ids.add(row.ID, t.ID)
		rows = append(rows, row)
		refs = append(refs, t.Icon)
		options = append(options, templateOptions(row.ID, t.Hint, roles)...)
	}

	if err := r.icons.Ensure(ctx, tenantID, refs); err != nil {
		return nil, counts, fmt.Errorf("template icons: %w", err)
	}

	returned, err := r.store.InsertTemplates(ctx, rows)
	if err != nil {
		return nil, counts, err
	}
	m, err := ids.correlate(returned)
	if err != nil {
		return nil, counts, fmt.Errorf("insert templates: %w", err)
	}

	if err := r.insertTemplateOptions(ctx, options); err != nil {
		return nil, counts, err
	}

	counts.Migrated = len(m)
	return m, counts, nil
}

func (r *run) insertTemplateOptions(ctx context.Context, options []store.TemplateOption) error {
	ids := make(pending, len(options))
	for _, o := range options {
		ids.add(o.ID, o.ID)
	}
	returned, err := r.store.InsertTemplateOptions(ctx, options)
	if err != nil {
		return err
	}
	if _, err := ids.correlate(returned); err != nil {
		return fmt.Errorf("insert template options: %w", err)
	}
	return nil
}

func templateLocation(s string) *store.Location {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &store.Location{Type: templateLocationType, Name: s}
}
