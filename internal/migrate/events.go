package migrate

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/eventmigrate/internal/legacy"
	"github.com/JonMunkholm/eventmigrate/internal/logging"
	"github.com/JonMunkholm/eventmigrate/internal/store"
)

// googleLocationType marks a location that references a Google place.
const googleLocationType = "google"

// migrateEvents copies the tenant's events page by page. Each page is read
// with its registrations, folded per event, and written as one events batch
// followed by one options batch.
func (r *run) migrateEvents(ctx context.Context, legacyTenantID, tenantID string, templates IDMap, roles RoleMap) (StageCounts, error) {
	var counts StageCounts

	after := ""
	for {
		rows, err := r.legacy.EventPage(ctx, legacyTenantID, after, r.opts.BatchSize)
		if err != nil {
			return counts, fmt.Errorf("events page after %q: %w", after, err)
		}
		groups, err := foldEventRows(rows)
		if err != nil {
			return counts, fmt.Errorf("events page after %q: %w", after, err)
		}
		if len(groups) == 0 {
			break
		}

		page, err := r.migrateEventPage(ctx, tenantID, groups, templates, roles)
		if err != nil {
			return counts, fmt.Errorf("events page after %q: %w", after, err)
		}
		counts.add(page)

		after = groups[len(groups)-1].Event.ID
		if len(groups) < r.opts.BatchSize {
			break
		}
	}
	return counts, nil
}

func (r *run) migrateEventPage(ctx context.Context, tenantID string, groups []eventGroup, templates IDMap, roles RoleMap) (StageCounts, error) {
	log := logging.FromContext(ctx)
	var counts StageCounts

	var (
		refs    []string
		rows    []store.Event
		options []store.EventOption
	)
	ids := make(pending, len(groups))
	for _, g := range groups {
		e := g.Event

		creatorID, ok := r.users.Resolve(ctx, e.CreatorID)
		if !ok {
			log.Warn("skipping event with unresolved creator", "legacy_event", e.ID, "creator", e.CreatorID)
			counts.Skipped++
			continue
		}
		status, visibility, ok := PublicationStatus(e.PublicationState)
		if !ok {
			log.Warn("skipping event with unknown publication state", "legacy_event", e.ID, "state", e.PublicationState)
			counts.Skipped++
			continue
		}
		templateID, ok := templates.Lookup(e.TemplateID)
		if !ok {
			counts.Skipped++
			continue
		}

		description, err := r.text.ToHTML(e.Description)
		if err != nil {
			return counts, fmt.Errorf("event %s description: %w", e.ID, err)
		}

		row := store.Event{
			ID:          store.NewID(),
			TenantID:    tenantID,
			TemplateID:  templateID,
			CreatorID:   creatorID,
			Title:       e.Title,
			Icon:        e.Icon,
			Description: description,
			Start:       e.Start,
			End:         e.End,
			Status:      status,
			Visibility:  visibility,
			Location:    eventLocation(e),
		}
		ids.add(row.ID, e.ID)
		rows = append(rows, row)
		refs = append(refs, e.Icon)
		options = append(options, eventOptions(row.ID, e, g.Registrations, roles)...)
	}

	if len(rows) == 0 {
		return counts, nil
	}

	if err := r.icons.Ensure(ctx, tenantID, refs); err != nil {
		return counts, fmt.Errorf("event icons: %w", err)
	}

	returned, err := r.store.InsertEvents(ctx, rows)
	if err != nil {
		return counts, err
	}
	if _, err := ids.correlate(returned); err != nil {
		return counts, fmt.Errorf("insert events: %w", err)
	}

	optionIDs := make(pending, len(options))
	for _, o := range options {
		optionIDs.add(o.ID, o.ID)
	}
	returned, err = r.store.InsertEventOptions(ctx, options)
	if err != nil {
		return counts, err
	}
	if _, err := optionIDs.correlate(returned); err != nil {
		return counts, fmt.Errorf("insert event options: %w", err)
	}

	counts.Migrated += len(rows)
	log.Debug("events page inserted", "events", len(rows), "options", len(options))
	return counts, nil
}

// eventLocation returns a Google place location when the legacy event has
// coordinates, nil otherwise.
func eventLocation(e legacy.Event) *store.Location {
	if e.Coordinates == nil {
		return nil
	}
	return &store.Location{
		Type:    googleLocationType,
		Name:    e.Location,
		PlaceID: e.GooglePlaceID,
		Coordinates: &store.Coordinates{
			Lat: e.Coordinates.Lat,
			Lng: e.Coordinates.Lng,
		},
	}
}
