package migrate

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/eventmigrate/internal/logging"
	"github.com/JonMunkholm/eventmigrate/internal/store"
)

// migrateUsers copies every legacy user, one page per batch. Users whose
// transformed identity key was already taken in this run, or already exists
// in the target from an earlier run, are skipped.
func (r *run) migrateUsers(ctx context.Context) (StageCounts, error) {
	log := logging.FromContext(ctx)
	var counts StageCounts
	seen := make(map[string]string)

	after := ""
	for {
		page, err := r.legacy.UsersAfter(ctx, after, r.opts.BatchSize)
		if err != nil {
			return counts, fmt.Errorf("users page after %q: %w", after, err)
		}
		if len(page) == 0 {
			break
		}

		keys := make([]string, len(page))
		for i, u := range page {
			keys[i] = r.opts.AuthIDs.Transform(u.AuthID)
		}
		existing, err := r.store.UserIDsByAuthIDs(ctx, keys)
		if err != nil {
			return counts, fmt.Errorf("users page after %q: %w", after, err)
		}

		rows := make([]store.User, 0, len(page))
		ids := make(pending, len(page))
		for i, u := range page {
			authID := keys[i]
			if current, ok := existing[authID]; ok {
				log.Debug("user already migrated", "legacy_user", u.ID, "user", current)
				counts.Skipped++
				continue
			}
			if other, dup := seen[authID]; dup {
				log.Warn("skipping user with duplicate identity key", "legacy_user", u.ID, "kept", other)
				counts.Skipped++
				continue
			}
			seen[authID] = u.ID

			row := store.User{
				ID:        store.NewID(),
				AuthID:    authID,
				Email:     u.Email,
				FirstName: u.FirstName,
				LastName:  u.LastName,
				CreatedAt: u.CreatedAt,
			}
			ids.add(row.ID, u.ID)
			rows = append(rows, row)
		}

		returned, err := r.store.InsertUsers(ctx, rows)
		if err != nil {
			return counts, fmt.Errorf("users page after %q: %w", after, err)
		}
		if _, err := ids.correlate(returned); err != nil {
			return counts, fmt.Errorf("users page after %q: %w", after, err)
		}
		counts.Migrated += len(rows)
		log.Debug("users page inserted", "rows", len(rows))

		after = page[len(page)-1].ID
		if len(page) < r.opts.BatchSize {
			break
		}
	}
	return counts, nil
}
