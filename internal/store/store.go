package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned by point lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// DB is a DBTX that can open transactions.
type DB interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is write access to the current schema. Every Insert* call is one
// batch in one transaction and returns the ids the database reports for the
// inserted rows; callers correlate them by the ids they generated.
type Store interface {
	Reset(ctx context.Context) error
	Count(ctx context.Context, table Table) (int64, error)

	TenantExists(ctx context.Context, domain string) (bool, error)
	CreateTenant(ctx context.Context, t Tenant) (string, error)

	InsertUsers(ctx context.Context, users []User) ([]string, error)
	UserIDByAuthID(ctx context.Context, authID string) (string, error)
	// UserIDsByAuthIDs returns auth id -> user id for the keys that exist.
	UserIDsByAuthIDs(ctx context.Context, authIDs []string) (map[string]string, error)

	InsertRoles(ctx context.Context, roles []Role) ([]string, error)
	InsertUserTenants(ctx context.Context, uts []UserTenant) ([]string, error)
	InsertCategories(ctx context.Context, cs []Category) ([]string, error)
	InsertTemplates(ctx context.Context, ts []Template) ([]string, error)
	InsertTemplateOptions(ctx context.Context, opts []TemplateOption) ([]string, error)
	InsertEvents(ctx context.Context, es []Event) ([]string, error)
	InsertEventOptions(ctx context.Context, opts []EventOption) ([]string, error)

	// InsertIcons skips rows whose (tenant, common name) already exists and
	// returns the number of rows actually written.
	InsertIcons(ctx context.Context, icons []Icon) (int64, error)
}

// Table names a current-side table the pipeline writes.
type Table string

const (
	TableTenants         Table = "tenants"
	TableUsers           Table = "users"
	TableRoles           Table = "roles"
	TableUserTenants     Table = "users_to_tenants"
	TableRoleAssignments Table = "roles_to_tenant_users"
	TableCategories      Table = "event_template_categories"
	TableTemplates       Table = "event_templates"
	TableTemplateOptions Table = "template_registration_options"
	TableEvents          Table = "event_instances"
	TableEventOptions    Table = "event_registration_options"
	TableIcons           Table = "icons"
)

// Tables lists every table Reset empties, dependents first.
var Tables = []Table{
	TableEventOptions,
	TableEvents,
	TableTemplateOptions,
	TableTemplates,
	TableCategories,
	TableIcons,
	TableRoleAssignments,
	TableUserTenants,
	TableRoles,
	TableTenants,
	TableUsers,
}

func knownTable(t Table) bool {
	for _, k := range Tables {
		if k == t {
			return true
		}
	}
	return false
}

// PgStore implements Store over pgx.
type PgStore struct {
	db DB
}

// NewPgStore wraps db, typically a *pgxpool.Pool.
func NewPgStore(db DB) *PgStore {
	return &PgStore{db: db}
}

// Reset truncates every known table. This is destructive and only meant for
// a non-production target.
func (s *PgStore) Reset(ctx context.Context) error {
	names := make([]string, len(Tables))
	for i, t := range Tables {
		names[i] = string(t)
	}
	sql := "TRUNCATE TABLE " + strings.Join(names, ", ") + " CASCADE"
	if _, err := s.db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("reset target: %w", err)
	}
	return nil
}

func (s *PgStore) Count(ctx context.Context, table Table) (int64, error) {
	if !knownTable(table) {
		return 0, fmt.Errorf("count: unknown table %q", table)
	}
	var n int64
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM "+string(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *PgStore) TenantExists(ctx context.Context, domain string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE domain = $1)`, domain).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("tenant exists %q: %w", domain, err)
	}
	return exists, nil
}

func (s *PgStore) CreateTenant(ctx context.Context, t Tenant) (string, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`INSERT INTO tenants (id, domain, name) VALUES ($1, $2, $3) RETURNING id`,
		t.ID, t.Domain, t.Name,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create tenant %q: %w", t.Domain, err)
	}
	return id, nil
}

func (s *PgStore) UserIDByAuthID(ctx context.Context, authID string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE auth_id = $1`, authID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("user by auth id: %w", err)
	}
	return id, nil
}

func (s *PgStore) UserIDsByAuthIDs(ctx context.Context, authIDs []string) (map[string]string, error) {
	found := make(map[string]string)
	if len(authIDs) == 0 {
		return found, nil
	}
	rows, err := s.db.Query(ctx, `SELECT auth_id, id FROM users WHERE auth_id = ANY($1)`, authIDs)
	if err != nil {
		return nil, fmt.Errorf("users by auth id: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var authID, id string
		if err := rows.Scan(&authID, &id); err != nil {
			return nil, fmt.Errorf("users by auth id: %w", err)
		}
		found[authID] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users by auth id: %w", err)
	}
	return found, nil
}

// queueFunc queues the statement for one row and returns it so the caller
// can attach a RETURNING handler.
type queueFunc[T any] func(b *pgx.Batch, row T) (*pgx.QueuedQuery, error)

// insertReturning sends one batch inside one transaction. Every queued
// statement must return a single id column.
func insertReturning[T any](ctx context.Context, s *PgStore, what string, rows []T, queue queueFunc[T]) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, r := range rows {
			q, err := queue(b, r)
			if err != nil {
				return err
			}
			q.QueryRow(func(row pgx.Row) error {
				var id string
				if err := row.Scan(&id); err != nil {
					return err
				}
				ids = append(ids, id)
				return nil
			})
		}
		return tx.SendBatch(ctx, b).Close()
	})
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", what, err)
	}
	return ids, nil
}

func (s *PgStore) InsertUsers(ctx context.Context, users []User) ([]string, error) {
	return insertReturning(ctx, s, "users", users, func(b *pgx.Batch, u User) (*pgx.QueuedQuery, error) {
		return b.Queue(`INSERT INTO users (id, auth_id, email, first_name, last_name, created_at)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			u.ID, u.AuthID, u.Email, u.FirstName, u.LastName, u.CreatedAt), nil
	})
}

func (s *PgStore) InsertRoles(ctx context.Context, roles []Role) ([]string, error) {
	return insertReturning(ctx, s, "roles", roles, func(b *pgx.Batch, r Role) (*pgx.QueuedQuery, error) {
		return b.Queue(`INSERT INTO roles (id, tenant_id, name, description, permissions, default_user_role, default_organizer_role)
			VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			r.ID, r.TenantID, r.Name, r.Description, r.Permissions, r.DefaultUserRole, r.DefaultOrganizerRole), nil
	})
}

// InsertUserTenants writes the assignments and their role attachments in the
// same transaction.
func (s *PgStore) InsertUserTenants(ctx context.Context, uts []UserTenant) ([]string, error) {
	return insertReturning(ctx, s, "user tenants", uts, func(b *pgx.Batch, ut UserTenant) (*pgx.QueuedQuery, error) {
		q := b.Queue(`INSERT INTO users_to_tenants (id, user_id, tenant_id) VALUES ($1, $2, $3) RETURNING id`,
			ut.ID, ut.UserID, ut.TenantID)
		for _, roleID := range ut.RoleIDs {
			b.Queue(`INSERT INTO roles_to_tenant_users (role_id, user_tenant_id) VALUES ($1, $2)`, roleID, ut.ID)
		}
		return q, nil
	})
}

func (s *PgStore) InsertCategories(ctx context.Context, cs []Category) ([]string, error) {
	return insertReturning(ctx, s, "categories", cs, func(b *pgx.Batch, c Category) (*pgx.QueuedQuery, error) {
		return b.Queue(`INSERT INTO event_template_categories (id, tenant_id, title, icon)
			VALUES ($1, $2, $3, $4) RETURNING id`,
			c.ID, c.TenantID, c.Title, c.Icon), nil
	})
}

func (s *PgStore) InsertTemplates(ctx context.Context, ts []Template) ([]string, error) {
	return insertReturning(ctx, s, "templates", ts, func(b *pgx.Batch, t Template) (*pgx.QueuedQuery, error) {
		loc, err := locationJSON(t.Location)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", t.ID, err)
		}
		return b.Queue(`INSERT INTO event_templates (id, tenant_id, category_id, title, icon, description, planning_tips, location)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			t.ID, t.TenantID, t.CategoryID, t.Title, t.Icon, t.Description, t.PlanningTips, loc), nil
	})
}

func (s *PgStore) InsertTemplateOptions(ctx context.Context, opts []TemplateOption) ([]string, error) {
	return insertReturning(ctx, s, "template options", opts, func(b *pgx.Batch, o TemplateOption) (*pgx.QueuedQuery, error) {
		return b.Queue(`INSERT INTO template_registration_options
			(id, template_id, title, description, is_paid, price, spots,
			 open_registration_offset, close_registration_offset, role_ids,
			 organizing_registration, registration_mode)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
			o.ID, o.TemplateID, o.Title, o.Description, o.IsPaid, o.Price, o.Spots,
			o.OpenRegistrationOffset, o.CloseRegistrationOffset, nonNil(o.RoleIDs),
			o.OrganizingRegistration, o.RegistrationMode), nil
	})
}

func (s *PgStore) InsertEvents(ctx context.Context, es []Event) ([]string, error) {
	return insertReturning(ctx, s, "events", es, func(b *pgx.Batch, e Event) (*pgx.QueuedQuery, error) {
		loc, err := locationJSON(e.Location)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		return b.Queue(`INSERT INTO event_instances
			(id, tenant_id, template_id, creator_id, title, icon, description, start, "end", status, visibility, location)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
			e.ID, e.TenantID, e.TemplateID, e.CreatorID, e.Title, e.Icon, e.Description,
			e.Start, e.End, string(e.Status), string(e.Visibility), loc), nil
	})
}

func (s *PgStore) InsertEventOptions(ctx context.Context, opts []EventOption) ([]string, error) {
	return insertReturning(ctx, s, "event options", opts, func(b *pgx.Batch, o EventOption) (*pgx.QueuedQuery, error) {
		return b.Queue(`INSERT INTO event_registration_options
			(id, event_id, title, description, is_paid, price, spots,
			 open_registration_time, close_registration_time, role_ids,
			 organizing_registration, registration_mode,
			 confirmed_spots, reserved_spots, checked_in_spots)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`,
			o.ID, o.EventID, o.Title, o.Description, o.IsPaid, o.Price, o.Spots,
			o.OpenRegistrationTime, o.CloseRegistrationTime, nonNil(o.RoleIDs),
			o.OrganizingRegistration, o.RegistrationMode,
			o.ConfirmedSpots, o.ReservedSpots, o.CheckedInSpots), nil
	})
}

func (s *PgStore) InsertIcons(ctx context.Context, icons []Icon) (int64, error) {
	if len(icons) == 0 {
		return 0, nil
	}

	var inserted int64
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, ic := range icons {
			b.Queue(`INSERT INTO icons (id, tenant_id, common_name, friendly_name, source_color)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (tenant_id, common_name) DO NOTHING`,
				ic.ID, ic.TenantID, ic.CommonName, ic.FriendlyName, ic.SourceColor,
			).Exec(func(ct pgconn.CommandTag) error {
				inserted += ct.RowsAffected()
				return nil
			})
		}
		return tx.SendBatch(ctx, b).Close()
	})
	if err != nil {
		return 0, fmt.Errorf("insert icons: %w", err)
	}
	return inserted, nil
}

func locationJSON(l *Location) ([]byte, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("encode location: %w", err)
	}
	return b, nil
}

// nonNil keeps empty role lists as '{}' instead of NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
