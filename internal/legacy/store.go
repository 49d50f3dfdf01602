package legacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrNotFound is returned by point lookups that match no row.
var ErrNotFound = errors.New("legacy: not found")

// DBTX is the read-only subset of pgx used here.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store is read-only access to the legacy database. Every paged method uses
// the legacy primary key as a keyset cursor: pass "" for the first page and
// the last returned key afterwards.
type Store interface {
	TenantByShortName(ctx context.Context, shortName string) (Tenant, error)
	UsersAfter(ctx context.Context, afterID string, limit int) ([]User, error)
	UserAuthID(ctx context.Context, userID string) (string, error)
	MembershipsAfter(ctx context.Context, tenantID, afterUserID string, limit int) ([]Membership, error)
	Categories(ctx context.Context, tenantID string) ([]Category, error)
	Templates(ctx context.Context, tenantID string) ([]Template, error)
	EventPage(ctx context.Context, tenantID, afterID string, limit int) ([]EventRow, error)
}

// PgStore implements Store over a pgx connection.
type PgStore struct {
	db DBTX
}

// NewPgStore wraps db.
func NewPgStore(db DBTX) *PgStore {
	return &PgStore{db: db}
}

const tenantByShortName = `
SELECT id, name, "shortName"
FROM "Tenant"
WHERE "shortName" = $1`

func (s *PgStore) TenantByShortName(ctx context.Context, shortName string) (Tenant, error) {
	var t Tenant
	err := s.db.QueryRow(ctx, tenantByShortName, shortName).Scan(&t.ID, &t.Name, &t.ShortName)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, ErrNotFound
	}
	if err != nil {
		return Tenant{}, fmt.Errorf("tenant %q: %w", shortName, err)
	}
	return t, nil
}

const usersAfter = `
SELECT id, "authId", email, "firstName", "lastName", "createdAt"
FROM "User"
WHERE id > $1
ORDER BY id
LIMIT $2`

func (s *PgStore) UsersAfter(ctx context.Context, afterID string, limit int) ([]User, error) {
	rows, err := s.db.Query(ctx, usersAfter, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (User, error) {
		var u User
		err := row.Scan(&u.ID, &u.AuthID, &u.Email, &u.FirstName, &u.LastName, &u.CreatedAt)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return users, nil
}

const userAuthID = `SELECT "authId" FROM "User" WHERE id = $1`

func (s *PgStore) UserAuthID(ctx context.Context, userID string) (string, error) {
	var authID string
	err := s.db.QueryRow(ctx, userAuthID, userID).Scan(&authID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("user %s auth id: %w", userID, err)
	}
	return authID, nil
}

const membershipsAfter = `
SELECT "userId", "tenantId", role::text, status::text
FROM "UsersOfTenants"
WHERE "tenantId" = $1 AND "userId" > $2
ORDER BY "userId"
LIMIT $3`

func (s *PgStore) MembershipsAfter(ctx context.Context, tenantID, afterUserID string, limit int) ([]Membership, error) {
	rows, err := s.db.Query(ctx, membershipsAfter, tenantID, afterUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	ms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Membership, error) {
		var m Membership
		err := row.Scan(&m.UserID, &m.TenantID, &m.Role, &m.Status)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan memberships: %w", err)
	}
	return ms, nil
}

const categories = `
SELECT id, name, icon
FROM "EventTemplateCategory"
WHERE "tenantId" = $1
ORDER BY "createdAt", id`

func (s *PgStore) Categories(ctx context.Context, tenantID string) ([]Category, error) {
	rows, err := s.db.Query(ctx, categories, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	cs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Category, error) {
		var c Category
		err := row.Scan(&c.ID, &c.Name, &c.Icon)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan categories: %w", err)
	}
	return cs, nil
}

// The lateral join picks the most recent event created from each template.
const templates = `
SELECT t.id, t.title, t.icon, COALESCE(t.description, ''), COALESCE(t.comment, ''),
       COALESCE(t.location, ''), COALESCE(t."categoryId", ''), COALESCE(c.name, ''),
       h.start, h."registrationStart", h."participantLimit", h."organizerLimit",
       h."participantSignup"::text[], h."organizerSignup"::text[],
       h."registrationMode"::text, h.prices
FROM "EventTemplate" t
LEFT JOIN "EventTemplateCategory" c ON c.id = t."categoryId"
LEFT JOIN LATERAL (
    SELECT e.start, e."registrationStart", e."participantLimit", e."organizerLimit",
           e."participantSignup", e."organizerSignup", e."registrationMode", e.prices
    FROM "TumiEvent" e
    WHERE e."eventTemplateId" = t.id
    ORDER BY e.start DESC, e.id
    LIMIT 1
) h ON true
WHERE t."tenantId" = $1
ORDER BY t."createdAt", t.id`

func (s *PgStore) Templates(ctx context.Context, tenantID string) ([]Template, error) {
	rows, err := s.db.Query(ctx, templates, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	ts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Template, error) {
		var (
			t                   Template
			start, regStart     pgtype.Timestamptz
			partLimit, orgLimit pgtype.Int4
			partSignup          []string
			orgSignup           []string
			mode                pgtype.Text
			prices              []byte
		)
		err := row.Scan(&t.ID, &t.Title, &t.Icon, &t.Description, &t.Comment,
			&t.Location, &t.CategoryID, &t.CategoryName,
			&start, &regStart, &partLimit, &orgLimit,
			&partSignup, &orgSignup, &mode, &prices)
		if err != nil {
			return t, err
		}
		if !start.Valid {
			return t, nil
		}
		p, err := ParsePrices(prices)
		if err != nil {
			return t, fmt.Errorf("template %s: %w", t.ID, err)
		}
		t.Hint = &HintEvent{
			Start:             start.Time,
			RegistrationStart: regStart.Time,
			ParticipantLimit:  int(partLimit.Int32),
			OrganizerLimit:    int(orgLimit.Int32),
			ParticipantSignup: toStatuses(partSignup),
			OrganizerSignup:   toStatuses(orgSignup),
			RegistrationMode:  RegistrationMode(mode.String),
			Prices:            p,
		}
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan templates: %w", err)
	}
	return ts, nil
}

// eventPage selects one window of tenant events by keyset and left-joins
// their registrations. Rows arrive grouped by event id.
const eventPage = `
WITH page AS (
    SELECT e.*
    FROM "TumiEvent" e
    WHERE e.id > $2
      AND EXISTS (
          SELECT 1 FROM "EventTemplate" t
          WHERE t.id = e."eventTemplateId" AND t."tenantId" = $1
      )
    ORDER BY e.id
    LIMIT $3
)
SELECT p.id, p.title, p.icon, COALESCE(p.description, ''), COALESCE(p.location, ''),
       COALESCE(p."googlePlaceId", ''), p.coordinates,
       p.start, p."end", p."registrationStart", p."publicationState"::text,
       p."participantLimit", p."organizerLimit",
       p."participantSignup"::text[], p."organizerSignup"::text[],
       p."registrationMode"::text, p.prices, p."eventTemplateId", p."creatorId",
       r.id, r."userId", r.type::text, r.status::text, r."checkInTime"
FROM page p
LEFT JOIN "EventRegistration" r ON r."eventId" = p.id
ORDER BY p.id, r.id`

func (s *PgStore) EventPage(ctx context.Context, tenantID, afterID string, limit int) ([]EventRow, error) {
	rows, err := s.db.Query(ctx, eventPage, tenantID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (EventRow, error) {
		var (
			e          Event
			coords     []byte
			prices     []byte
			partSignup []string
			orgSignup  []string
			regID      pgtype.Text
			regUser    pgtype.Text
			regType    pgtype.Text
			regStatus  pgtype.Text
			regCheckIn pgtype.Timestamptz
		)
		err := row.Scan(&e.ID, &e.Title, &e.Icon, &e.Description, &e.Location,
			&e.GooglePlaceID, &coords,
			&e.Start, &e.End, &e.RegistrationStart, &e.PublicationState,
			&e.ParticipantLimit, &e.OrganizerLimit,
			&partSignup, &orgSignup,
			&e.RegistrationMode, &prices, &e.TemplateID, &e.CreatorID,
			&regID, &regUser, &regType, &regStatus, &regCheckIn)
		if err != nil {
			return EventRow{}, err
		}
		if e.Coordinates, err = ParseCoordinates(coords); err != nil {
			return EventRow{}, fmt.Errorf("event %s: %w", e.ID, err)
		}
		if e.Prices, err = ParsePrices(prices); err != nil {
			return EventRow{}, fmt.Errorf("event %s: %w", e.ID, err)
		}
		e.ParticipantSignup = toStatuses(partSignup)
		e.OrganizerSignup = toStatuses(orgSignup)

		r := EventRow{Event: e}
		if regID.Valid {
			reg := &Registration{
				ID:     regID.String,
				UserID: regUser.String,
				Type:   RegistrationType(regType.String),
				Status: RegistrationStatus(regStatus.String),
			}
			if regCheckIn.Valid {
				t := regCheckIn.Time
				reg.CheckInTime = &t
			}
			r.Registration = reg
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return out, nil
}

func toStatuses(in []string) []MembershipStatus {
	if len(in) == 0 {
		return nil
	}
	out := make([]MembershipStatus, len(in))
	for i, s := range in {
		out[i] = MembershipStatus(s)
	}
	return out
}
