package migrate

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/eventmigrate/internal/legacy"
	"github.com/JonMunkholm/eventmigrate/internal/store"
	"github.com/jackc/pgx/v5/pgconn"
)

// memLegacy is an in-memory legacy.Store.
type memLegacy struct {
	mu sync.Mutex

	tenants       []legacy.Tenant
	users         []legacy.User
	memberships   []legacy.Membership
	categories    map[string][]legacy.Category
	templates     map[string][]legacy.Template
	events        map[string][]legacy.Event
	registrations map[string][]legacy.Registration

	authIDCalls map[string]int
	authIDErr   error
	eventPages  int
}

func newMemLegacy() *memLegacy {
	return &memLegacy{
		categories:    make(map[string][]legacy.Category),
		templates:     make(map[string][]legacy.Template),
		events:        make(map[string][]legacy.Event),
		registrations: make(map[string][]legacy.Registration),
		authIDCalls:   make(map[string]int),
	}
}

func (m *memLegacy) TenantByShortName(_ context.Context, shortName string) (legacy.Tenant, error) {
	for _, t := range m.tenants {
		if t.ShortName == shortName {
			return t, nil
		}
	}
	return legacy.Tenant{}, legacy.ErrNotFound
}

func (m *memLegacy) UsersAfter(_ context.Context, afterID string, limit int) ([]legacy.User, error) {
	users := slices.Clone(m.users)
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	var out []legacy.User
	for _, u := range users {
		if u.ID > afterID && len(out) < limit {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memLegacy) UserAuthID(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authIDCalls[userID]++
	if m.authIDErr != nil {
		return "", m.authIDErr
	}
	for _, u := range m.users {
		if u.ID == userID {
			return u.AuthID, nil
		}
	}
	return "", legacy.ErrNotFound
}

func (m *memLegacy) MembershipsAfter(_ context.Context, tenantID, afterUserID string, limit int) ([]legacy.Membership, error) {
	all := slices.Clone(m.memberships)
	sort.Slice(all, func(i, j int) bool { return all[i].UserID < all[j].UserID })
	var out []legacy.Membership
	for _, ms := range all {
		if ms.TenantID == tenantID && ms.UserID > afterUserID && len(out) < limit {
			out = append(out, ms)
		}
	}
	return out, nil
}

func (m *memLegacy) Categories(_ context.Context, tenantID string) ([]legacy.Category, error) {
	return m.categories[tenantID], nil
}

func (m *memLegacy) Templates(_ context.Context, tenantID string) ([]legacy.Template, error) {
	return m.templates[tenantID], nil
}

// EventPage mirrors the SQL: a keyset page of events, each followed by its
// registrations ordered by id, or by one row without a registration.
func (m *memLegacy) EventPage(_ context.Context, tenantID, afterID string, limit int) ([]legacy.EventRow, error) {
	m.eventPages++
	events := slices.Clone(m.events[tenantID])
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })

	var rows []legacy.EventRow
	n := 0
	for _, e := range events {
		if e.ID <= afterID || n == limit {
			continue
		}
		n++
		regs := slices.Clone(m.registrations[e.ID])
		sort.Slice(regs, func(i, j int) bool { return regs[i].ID < regs[j].ID })
		if len(regs) == 0 {
			rows = append(rows, legacy.EventRow{Event: e})
			continue
		}
		for i := range regs {
			rows = append(rows, legacy.EventRow{Event: e, Registration: &regs[i]})
		}
	}
	return rows, nil
}

// memStore is an in-memory store.Store. With reverse set it hands back
// RETURNING ids in reverse order; with dropLast it loses the last id.
type memStore struct {
	mu sync.Mutex

	reverse  bool
	dropLast bool
	failOn   store.Table
	failErr  error

	tenants         []store.Tenant
	users           []store.User
	roles           []store.Role
	userTenants     []store.UserTenant
	categories      []store.Category
	templates       []store.Template
	templateOptions []store.TemplateOption
	events          []store.Event
	eventOptions    []store.EventOption
	icons           []store.Icon

	authLookups map[string]int
	resets      int
}

func newMemStore() *memStore {
	return &memStore{authLookups: make(map[string]int)}
}

func (s *memStore) fail(t store.Table) error {
	if s.failOn == t {
		return s.failErr
	}
	return nil
}

func (s *memStore) returning(ids []string) []string {
	out := slices.Clone(ids)
	if s.reverse {
		slices.Reverse(out)
	}
	if s.dropLast && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out
}

func collectIDs[T any](rows []T, id func(T) string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = id(r)
	}
	return out
}

func (s *memStore) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants, s.users, s.roles, s.userTenants = nil, nil, nil, nil
	s.categories, s.templates, s.templateOptions = nil, nil, nil
	s.events, s.eventOptions, s.icons = nil, nil, nil
	s.resets++
	return nil
}

func (s *memStore) Count(_ context.Context, t store.Table) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t {
	case store.TableTenants:
		return int64(len(s.tenants)), nil
	case store.TableUsers:
		return int64(len(s.users)), nil
	case store.TableRoles:
		return int64(len(s.roles)), nil
	case store.TableUserTenants:
		return int64(len(s.userTenants)), nil
	case store.TableRoleAssignments:
		n := 0
		for _, ut := range s.userTenants {
			n += len(ut.RoleIDs)
		}
		return int64(n), nil
	case store.TableCategories:
		return int64(len(s.categories)), nil
	case store.TableTemplates:
		return int64(len(s.templates)), nil
	case store.TableTemplateOptions:
		return int64(len(s.templateOptions)), nil
	case store.TableEvents:
		return int64(len(s.events)), nil
	case store.TableEventOptions:
		return int64(len(s.eventOptions)), nil
	case store.TableIcons:
		return int64(len(s.icons)), nil
	}
	return 0, errors.New("unknown table")
}

func (s *memStore) TenantExists(_ context.Context, domain string) (bool, error) {
	for _, t := range s.tenants {
		if t.Domain == domain {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) CreateTenant(_ context.Context, t store.Tenant) (string, error) {
	if err := s.fail(store.TableTenants); err != nil {
		return "", err
	}
	s.tenants = append(s.tenants, t)
	return t.ID, nil
}

func (s *memStore) InsertUsers(_ context.Context, users []store.User) ([]string, error) {
	if err := s.fail(store.TableUsers); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	taken := make(map[string]bool, len(s.users)+len(users))
	for _, u := range s.users {
		taken[u.AuthID] = true
	}
	for _, u := range users {
		if taken[u.AuthID] {
			return nil, &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint \"users_auth_id_key\""}
		}
		taken[u.AuthID] = true
	}
	s.users = append(s.users, users...)
	return s.returning(collectIDs(users, func(u store.User) string { return u.ID })), nil
}

func (s *memStore) UserIDsByAuthIDs(_ context.Context, authIDs []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(authIDs))
	for _, a := range authIDs {
		want[a] = true
	}
	found := make(map[string]string)
	for _, u := range s.users {
		if want[u.AuthID] {
			found[u.AuthID] = u.ID
		}
	}
	return found, nil
}

func (s *memStore) UserIDByAuthID(_ context.Context, authID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authLookups[authID]++
	for _, u := range s.users {
		if u.AuthID == authID {
			return u.ID, nil
		}
	}
	return "", store.ErrNotFound
}

func (s *memStore) InsertRoles(_ context.Context, roles []store.Role) ([]string, error) {
	if err := s.fail(store.TableRoles); err != nil {
		return nil, err
	}
	s.roles = append(s.roles, roles...)
	return s.returning(collectIDs(roles, func(r store.Role) string { return r.ID })), nil
}

func (s *memStore) InsertUserTenants(_ context.Context, uts []store.UserTenant) ([]string, error) {
	if err := s.fail(store.TableUserTenants); err != nil {
		return nil, err
	}
	s.userTenants = append(s.userTenants, uts...)
	return s.returning(collectIDs(uts, func(u store.UserTenant) string { return u.ID })), nil
}

func (s *memStore) InsertCategories(_ context.Context, cs []store.Category) ([]string, error) {
	if err := s.fail(store.TableCategories); err != nil {
		return nil, err
	}
	s.categories = append(s.categories, cs...)
	return s.returning(collectIDs(cs, func(c store.Category) string { return c.ID })), nil
}

func (s *memStore) InsertTemplates(_ context.Context, ts []store.Template) ([]string, error) {
	if err := s.fail(store.TableTemplates); err != nil {
		return nil, err
	}
	s.templates = append(s.templates, ts...)
	return s.returning(collectIDs(ts, func(t store.Template) string { return t.ID })), nil
}

func (s *memStore) InsertTemplateOptions(_ context.Context, opts []store.TemplateOption) ([]string, error) {
	s.templateOptions = append(s.templateOptions, opts...)
	return s.returning(collectIDs(opts, func(o store.TemplateOption) string { return o.ID })), nil
}

func (s *memStore) InsertEvents(_ context.Context, es []store.Event) ([]string, error) {
	if err := s.fail(store.TableEvents); err != nil {
		return nil, err
	}
	s.events = append(s.events, es...)
	return s.returning(collectIDs(es, func(e store.Event) string { return e.ID })), nil
}

func (s *memStore) InsertEventOptions(_ context.Context, opts []store.EventOption) ([]string, error) {
	s.eventOptions = append(s.eventOptions, opts...)
	return s.returning(collectIDs(opts, func(o store.EventOption) string { return o.ID })), nil
}

func (s *memStore) InsertIcons(_ context.Context, icons []store.Icon) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, ic := range icons {
		dup := slices.ContainsFunc(s.icons, func(have store.Icon) bool {
			return have.TenantID == ic.TenantID && have.CommonName == ic.CommonName
		})
		if !dup {
			s.icons = append(s.icons, ic)
			n++
		}
	}
	return n, nil
}

func (s *memStore) templateByID(id string) (store.Template, bool) {
	for _, t := range s.templates {
		if t.ID == id {
			return t, true
		}
	}
	return store.Template{}, false
}

func (s *memStore) optionsForEvent(eventID string) []store.EventOption {
	var out []store.EventOption
	for _, o := range s.eventOptions {
		if o.EventID == eventID {
			out = append(out, o)
		}
	}
	return out
}

// recordingIcons records Ensure calls and can fail them.
type recordingIcons struct {
	calls [][]string
	err   error
}

func (r *recordingIcons) Ensure(_ context.Context, _ string, refs []string) error {
	r.calls = append(r.calls, slices.Clone(refs))
	return r.err
}

// plainText returns its input unchanged.
type plainText struct{}

func (plainText) ToHTML(s string) (string, error) { return s, nil }

var t0 = time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
