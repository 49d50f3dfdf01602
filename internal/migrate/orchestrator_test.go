package migrate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/eventmigrate/internal/icons"
	"github.com/JonMunkholm/eventmigrate/internal/legacy"
	"github.com/JonMunkholm/eventmigrate/internal/logging"
	"github.com/JonMunkholm/eventmigrate/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tumi = Target{ShortName: "tumi", Domain: "tumi.esn.world"}

// scenario builds a legacy tenant with one category, one template linked to
// one event, and two registrations on that event: a successful participant
// and a pending organizer.
func scenario() *memLegacy {
	src := newMemLegacy()
	src.tenants = []legacy.Tenant{{ID: "lt1", Name: "TUMi", ShortName: "tumi"}}
	src.users = []legacy.User{
		{ID: "lu1", AuthID: "auth0|creator", Email: "creator@example.com", FirstName: "Cleo", LastName: "Creator", CreatedAt: t0},
		{ID: "lu2", AuthID: "auth0|part", Email: "part@example.com", FirstName: "Pat", LastName: "Part", CreatedAt: t0},
		{ID: "lu3", AuthID: "auth0|org", Email: "org@example.com", FirstName: "Oli", LastName: "Org", CreatedAt: t0},
	}
	src.memberships = []legacy.Membership{
		{UserID: "lu1", TenantID: "lt1", Role: legacy.RoleAdmin, Status: legacy.StatusFull},
		{UserID: "lu2", TenantID: "lt1", Role: legacy.RoleUser, Status: legacy.StatusNone},
		{UserID: "lu3", TenantID: "lt1", Role: legacy.RoleUser, Status: legacy.StatusTrial},
	}
	src.categories["lt1"] = []legacy.Category{{ID: "lc1", Name: "Trips", Icon: "mountain:color"}}

	prices := legacy.PriceOptions{Options: []legacy.PriceOption{
		{Amount: 12.5, AllowedStatusList: []legacy.MembershipStatus{legacy.StatusNone}},
	}}
	src.templates["lt1"] = []legacy.Template{{
		ID:           "ltpl1",
		Title:        "Alps hike",
		Icon:         "alps-color:color",
		Description:  "Bring **boots**",
		Comment:      "Book the bus early",
		Location:     "Garmisch",
		CategoryID:   "lc1",
		CategoryName: "Trips",
		Hint: &legacy.HintEvent{
			Start:             t0,
			RegistrationStart: t0.Add(-7 * 24 * time.Hour),
			ParticipantLimit:  40,
			OrganizerLimit:    3,
			ParticipantSignup: []legacy.MembershipStatus{legacy.StatusNone, legacy.StatusTrial, legacy.StatusFull},
			OrganizerSignup:   []legacy.MembershipStatus{legacy.StatusFull},
			RegistrationMode:  legacy.ModeStripe,
			Prices:            prices,
		},
	}}
	src.events["lt1"] = []legacy.Event{{
		ID:                "le1",
		Title:             "Alps hike",
		Icon:              "alps-color:color",
		Description:       "Bring **boots**",
		Location:          "Zugspitze",
		GooglePlaceID:     "place-1",
		Coordinates:       &legacy.Coordinates{Lat: 47.42, Lng: 10.98},
		Start:             t0,
		End:               t0.Add(10 * time.Hour),
		RegistrationStart: t0.Add(-7 * 24 * time.Hour),
		PublicationState:  legacy.PublicationPublic,
		ParticipantLimit:  40,
		OrganizerLimit:    3,
		ParticipantSignup: []legacy.MembershipStatus{legacy.StatusNone},
		OrganizerSignup:   []legacy.MembershipStatus{legacy.StatusFull},
		RegistrationMode:  legacy.ModeStripe,
		Prices:            prices,
		TemplateID:        "ltpl1",
		CreatorID:         "lu1",
	}}
	src.registrations["le1"] = []legacy.Registration{
		{ID: "lr1", UserID: "lu2", Type: legacy.TypeParticipant, Status: legacy.RegistrationSuccessful},
		{ID: "lr2", UserID: "lu3", Type: legacy.TypeOrganizer, Status: legacy.RegistrationPending},
	}
	return src
}

func newTestService(src *memLegacy, dst *memStore, ic IconEnsurer, opts Options) *Service {
	if opts.Targets == nil {
		opts.Targets = []Target{tumi}
	}
	if ic == nil {
		ic = &recordingIcons{}
	}
	return NewService(src, dst, ic, plainText{}, opts)
}

func userIDByAuth(t *testing.T, dst *memStore, authID string) string {
	t.Helper()
	id, err := dst.UserIDByAuthID(context.Background(), authID)
	require.NoError(t, err)
	return id
}

func TestRun_EndToEnd(t *testing.T) {
	src := scenario()
	dst := newMemStore()
	ic := &recordingIcons{}
	svc := newTestService(src, dst, ic, Options{ResetTarget: true, BatchSize: 10})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, dst.resets)
	assert.Len(t, dst.users, 3)
	require.Len(t, dst.tenants, 1)
	tenantID := dst.tenants[0].ID
	assert.Equal(t, "tumi.esn.world", dst.tenants[0].Domain)
	assert.Equal(t, "TUMi", dst.tenants[0].Name)
	assert.Len(t, dst.roles, 5)
	assert.Len(t, dst.userTenants, 3)

	require.Len(t, dst.categories, 1)
	category := dst.categories[0]
	assert.Equal(t, "Trips", category.Title)
	assert.Equal(t, tenantID, category.TenantID)

	require.Len(t, dst.templates, 1)
	tpl := dst.templates[0]
	assert.Equal(t, category.ID, tpl.CategoryID)
	assert.Equal(t, "Book the bus early", tpl.PlanningTips)
	require.NotNil(t, tpl.Location)
	assert.Equal(t, "Garmisch", tpl.Location.Name)

	require.Len(t, dst.templateOptions, 2)
	for _, o := range dst.templateOptions {
		assert.Equal(t, tpl.ID, o.TemplateID)
		assert.Equal(t, 168, o.OpenRegistrationOffset)
	}
	assert.Equal(t, 1250, dst.templateOptions[0].Price)

	require.Len(t, dst.events, 1)
	event := dst.events[0]
	assert.Equal(t, tpl.ID, event.TemplateID)
	assert.Equal(t, userIDByAuth(t, dst, "auth0|creator"), event.CreatorID)
	assert.Equal(t, store.EventApproved, event.Status)
	assert.Equal(t, store.VisibilityPublic, event.Visibility)
	require.NotNil(t, event.Location)
	assert.Equal(t, "google", event.Location.Type)
	assert.Equal(t, "place-1", event.Location.PlaceID)
	assert.InDelta(t, 47.42, event.Location.Coordinates.Lat, 1e-9)

	opts := dst.optionsForEvent(event.ID)
	require.Len(t, opts, 2)
	var participants, organizers store.EventOption
	for _, o := range opts {
		if o.OrganizingRegistration {
			organizers = o
		} else {
			participants = o
		}
	}
	assert.Equal(t, [2]int{1, 0}, [2]int{participants.ConfirmedSpots, participants.ReservedSpots})
	assert.Equal(t, [2]int{0, 1}, [2]int{organizers.ConfirmedSpots, organizers.ReservedSpots})
	assert.Equal(t, t0.Add(time.Hour), participants.CloseRegistrationTime)
	assert.True(t, participants.IsPaid)
	assert.Equal(t, 1250, participants.Price)

	assert.Equal(t, [][]string{{"mountain:color"}, {"alps-color:color"}, {"alps-color:color"}}, ic.calls)

	require.Len(t, summary.Tenants, 1)
	ts := summary.Tenants[0]
	assert.Equal(t, TenantMigrated, ts.Status)
	assert.Equal(t, tenantID, ts.TenantID)
	assert.Equal(t, StageCounts{Migrated: 3}, summary.Users)
	assert.Equal(t, StageCounts{Migrated: 5}, ts.Counts(StageRoles))
	assert.Equal(t, StageCounts{Migrated: 3}, ts.Counts(StageAssignments))
	assert.Equal(t, StageCounts{Migrated: 1}, ts.Counts(StageCategories))
	assert.Equal(t, StageCounts{Migrated: 1}, ts.Counts(StageTemplates))
	assert.Equal(t, StageCounts{Migrated: 1}, ts.Counts(StageEvents))
	assert.True(t, summary.Reset)

	snap := svc.Progress().Snapshot()
	assert.Equal(t, PhaseComplete, snap.Phase)
	assert.Equal(t, summary.RunID, snap.RunID)
	assert.Len(t, snap.Tenants, 1)
}

func TestRun_AssignmentRoles(t *testing.T) {
	src := scenario()
	src.memberships = append(src.memberships, legacy.Membership{UserID: "lu9", TenantID: "lt1", Role: legacy.RoleUser, Status: legacy.StatusNone})
	dst := newMemStore()

	summary, err := newTestService(src, dst, nil, Options{}).Run(context.Background())
	require.NoError(t, err)

	roleName := make(map[string]string)
	for _, r := range dst.roles {
		roleName[r.ID] = r.Name
	}
	byUser := make(map[string][]string)
	for _, ut := range dst.userTenants {
		for _, id := range ut.RoleIDs {
			byUser[ut.UserID] = append(byUser[ut.UserID], roleName[id])
		}
	}
	assert.Equal(t, []string{"Section member", "Admin"}, byUser[userIDByAuth(t, dst, "auth0|creator")])
	assert.Equal(t, []string{"Regular user"}, byUser[userIDByAuth(t, dst, "auth0|part")])
	assert.Equal(t, []string{"Trial member"}, byUser[userIDByAuth(t, dst, "auth0|org")])
	assert.Equal(t, StageCounts{Migrated: 3, Skipped: 1}, summary.Tenants[0].Counts(StageAssignments))
}

// A store that returns RETURNING ids in reverse order must not change which
// current row a legacy id maps to.
func TestRun_CorrelationSurvivesReorderedReturns(t *testing.T) {
	src := scenario()
	src.categories["lt1"] = nil
	src.templates["lt1"] = nil
	src.events["lt1"] = nil
	for i := 1; i <= 4; i++ {
		cat := fmt.Sprintf("cat%d", i)
		src.categories["lt1"] = append(src.categories["lt1"], legacy.Category{ID: "l" + cat, Name: cat, Icon: cat})
		src.templates["lt1"] = append(src.templates["lt1"], legacy.Template{
			ID: "ltpl-" + cat, Title: "tpl-" + cat, Icon: cat, CategoryID: "l" + cat,
		})
		src.events["lt1"] = append(src.events["lt1"], legacy.Event{
			ID: fmt.Sprintf("le%d", i), Title: "evt-" + cat, Icon: cat, Start: t0,
			PublicationState: legacy.PublicationDraft, TemplateID: "ltpl-" + cat, CreatorID: "lu1",
		})
	}

	dst := newMemStore()
	dst.reverse = true
	_, err := newTestService(src, dst, nil, Options{BatchSize: 3}).Run(context.Background())
	require.NoError(t, err)

	catTitle := make(map[string]string)
	for _, c := range dst.categories {
		catTitle[c.ID] = c.Title
	}
	tplTitle := make(map[string]string)
	for _, tpl := range dst.templates {
		assert.Equal(t, "tpl-"+catTitle[tpl.CategoryID], tpl.Title)
		tplTitle[tpl.ID] = tpl.Title
	}
	require.Len(t, dst.events, 4)
	for _, e := range dst.events {
		tpl, ok := dst.templateByID(e.TemplateID)
		require.True(t, ok)
		assert.Equal(t, "evt-"+tpl.Title[len("tpl-"):], e.Title)
		assert.Len(t, dst.optionsForEvent(e.ID), 2)
	}
}

func TestRun_MissingReturnedIDFails(t *testing.T) {
	dst := newMemStore()
	dst.dropLast = true

	svc := newTestService(scenario(), dst, nil, Options{})
	summary, err := svc.Run(context.Background())
	require.ErrorIs(t, err, ErrCorrelation)
	assert.Equal(t, "MIG003", Classify(err).Code)
	require.NotNil(t, summary)
	assert.Equal(t, PhaseFailed, svc.Progress().Snapshot().Phase)
}

func TestRun_FailureLoggedOnceWithSupportCode(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logging.New(&buf, "debug", "json"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	dst := newMemStore()
	dst.failOn = store.TableCategories
	dst.failErr = errors.New("read: connection reset by peer")

	_, err := newTestService(scenario(), dst, nil, Options{}).Run(context.Background())
	require.Error(t, err)

	var errorLines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		if entry["level"] == "ERROR" {
			errorLines = append(errorLines, entry)
		}
	}
	require.Len(t, errorLines, 1)
	assert.Equal(t, "migration failed", errorLines[0]["msg"])
	assert.Equal(t, "DB005", errorLines[0]["code"])
	assert.Contains(t, errorLines[0]["support"], "DB005")
	assert.NotEmpty(t, errorLines[0]["run_id"])
}

func TestRun_SkipsExistingTenant(t *testing.T) {
	dst := newMemStore()
	dst.tenants = []store.Tenant{{ID: "existing", Domain: tumi.Domain}}

	summary, err := newTestService(scenario(), dst, nil, Options{ResetTarget: false}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Tenants, 1)
	assert.Equal(t, TenantExists, summary.Tenants[0].Status)
	assert.Empty(t, dst.roles)
	assert.Empty(t, dst.categories)
	assert.Len(t, dst.users, 3)
}

func TestRun_RerunWithoutResetSkipsMigratedData(t *testing.T) {
	src := scenario()
	dst := newMemStore()

	first, err := newTestService(src, dst, nil, Options{ResetTarget: true}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, TenantMigrated, first.Tenants[0].Status)
	usersBefore := len(dst.users)
	eventsBefore := len(dst.events)

	second, err := newTestService(src, dst, nil, Options{ResetTarget: false}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StageCounts{Migrated: 0, Skipped: usersBefore}, second.Users)
	require.Len(t, second.Tenants, 1)
	assert.Equal(t, TenantExists, second.Tenants[0].Status)
	assert.Len(t, dst.users, usersBefore)
	assert.Len(t, dst.events, eventsBefore)

	authIDs := make(map[string]int)
	for _, u := range dst.users {
		authIDs[u.AuthID]++
	}
	for authID, n := range authIDs {
		assert.Equal(t, 1, n, "auth id %s", authID)
	}
}

func TestRun_DuplicateUserInsertIsDB001(t *testing.T) {
	dst := newMemStore()
	dst.users = []store.User{{ID: "u-existing", AuthID: "auth0|part"}}

	_, err := dst.InsertUsers(context.Background(), []store.User{{ID: "u-new", AuthID: "auth0|part"}})
	require.Error(t, err)
	assert.Equal(t, "DB001", Classify(err).Code)
}

func TestRun_SkipsMissingLegacyTenantAndContinues(t *testing.T) {
	dst := newMemStore()
	targets := []Target{{ShortName: "nowhere", Domain: "nowhere.esn.world"}, tumi}

	summary, err := newTestService(scenario(), dst, nil, Options{Targets: targets}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Tenants, 2)
	assert.Equal(t, TenantMissingLegacy, summary.Tenants[0].Status)
	assert.Equal(t, TenantMigrated, summary.Tenants[1].Status)
	assert.Len(t, dst.tenants, 1)
}

func TestRun_StageErrorAbortsRun(t *testing.T) {
	src := scenario()
	src.tenants = append(src.tenants, legacy.Tenant{ID: "lt2", Name: "Second", ShortName: "second"})
	dst := newMemStore()
	dst.failOn = store.TableCategories
	dst.failErr = errors.New("insert categories: connection reset by peer")
	targets := []Target{tumi, {ShortName: "second", Domain: "second.esn.world"}}

	svc := newTestService(src, dst, nil, Options{Targets: targets})
	summary, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant tumi.esn.world")
	assert.Equal(t, "DB005", Classify(err).Code)

	require.Len(t, summary.Tenants, 1)
	assert.Equal(t, TenantFailed, summary.Tenants[0].Status)
	assert.Len(t, dst.tenants, 1, "second tenant never started")
	assert.Len(t, dst.roles, 5, "earlier stages are not rolled back")

	snap := svc.Progress().Snapshot()
	assert.Equal(t, PhaseFailed, snap.Phase)
	assert.Equal(t, "DB005", snap.Code)
	assert.Equal(t, StageCategories, snap.Stage)
}

func TestRun_ResetRefusedInProduction(t *testing.T) {
	dst := newMemStore()

	_, err := newTestService(scenario(), dst, nil, Options{ResetTarget: true, Production: true}).Run(context.Background())
	require.ErrorIs(t, err, ErrResetRefused)
	assert.Zero(t, dst.resets)
	assert.Empty(t, dst.users)
}

func TestRun_ProductionWithoutResetMigrates(t *testing.T) {
	dst := newMemStore()

	_, err := newTestService(scenario(), dst, nil, Options{Production: true}).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, dst.events, 1)
}

func TestRun_InvalidIconRefAborts(t *testing.T) {
	dst := newMemStore()
	ic := &recordingIcons{err: fmt.Errorf("%w: \":color\"", icons.ErrInvalidIconRef)}

	_, err := newTestService(scenario(), dst, ic, Options{}).Run(context.Background())
	require.ErrorIs(t, err, icons.ErrInvalidIconRef)
	assert.Equal(t, "MIG002", Classify(err).Code)
	assert.Empty(t, dst.categories, "no category written after the failed ensure")
}

func TestRun_EventSkips(t *testing.T) {
	src := scenario()
	base := src.events["lt1"][0]

	ghostCreator := base
	ghostCreator.ID, ghostCreator.CreatorID = "le2", "lu-ghost"
	unknownState := base
	unknownState.ID, unknownState.PublicationState = "le3", "ARCHIVED"
	noTemplate := base
	noTemplate.ID, noTemplate.TemplateID = "le4", "ltpl-gone"
	sameGhost := base
	sameGhost.ID, sameGhost.CreatorID = "le5", "lu-ghost"
	src.events["lt1"] = append(src.events["lt1"], ghostCreator, unknownState, noTemplate, sameGhost)

	dst := newMemStore()
	summary, err := newTestService(src, dst, nil, Options{BatchSize: 2}).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, dst.events, 1)
	assert.Len(t, dst.eventOptions, 2)
	assert.Equal(t, StageCounts{Migrated: 1, Skipped: 4}, summary.Tenants[0].Counts(StageEvents))
	assert.Equal(t, 1, src.authIDCalls["lu-ghost"], "unresolved creator looked up once")
	assert.EqualValues(t, 1, summary.Resolver.NotFound)
}

func TestRun_DropsTemplatesWithUnmappedCategory(t *testing.T) {
	src := scenario()
	src.templates["lt1"] = append(src.templates["lt1"], legacy.Template{
		ID: "ltpl2", Title: "Orphan", Icon: "ghost", CategoryID: "lc-missing",
	})

	dst := newMemStore()
	summary, err := newTestService(src, dst, nil, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, dst.templates, 1)
	assert.Len(t, dst.templateOptions, 2)
	assert.Equal(t, StageCounts{Migrated: 1, Skipped: 1}, summary.Tenants[0].Counts(StageTemplates))
}

func TestRun_PagesThroughEverything(t *testing.T) {
	src := scenario()
	base := src.events["lt1"][0]
	for i := 2; i <= 5; i++ {
		e := base
		e.ID = fmt.Sprintf("le%d", i)
		src.events["lt1"] = append(src.events["lt1"], e)
	}

	dst := newMemStore()
	summary, err := newTestService(src, dst, nil, Options{BatchSize: 2}).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, dst.users, 3)
	assert.Len(t, dst.userTenants, 3)
	assert.Len(t, dst.events, 5)
	assert.Len(t, dst.eventOptions, 10)
	assert.Equal(t, 3, src.eventPages, "pages of 2, 2, 1")
	assert.Equal(t, 5, summary.Tenants[0].Counts(StageEvents).Migrated)
}

func TestRun_DuplicateIdentityKeysSkipped(t *testing.T) {
	src := scenario()
	src.users = append(src.users, legacy.User{ID: "lu4", AuthID: "auth0|old-part"})
	opts := Options{AuthIDs: NewAuthIDTransformWith(true, map[string]string{"auth0|old-part": "auth0|part"})}

	dst := newMemStore()
	summary, err := newTestService(src, dst, nil, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, dst.users, 3)
	assert.Equal(t, StageCounts{Migrated: 3, Skipped: 1}, summary.Users)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newTestService(scenario(), newMemStore(), nil, Options{})
	_, err := svc.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PhaseCancelled, svc.Progress().Snapshot().Phase)
	assert.Equal(t, "MIG004", Classify(err).Code)
}

type stageRecorder struct {
	mu      sync.Mutex
	stages  []string
	tenants []string
}

func (r *stageRecorder) ObserveStage(stage string, _, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *stageRecorder) ObserveTenant(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants = append(r.tenants, status)
}

func TestRun_StageOrder(t *testing.T) {
	rec := &stageRecorder{}
	_, err := newTestService(scenario(), newMemStore(), nil, Options{Recorder: rec}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"users", "tenant", "roles", "assignments", "categories", "templates", "events"}, rec.stages)
	assert.Equal(t, []string{"migrated"}, rec.tenants)
}

func TestReset(t *testing.T) {
	dst := newMemStore()
	dst.users = []store.User{{ID: "u"}}

	require.NoError(t, newTestService(scenario(), dst, nil, Options{}).Reset(context.Background()))
	assert.Empty(t, dst.users)

	err := newTestService(scenario(), dst, nil, Options{Production: true}).Reset(context.Background())
	assert.ErrorIs(t, err, ErrResetRefused)
}
