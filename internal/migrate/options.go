package migrate

import (
	"math"
	"time"

	"github.com/JonMunkholm/eventmigrate/internal/legacy"
	"github.com/JonMunkholm/eventmigrate/internal/store"
)

const (
	defaultOpenOffsetHours      = 168
	participantCloseOffsetHours = 4
	organizerCloseOffsetHours   = 1
	defaultParticipantSpots     = 20
	defaultOrganizerSpots       = 1

	eventCloseAfterStart = time.Hour

	participantsTitle = "Participants"
	organizersTitle   = "Organizers"
)

// templateOptions derives the participant and organizer blueprints of a
// template from its hint event, or from defaults when there is none.
func templateOptions(templateID string, hint *legacy.HintEvent, roles RoleMap) []store.TemplateOption {
	participants := store.TemplateOption{
		ID:                      store.NewID(),
		TemplateID:              templateID,
		Title:                   participantsTitle,
		Spots:                   defaultParticipantSpots,
		OpenRegistrationOffset:  defaultOpenOffsetHours,
		CloseRegistrationOffset: participantCloseOffsetHours,
		RoleIDs:                 []string{},
		RegistrationMode:        store.RegistrationModeFCFS,
	}
	organizers := store.TemplateOption{
		ID:                      store.NewID(),
		TemplateID:              templateID,
		Title:                   organizersTitle,
		Spots:                   defaultOrganizerSpots,
		OpenRegistrationOffset:  defaultOpenOffsetHours,
		CloseRegistrationOffset: organizerCloseOffsetHours,
		RoleIDs:                 []string{},
		OrganizingRegistration:  true,
		RegistrationMode:        store.RegistrationModeFCFS,
	}

	if hint != nil {
		offset := openOffsetHours(hint.Start, hint.RegistrationStart)
		participants.OpenRegistrationOffset = offset
		participants.Spots = hint.ParticipantLimit
		participants.Price = ExtractPrice(hint.Prices)
		participants.IsPaid = hint.RegistrationMode.IsPaid()
		participants.RoleIDs = roles.IDs(hint.ParticipantSignup)

		organizers.OpenRegistrationOffset = offset
		organizers.Spots = hint.OrganizerLimit
		organizers.RoleIDs = roles.IDs(hint.OrganizerSignup)
	}

	return []store.TemplateOption{participants, organizers}
}

func openOffsetHours(start, registrationStart time.Time) int {
	return int(math.Round(start.Sub(registrationStart).Hours()))
}

// eventOptions derives the two registration options of an event, with the
// spot counters computed from its legacy registrations.
func eventOptions(eventID string, e legacy.Event, regs []legacy.Registration, roles RoleMap) []store.EventOption {
	closeAt := e.Start.Add(eventCloseAfterStart)

	participants := store.EventOption{
		ID:                    store.NewID(),
		EventID:               eventID,
		Title:                 participantsTitle,
		IsPaid:                e.RegistrationMode.IsPaid(),
		Price:                 ExtractPrice(e.Prices),
		Spots:                 e.ParticipantLimit,
		OpenRegistrationTime:  e.RegistrationStart,
		CloseRegistrationTime: closeAt,
		RoleIDs:               roles.IDs(e.ParticipantSignup),
		RegistrationMode:      store.RegistrationModeFCFS,
	}
	participants.ConfirmedSpots, participants.ReservedSpots, participants.CheckedInSpots =
		countRegistrations(regs, legacy.TypeParticipant)

	organizers := store.EventOption{
		ID:                     store.NewID(),
		EventID:                eventID,
		Title:                  organizersTitle,
		Spots:                  e.OrganizerLimit,
		OpenRegistrationTime:   e.RegistrationStart,
		CloseRegistrationTime:  closeAt,
		RoleIDs:                roles.IDs(e.OrganizerSignup),
		OrganizingRegistration: true,
		RegistrationMode:       store.RegistrationModeFCFS,
	}
	organizers.ConfirmedSpots, organizers.ReservedSpots, organizers.CheckedInSpots =
		countRegistrations(regs, legacy.TypeOrganizer)

	return []store.EventOption{participants, organizers}
}

// countRegistrations counts registrations of typ: confirmed are SUCCESSFUL,
// reserved are PENDING, checked in have a check-in time.
func countRegistrations(regs []legacy.Registration, typ legacy.RegistrationType) (confirmed, reserved, checkedIn int) {
	for _, r := range regs {
		if r.Type != typ {
			continue
		}
		switch r.Status {
		case legacy.RegistrationSuccessful:
			confirmed++
		case legacy.RegistrationPending:
			reserved++
		}
		if r.CheckInTime != nil {
			checkedIn++
		}
	}
	return confirmed, reserved, checkedIn
}
