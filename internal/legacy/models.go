// Package legacy reads the prior system's tables. It never writes.
package legacy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// MembershipStatus is the legacy per-tenant membership enum.
type MembershipStatus string

const (
	StatusNone   MembershipStatus = "NONE"
	StatusTrial  MembershipStatus = "TRIAL"
	StatusFull   MembershipStatus = "FULL"
	StatusAlumni MembershipStatus = "ALUMNI"
)

// TenantRole is the legacy admin flag on a membership.
type TenantRole string

const (
	RoleUser  TenantRole = "USER"
	RoleAdmin TenantRole = "ADMIN"
)

// PublicationState is the legacy event visibility workflow.
type PublicationState string

const (
	PublicationDraft      PublicationState = "DRAFT"
	PublicationApproval   PublicationState = "APPROVAL"
	PublicationOrganizers PublicationState = "ORGANIZERS"
	PublicationPublic     PublicationState = "PUBLIC"
)

// RegistrationMode tells how participants signed up for a legacy event.
type RegistrationMode string

const (
	ModeStripe   RegistrationMode = "STRIPE"
	ModeOnline   RegistrationMode = "ONLINE"
	ModeExternal RegistrationMode = "EXTERNAL"
)

// IsPaid reports whether the mode collected a payment.
func (m RegistrationMode) IsPaid() bool {
	return m == ModeStripe
}

// RegistrationType separates participants from organizers.
type RegistrationType string

const (
	TypeParticipant RegistrationType = "PARTICIPANT"
	TypeOrganizer   RegistrationType = "ORGANIZER"
)

// RegistrationStatus is the lifecycle of a legacy registration.
type RegistrationStatus string

const (
	RegistrationPending    RegistrationStatus = "PENDING"
	RegistrationSuccessful RegistrationStatus = "SUCCESSFUL"
	RegistrationCancelled  RegistrationStatus = "CANCELLED"
)

type Tenant struct {
	ID        string
	Name      string
	ShortName string
}

type User struct {
	ID        string
	AuthID    string
	Email     string
	FirstName string
	LastName  string
	CreatedAt time.Time
}

// Membership is one row of the user/tenant join table.
type Membership struct {
	UserID   string
	TenantID string
	Role     TenantRole
	Status   MembershipStatus
}

type Category struct {
	ID   string
	Name string
	Icon string
}

// Template is a legacy event template joined with its category name and at
// most one event created from it. Hint is nil when no event exists.
type Template struct {
	ID           string
	Title        string
	Icon         string
	Description  string
	Comment      string
	Location     string
	CategoryID   string
	CategoryName string
	Hint         *HintEvent
}

// HintEvent carries the timing, capacity, role and price details of an event
// created from a template; templates borrow them for their option blueprints.
type HintEvent struct {
	Start             time.Time
	RegistrationStart time.Time
	ParticipantLimit  int
	OrganizerLimit    int
	ParticipantSignup []MembershipStatus
	OrganizerSignup   []MembershipStatus
	RegistrationMode  RegistrationMode
	Prices            PriceOptions
}

type Event struct {
	ID                string
	Title             string
	Icon              string
	Description       string
	Location          string
	GooglePlaceID     string
	Coordinates       *Coordinates
	Start             time.Time
	End               time.Time
	RegistrationStart time.Time
	PublicationState  PublicationState
	ParticipantLimit  int
	OrganizerLimit    int
	ParticipantSignup []MembershipStatus
	OrganizerSignup   []MembershipStatus
	RegistrationMode  RegistrationMode
	Prices            PriceOptions
	TemplateID        string
	CreatorID         string
}

type Registration struct {
	ID          string
	UserID      string
	Type        RegistrationType
	Status      RegistrationStatus
	CheckInTime *time.Time
}

// EventRow is one row of the event ⋈ registration left join. Registration is
// nil for events without registrations.
type EventRow struct {
	Event        Event
	Registration *Registration
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PriceOptions is the legacy prices JSON document.
type PriceOptions struct {
	Options []PriceOption `json:"options"`
}

type PriceOption struct {
	Amount            Amount             `json:"amount"`
	ESNCardRequired   bool               `json:"esnCardRequired"`
	AllowedStatusList []MembershipStatus `json:"allowedStatusList"`
	DefaultPrice      bool               `json:"defaultPrice"`
}

// Amount is a major-unit money value. The legacy writer stored decimals
// either as JSON numbers or as strings.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*a = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", s, err)
		}
		*a = Amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid amount %s: %w", data, err)
	}
	*a = Amount(f)
	return nil
}

// ParsePrices decodes a prices column. NULL or empty input yields no options.
func ParsePrices(raw []byte) (PriceOptions, error) {
	var p PriceOptions
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return PriceOptions{}, fmt.Errorf("decode prices: %w", err)
	}
	return p, nil
}

// ParseCoordinates decodes a coordinates column. NULL yields nil.
func ParseCoordinates(raw []byte) (*Coordinates, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var c Coordinates
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode coordinates: %w", err)
	}
	return &c, nil
}
