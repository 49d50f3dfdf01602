// Package store writes the current schema. It is the only package that
// issues statements against the target database.
package store

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh identifier for a current-side record. Ids are
// generated before insert so callers can correlate input rows with the
// rows the database hands back.
func NewID() string {
	return uuid.NewString()
}

// EventStatus is the review state of an event instance.
type EventStatus string

const (
	EventDraft         EventStatus = "DRAFT"
	EventPendingReview EventStatus = "PENDING_REVIEW"
	EventApproved      EventStatus = "APPROVED"
	EventRejected      EventStatus = "REJECTED"
)

// Visibility controls who can see an event instance.
type Visibility string

const (
	VisibilityHidden Visibility = "HIDDEN"
	VisibilityPublic Visibility = "PUBLIC"
)

// RegistrationModeFCFS is the only registration mode migrated events use.
const RegistrationModeFCFS = "fcfs"

type Tenant struct {
	ID     string
	Domain string
	Name   string
}

type User struct {
	ID        string
	AuthID    string
	Email     string
	FirstName string
	LastName  string
	CreatedAt time.Time
}

type Role struct {
	ID                   string
	TenantID             string
	Name                 string
	Description          string
	Permissions          []string
	DefaultUserRole      bool
	DefaultOrganizerRole bool
}

// UserTenant assigns a user to a tenant with its role attachments.
type UserTenant struct {
	ID       string
	UserID   string
	TenantID string
	RoleIDs  []string
}

type Category struct {
	ID       string
	TenantID string
	Title    string
	Icon     string
}

type Template struct {
	ID           string
	TenantID     string
	CategoryID   string
	Title        string
	Icon         string
	Description  string
	PlanningTips string
	Location     *Location
}

// TemplateOption is a registration option blueprint. Offsets are hours
// relative to the start of an event created from the template.
type TemplateOption struct {
	ID                      string
	TemplateID              string
	Title                   string
	Description             string
	IsPaid                  bool
	Price                   int
	Spots                   int
	OpenRegistrationOffset  int
	CloseRegistrationOffset int
	RoleIDs                 []string
	OrganizingRegistration  bool
	RegistrationMode        string
}

type Event struct {
	ID          string
	TenantID    string
	TemplateID  string
	CreatorID   string
	Title       string
	Icon        string
	Description string
	Start       time.Time
	End         time.Time
	Status      EventStatus
	Visibility  Visibility
	Location    *Location
}

type EventOption struct {
	ID                     string
	EventID                string
	Title                  string
	Description            string
	IsPaid                 bool
	Price                  int
	Spots                  int
	OpenRegistrationTime   time.Time
	CloseRegistrationTime  time.Time
	RoleIDs                []string
	OrganizingRegistration bool
	RegistrationMode       string
	ConfirmedSpots         int
	ReservedSpots          int
	CheckedInSpots         int
}

// Icon is unique per (TenantID, CommonName). SourceColor is an ARGB value,
// nil when the color could not be extracted.
type Icon struct {
	ID           string
	TenantID     string
	CommonName   string
	FriendlyName string
	SourceColor  *int64
}

// Location is stored as JSON on templates and events.
type Location struct {
	Type        string       `json:"type"`
	Name        string       `json:"name"`
	PlaceID     string       `json:"placeId"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
