package migrate

import (
	"github.com/JonMunkholm/eventmigrate/internal/legacy"
	"github.com/JonMunkholm/eventmigrate/internal/store"
)

type publication struct {
	status     store.EventStatus
	visibility store.Visibility
}

var publicationTable = map[legacy.PublicationState]publication{
	legacy.PublicationApproval:   {store.EventPendingReview, store.VisibilityHidden},
	legacy.PublicationDraft:      {store.EventDraft, store.VisibilityHidden},
	legacy.PublicationOrganizers: {store.EventApproved, store.VisibilityHidden},
	legacy.PublicationPublic:     {store.EventApproved, store.VisibilityPublic},
}

// PublicationStatus maps a legacy publication state to the current status
// and visibility. ok is false for states outside the legacy enum.
func PublicationStatus(s legacy.PublicationState) (store.EventStatus, store.Visibility, bool) {
	p, ok := publicationTable[s]
	return p.status, p.visibility, ok
}
