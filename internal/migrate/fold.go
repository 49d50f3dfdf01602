package migrate

import (
	"fmt"

	"github.com/JonMunkholm/eventmigrate/internal/legacy"
)

// eventGroup is one legacy event with its registrations.
type eventGroup struct {
	Event         legacy.Event
	Registrations []legacy.Registration
}

// foldEventRows folds event ⋈ registration rows into one group per event,
// in first-seen order. Rows of one event must be contiguous; a row for an
// event that was already closed is an error.
func foldEventRows(rows []legacy.EventRow) ([]eventGroup, error) {
	var groups []eventGroup
	closed := make(map[string]bool)

	for _, row := range rows {
		id := row.Event.ID
		if n := len(groups); n == 0 || groups[n-1].Event.ID != id {
			if closed[id] {
				return nil, fmt.Errorf("fold events: rows for event %s are not contiguous", id)
			}
			if n > 0 {
				closed[groups[n-1].Event.ID] = true
			}
			groups = append(groups, eventGroup{Event: row.Event})
		}
		if row.Registration != nil {
			g := &groups[len(groups)-1]
			g.Registrations = append(g.Registrations, *row.Registration)
		}
	}
	return groups, nil
}
