package migrate

import (
	"errors"
	"fmt"
)

// ErrCorrelation is returned when the ids an insert reports do not match
// the ids that were submitted.
var ErrCorrelation = errors.New("inserted ids did not round-trip")

// pending tracks generated current ids until the insert confirms them.
type pending map[string]string

// add records that currentID was generated for legacyID.
func (p pending) add(currentID, legacyID string) {
	p[currentID] = legacyID
}

// correlate builds legacy → current from the ids returned by an insert. Row
// order is irrelevant. Unknown, duplicated or missing ids fail.
func (p pending) correlate(returned []string) (IDMap, error) {
	m := make(IDMap, len(p))
	for _, id := range returned {
		legacyID, ok := p[id]
		if !ok {
			return nil, fmt.Errorf("%w: unexpected id %s", ErrCorrelation, id)
		}
		if _, dup := m[legacyID]; dup {
			return nil, fmt.Errorf("%w: id %s returned twice", ErrCorrelation, id)
		}
		m[legacyID] = id
	}
	if len(m) != len(p) {
		return nil, fmt.Errorf("%w: %d of %d ids returned", ErrCorrelation, len(m), len(p))
	}
	return m, nil
}
