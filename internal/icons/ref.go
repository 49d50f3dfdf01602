// Package icons registers the icons a tenant references, with a readable
// label and a dominant display color, exactly once per tenant.
package icons

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrInvalidIconRef is returned for references without a name.
var ErrInvalidIconRef = errors.New("invalid icon reference")

// Ref is a parsed icon reference of the form name[:variant]. CommonName is
// the reference as written and is the per-tenant unique key.
type Ref struct {
	CommonName string
	Name       string
	Variant    string
}

// ParseRef splits a reference on the first ':'.
func ParseRef(s string) (Ref, error) {
	name, variant, _ := strings.Cut(s, ":")
	if strings.TrimSpace(name) == "" {
		return Ref{}, fmt.Errorf("%w: %q has no name", ErrInvalidIconRef, s)
	}
	return Ref{CommonName: s, Name: name, Variant: variant}, nil
}

// FriendlyName derives a human label. Name tokens equal to a token of the
// variant are dropped, so "alps-color:color" reads "Alps" rather than
// "Alps Color". Inner capitals are kept.
func (r Ref) FriendlyName() string {
	variant := make(map[string]bool)
	for _, token := range strings.Split(r.Variant, "-") {
		variant[token] = true
	}

	words := make([]string, 0, 4)
	for _, token := range strings.Split(r.Name, "-") {
		token = strings.TrimSpace(token)
		if token == "" || variant[token] {
			continue
		}
		words = append(words, token)
	}
	return cases.Title(language.English, cases.NoLower).String(strings.Join(words, " "))
}
