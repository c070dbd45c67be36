// internal/gfx/font/resolver.go
package font

import "strings"

// Resolver maps font families to templates. Implementations must never fail
// outright: LastResortTemplate always returns a usable template.
type Resolver interface {
	// Template returns the template for family matching desc, or false when
	// the family is unknown.
	Template(family string, desc Descriptor) (*Template, bool)
	// LastResortTemplate returns the platform fallback face.
	LastResortTemplate(desc Descriptor) *Template
}

// TableResolver is a Resolver backed by a static table of generic families.
// It stands in for a real font cache task; the metrics below are typical for
// the faces the generic families map to.
type TableResolver struct {
	templates map[string]Template
	fallback  Template
}

// NewTableResolver builds a resolver covering the CSS generic families.
func NewTableResolver() *TableResolver {
	serif := Template{Identifier: "serif", AscentPerEm: 0.891, DescentPerEm: 0.216, AdvancePerEm: 0.50, SpacePerEm: 0.25}
	sans := Template{Identifier: "sans-serif", AscentPerEm: 0.905, DescentPerEm: 0.212, AdvancePerEm: 0.52, SpacePerEm: 0.28}
	mono := Template{Identifier: "monospace", AscentPerEm: 0.80, DescentPerEm: 0.20, AdvancePerEm: 0.60, SpacePerEm: 0.60}
	return &TableResolver{
		templates: map[string]Template{
			"serif":      serif,
			"sans-serif": sans,
			"monospace":  mono,
			"cursive":    serif,
			"fantasy":    serif,
		},
		fallback: sans,
	}
}

// Template implements Resolver.
func (r *TableResolver) Template(family string, desc Descriptor) (*Template, bool) {
	tpl, ok := r.templates[strings.ToLower(strings.TrimSpace(family))]
	if !ok {
		return nil, false
	}
	out := tpl
	out.Descriptor = desc
	return &out, true
}

// LastResortTemplate implements Resolver.
func (r *TableResolver) LastResortTemplate(desc Descriptor) *Template {
	out := r.fallback
	out.Descriptor = desc
	return &out
}
