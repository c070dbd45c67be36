// internal/gfx/font/font.go
//
// Package font supplies shaped font handles to layout. It mirrors the
// per-task font context design: a resolver that maps family descriptors to
// templates (falling back to a last-resort template rather than failing), and
// a caching context layered on top.
package font

import "github.com/oksome/servo/internal/geom"

// Variant selects a typographic variant of a face.
type Variant int

const (
	VariantNormal Variant = iota
	VariantSmallCaps
)

// smallCapsScaleFactor shrinks the requested size for fake small caps.
const smallCapsScaleFactor = 0.8

// Descriptor identifies a face within a family, independent of size.
type Descriptor struct {
	Weight int
	Italic bool
}

// Style is everything layout knows about the text it wants to measure: the
// family fallback list plus the sized descriptor.
type Style struct {
	Families []string
	Descriptor
	PtSize  geom.Au
	Variant Variant
}

// Template holds the size-independent metrics of one face, expressed as
// fractions of the em square.
type Template struct {
	Identifier   string
	Descriptor   Descriptor
	AscentPerEm  float64
	DescentPerEm float64
	AdvancePerEm float64
	SpacePerEm   float64
}

// Metrics are the size-resolved measurements layout consumes.
type Metrics struct {
	Ascent         geom.Au
	Descent        geom.Au
	AverageAdvance geom.Au
	SpaceAdvance   geom.Au
}

// LineHeight is the default line box height for the font.
func (m Metrics) LineHeight() geom.Au {
	return m.Ascent + m.Descent
}

// Handle is a shaped font ready for measurement at one concrete size.
type Handle struct {
	Identifier      string
	Descriptor      Descriptor
	RequestedPtSize geom.Au
	ActualPtSize    geom.Au
	Variant         Variant
	Metrics         Metrics
}

// AdvanceForText approximates the advance width of text using the font's
// average glyph advance. Real shaping is out of scope; the approximation is
// stable, monotonic in length, and sufficient for geometry queries.
func (h *Handle) AdvanceForText(text string) geom.Au {
	var total geom.Au
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' {
			total += h.Metrics.SpaceAdvance
		} else {
			total += h.Metrics.AverageAdvance
		}
	}
	return total
}

// newHandle sizes a template. Small caps are rendered fake, by scaling the
// requested size.
func newHandle(tpl *Template, ptSize geom.Au, variant Variant) *Handle {
	actual := ptSize
	if variant == VariantSmallCaps {
		actual = ptSize.ScaleBy(smallCapsScaleFactor)
	}
	em := actual.ToPx()
	return &Handle{
		Identifier:      tpl.Identifier,
		Descriptor:      tpl.Descriptor,
		RequestedPtSize: ptSize,
		ActualPtSize:    actual,
		Variant:         variant,
		Metrics: Metrics{
			Ascent:         geom.FromPx(em * tpl.AscentPerEm),
			Descent:        geom.FromPx(em * tpl.DescentPerEm),
			AverageAdvance: geom.FromPx(em * tpl.AdvancePerEm),
			SpaceAdvance:   geom.FromPx(em * tpl.SpacePerEm),
		},
	}
}

// Group is an ordered list of handles resolved for one style; earlier entries
// are preferred, the last entry is always usable.
type Group struct {
	Fonts []*Handle
}

// First returns the preferred handle of the group.
func (g *Group) First() *Handle {
	return g.Fonts[0]
}
