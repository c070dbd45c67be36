// internal/style/style.go
//
// Package style computes the small slice of CSS that layout consumes: display
// type, box sizing, spacing, and font properties. Values come from per-tag
// defaults overridden by the element's style attribute. Full selector
// matching is deliberately out of scope.
package style

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Display is the layout mode of a styled node.
type Display int

const (
	DisplayBlock Display = iota
	DisplayInline
	DisplayNone
)

// Auto marks an unspecified length.
const Auto = -1.0

// Edges holds per-side lengths in CSS pixels.
type Edges struct {
	Top, Right, Bottom, Left float64
}

// Sum of the horizontal edges.
func (e Edges) Horizontal() float64 { return e.Left + e.Right }

// Sum of the vertical edges.
func (e Edges) Vertical() float64 { return e.Top + e.Bottom }

// Computed is the resolved style for one node.
type Computed struct {
	Display Display

	// Width and Height are in CSS pixels; Auto when unspecified.
	Width, Height float64

	Margin  Edges
	Padding Edges

	FontFamilies []string
	FontSizePx   float64
	FontWeight   int
	Italic       bool
}

const defaultFontSizePx = 16.0

// noneTags never generate boxes.
var noneTags = map[string]bool{
	"head": true, "script": true, "style": true, "meta": true,
	"link": true, "title": true, "base": true, "noscript": true,
}

// inlineTags lay out inline; everything else defaults to block.
var inlineTags = map[string]bool{
	"a": true, "span": true, "b": true, "i": true, "em": true,
	"strong": true, "small": true, "code": true, "u": true, "s": true,
	"sub": true, "sup": true, "label": true, "abbr": true,
}

// Resolve computes the style for an element node given its parent's computed
// style (nil at the root). Inheritable font properties flow from the parent;
// box properties come from tag defaults and the style attribute.
func Resolve(n *html.Node, parent *Computed) *Computed {
	c := &Computed{
		Display:      DisplayBlock,
		Width:        Auto,
		Height:       Auto,
		FontFamilies: []string{"serif"},
		FontSizePx:   defaultFontSizePx,
		FontWeight:   400,
	}
	if parent != nil {
		c.FontFamilies = parent.FontFamilies
		c.FontSizePx = parent.FontSizePx
		c.FontWeight = parent.FontWeight
		c.Italic = parent.Italic
	}

	tag := strings.ToLower(n.Data)
	switch {
	case noneTags[tag]:
		c.Display = DisplayNone
	case inlineTags[tag]:
		c.Display = DisplayInline
	}
	switch tag {
	case "body":
		c.Margin = Edges{Top: 8, Right: 8, Bottom: 8, Left: 8}
	case "b", "strong":
		c.FontWeight = 700
	case "i", "em":
		c.Italic = true
	}

	applyStyleAttr(c, styleAttr(n))
	return c
}

func styleAttr(n *html.Node) string {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, "style") {
			return attr.Val
		}
	}
	return ""
}

// applyStyleAttr parses a "prop: value; prop: value" inline style declaration.
// Unknown properties and unparseable values are ignored.
func applyStyleAttr(c *Computed, decl string) {
	for _, item := range strings.Split(decl, ";") {
		prop, value, ok := strings.Cut(item, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.TrimSpace(value)

		switch prop {
		case "display":
			switch strings.ToLower(value) {
			case "block":
				c.Display = DisplayBlock
			case "inline":
				c.Display = DisplayInline
			case "none":
				c.Display = DisplayNone
			}
		case "width":
			if px, ok := parsePx(value); ok {
				c.Width = px
			}
		case "height":
			if px, ok := parsePx(value); ok {
				c.Height = px
			}
		case "margin":
			if e, ok := parseEdges(value); ok {
				c.Margin = e
			}
		case "margin-top":
			setEdge(&c.Margin.Top, value)
		case "margin-right":
			setEdge(&c.Margin.Right, value)
		case "margin-bottom":
			setEdge(&c.Margin.Bottom, value)
		case "margin-left":
			setEdge(&c.Margin.Left, value)
		case "padding":
			if e, ok := parseEdges(value); ok {
				c.Padding = e
			}
		case "padding-top":
			setEdge(&c.Padding.Top, value)
		case "padding-right":
			setEdge(&c.Padding.Right, value)
		case "padding-bottom":
			setEdge(&c.Padding.Bottom, value)
		case "padding-left":
			setEdge(&c.Padding.Left, value)
		case "font-size":
			if px, ok := parsePx(value); ok && px > 0 {
				c.FontSizePx = px
			}
		case "font-family":
			c.FontFamilies = parseFamilies(value)
		case "font-weight":
			if w, err := strconv.Atoi(value); err == nil {
				c.FontWeight = w
			} else if strings.EqualFold(value, "bold") {
				c.FontWeight = 700
			}
		case "font-style":
			c.Italic = strings.EqualFold(value, "italic")
		}
	}
}

func setEdge(dst *float64, value string) {
	if px, ok := parsePx(value); ok {
		*dst = px
	}
}

// parsePx accepts "<number>px", "<number>", and "0".
func parsePx(value string) (float64, bool) {
	value = strings.TrimSpace(strings.TrimSuffix(strings.ToLower(value), "px"))
	px, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return px, true
}

// parseEdges expands the 1/2/4-value shorthand.
func parseEdges(value string) (Edges, bool) {
	fields := strings.Fields(value)
	vals := make([]float64, 0, len(fields))
	for _, f := range fields {
		px, ok := parsePx(f)
		if !ok {
			return Edges{}, false
		}
		vals = append(vals, px)
	}
	switch len(vals) {
	case 1:
		return Edges{vals[0], vals[0], vals[0], vals[0]}, true
	case 2:
		return Edges{vals[0], vals[1], vals[0], vals[1]}, true
	case 4:
		return Edges{vals[0], vals[1], vals[2], vals[3]}, true
	default:
		return Edges{}, false
	}
}

func parseFamilies(value string) []string {
	var out []string
	for _, f := range strings.Split(value, ",") {
		f = strings.Trim(strings.TrimSpace(f), `'"`)
		if f != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return []string{"serif"}
	}
	return out
}
