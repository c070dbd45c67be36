// internal/layout/box.go
package layout

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/oksome/servo/internal/geom"
	"github.com/oksome/servo/internal/gfx/font"
	"github.com/oksome/servo/internal/msg"
	"github.com/oksome/servo/internal/style"
)

// box is one node of the flow tree. Geometry is stored as the content rect in
// app units; spacing lives in the computed style.
type box struct {
	node     *html.Node
	style    *style.Computed
	text     string
	children []*box

	contentRect geom.Rect
}

// snapshot is the queryable result of one reflow. It is immutable once built,
// so the RPC side can read it under a plain mutex swap.
type snapshot struct {
	root     *box
	byNode   map[*html.Node][]*box
	viewport msg.WindowSizeData
}

// buildSnapshot styles and lays out the tree rooted at root against the given
// viewport. root must be an element node.
func buildSnapshot(root *html.Node, size msg.WindowSizeData, fonts *font.Context) *snapshot {
	s := &snapshot{
		byNode:   make(map[*html.Node][]*box),
		viewport: size,
	}
	s.root = s.buildBox(root, nil)
	if s.root != nil {
		viewportWidth := float64(size.InitialViewport.Width)
		s.layoutBox(s.root, 0, 0, viewportWidth, fonts)
	}
	return s
}

// buildBox constructs the box subtree for n, dropping display:none subtrees
// and whitespace-only text.
func (s *snapshot) buildBox(n *html.Node, parent *style.Computed) *box {
	switch n.Type {
	case html.ElementNode:
		computed := style.Resolve(n, parent)
		if computed.Display == style.DisplayNone {
			return nil
		}
		b := &box{node: n, style: computed}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if cb := s.buildBox(child, computed); cb != nil {
				b.children = append(b.children, cb)
			}
		}
		s.byNode[n] = append(s.byNode[n], b)
		return b

	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text == "" || parent == nil {
			return nil
		}
		b := &box{node: n, style: parent, text: text}
		s.byNode[n] = append(s.byNode[n], b)
		return b

	default:
		return nil
	}
}

// layoutBox positions b's margin box at (x, y) in CSS pixels within a
// containing block of the given width, recursing into children with a simple
// vertical flow. It returns the height the margin box occupies.
func (s *snapshot) layoutBox(b *box, x, y, containingWidth float64, fonts *font.Context) float64 {
	margin := b.style.Margin
	padding := b.style.Padding

	if b.text != "" {
		handle := fonts.LayoutFontGroupForStyle(textStyle(b.style)).First()
		width := handle.AdvanceForText(b.text)
		height := handle.Metrics.LineHeight()
		b.contentRect = geom.Rect{
			X:      geom.FromPx(x),
			Y:      geom.FromPx(y),
			Width:  width,
			Height: height,
		}
		return height.ToPx()
	}

	contentX := x + margin.Left + padding.Left
	contentY := y + margin.Top + padding.Top

	width := b.style.Width
	if width == style.Auto {
		width = containingWidth - margin.Horizontal() - padding.Horizontal()
		if width < 0 {
			width = 0
		}
	}

	cursor := contentY
	for _, child := range b.children {
		cursor += s.layoutBox(child, contentX, cursor, width, fonts)
	}

	height := b.style.Height
	if height == style.Auto {
		height = cursor - contentY
	}

	b.contentRect = geom.Rect{
		X:      geom.FromPx(contentX),
		Y:      geom.FromPx(contentY),
		Width:  geom.FromPx(width),
		Height: geom.FromPx(height),
	}
	return margin.Vertical() + padding.Vertical() + height
}

// textStyle maps a computed style onto the font subsystem's request shape.
func textStyle(c *style.Computed) *font.Style {
	return &font.Style{
		Families: c.FontFamilies,
		Descriptor: font.Descriptor{
			Weight: c.FontWeight,
			Italic: c.Italic,
		},
		PtSize: geom.FromPx(c.FontSizePx),
	}
}

// contentBox returns the union of every box generated for n. Missing nodes
// yield the zero rect.
func (s *snapshot) contentBox(n *html.Node) geom.Rect {
	var union geom.Rect
	for _, b := range s.byNode[n] {
		union = union.Union(b.contentRect)
	}
	return union
}

// contentBoxes returns every box generated for n in layout order.
func (s *snapshot) contentBoxes(n *html.Node) []geom.Rect {
	boxes := s.byNode[n]
	rects := make([]geom.Rect, 0, len(boxes))
	for _, b := range boxes {
		rects = append(rects, b.contentRect)
	}
	return rects
}

// nodesUnder returns the nodes whose content rects contain point, topmost
// (deepest in the flow tree) first.
func (s *snapshot) nodesUnder(point geom.Point2D) []*html.Node {
	if s.root == nil {
		return nil
	}
	var hits []*html.Node
	var walk func(b *box)
	walk = func(b *box) {
		if b.contentRect.Contains(point) {
			hits = append(hits, b.node)
		}
		for _, child := range b.children {
			walk(child)
		}
	}
	walk(s.root)

	// Reverse: deepest boxes paint last, so they hit first.
	for i, j := 0, len(hits)-1; i < j; i, j = i+1, j-1 {
		hits[i], hits[j] = hits[j], hits[i]
	}
	return hits
}

// hitTest returns the topmost node under point, or nil on a miss.
func (s *snapshot) hitTest(point geom.Point2D) *html.Node {
	hits := s.nodesUnder(point)
	if len(hits) == 0 {
		return nil
	}
	return hits[0]
}
