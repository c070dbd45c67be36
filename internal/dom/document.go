// internal/dom/document.go
package dom

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/oksome/servo/internal/compositor"
	"github.com/oksome/servo/internal/msg"
)

// Document wraps a parsed HTML tree together with the URL it was loaded from.
// Node pointers into the tree are stable for the document's lifetime and are
// used as node addresses by the layout protocol.
type Document struct {
	root *html.Node
	url  *url.URL
}

// ParseDocument parses an HTML document from r.
func ParseDocument(r io.Reader, u *url.URL) (*Document, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing document %q: %w", u, err)
	}
	return &Document{root: root, url: u}, nil
}

// ParseDocumentString parses an HTML document held in memory.
func ParseDocumentString(src string, u *url.URL) (*Document, error) {
	return ParseDocument(strings.NewReader(src), u)
}

// URL returns the document's URL.
func (d *Document) URL() *url.URL {
	return d.url
}

// Node returns the document node itself.
func (d *Document) Node() *html.Node {
	return d.root
}

// DocumentElement returns the root element (normally <html>), or nil for a
// document with no element children.
func (d *Document) DocumentElement() *html.Node {
	for n := d.root.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode {
			return n
		}
	}
	return nil
}

// FindFragmentNode resolves a fragment identifier the way navigation does:
// first an element with a matching id attribute, then an anchor with a
// matching name attribute. Returns nil when nothing matches.
func (d *Document) FindFragmentNode(fragid string) *html.Node {
	if fragid == "" {
		return nil
	}
	if n := htmlquery.FindOne(d.root, fmt.Sprintf("//*[@id=%q]", fragid)); n != nil {
		return n
	}
	return htmlquery.FindOne(d.root, fmt.Sprintf("//a[@name=%q]", fragid))
}

// FindOne runs an XPath query against the document and returns the first
// matching element, or nil.
func (d *Document) FindOne(expr string) *html.Node {
	return htmlquery.FindOne(d.root, expr)
}

// Window is the script-side window object for one frame. It carries the
// handles a page needs when it decides to reflow: the channel back to the
// owning script task and the compositor listener to notify.
type Window struct {
	ControlChan msg.ScriptControlChan
	Compositor  compositor.ScriptListener
}

// NewWindow pairs a script control channel with a compositor listener.
func NewWindow(control msg.ScriptControlChan, listener compositor.ScriptListener) *Window {
	return &Window{ControlChan: control, Compositor: listener}
}
