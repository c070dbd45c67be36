// internal/layout/layoutapi/layoutapi.go
//
// Package layoutapi defines the boundary between script-side page controllers
// and their dedicated layout tasks: the one-way message channel, the reflow
// request record, and the blocking RPC handle used for geometry queries.
package layoutapi

import (
	"fmt"
	"net/url"

	"golang.org/x/net/html"

	"github.com/oksome/servo/internal/geom"
	"github.com/oksome/servo/internal/msg"
)

// ReflowGoal states why a reflow was requested. Display reflows must produce
// a full, paintable result; script-query reflows only need enough layout to
// answer the query that forced them.
type ReflowGoal int

const (
	ReflowForDisplay ReflowGoal = iota
	ReflowForScriptQuery
)

func (g ReflowGoal) String() string {
	switch g {
	case ReflowForDisplay:
		return "ReflowForDisplay"
	case ReflowForScriptQuery:
		return "ReflowForScriptQuery"
	default:
		return fmt.Sprintf("ReflowGoal(%d)", int(g))
	}
}

// QueryKind enumerates the geometry queries a reflow can carry.
type QueryKind int

const (
	// NoQuery marks a reflow that answers no script query.
	NoQuery QueryKind = iota
	// ContentBoxKind requests the union content box of one node.
	ContentBoxKind
	// ContentBoxesKind requests every content box of one node.
	ContentBoxesKind
)

// ReflowQueryType pairs a query kind with the node it targets. The zero value
// is NoQuery.
type ReflowQueryType struct {
	Kind QueryKind
	Node *html.Node
}

// ContentBoxQuery builds a single-box query for node.
func ContentBoxQuery(node *html.Node) ReflowQueryType {
	return ReflowQueryType{Kind: ContentBoxKind, Node: node}
}

// ContentBoxesQuery builds a multi-box query for node.
func ContentBoxesQuery(node *html.Node) ReflowQueryType {
	return ReflowQueryType{Kind: ContentBoxesKind, Node: node}
}

// Reflow is the request record a page sends to its layout task. The layout
// task must send exactly one value on ScriptJoinChan once the reflow has
// completed, and report completion on ScriptChan.
type Reflow struct {
	// DocumentRoot is the stable address of the document's root element.
	DocumentRoot *html.Node
	// URL of the document being laid out.
	URL *url.URL
	// Iframe is set when the requesting context is a nested one.
	Iframe bool
	// Goal of this reflow.
	Goal ReflowGoal
	// WindowSize is the viewport to lay out against.
	WindowSize msg.WindowSizeData
	// ScriptChan addresses the script task that owns the requesting page.
	ScriptChan msg.ScriptControlChan
	// ScriptJoinChan receives the completion signal.
	ScriptJoinChan chan<- struct{}
	// ID correlates this request with its completion report.
	ID uint32
	// QueryType is the script query, if any, this reflow must answer.
	QueryType ReflowQueryType
}

// Msg is a message deliverable on a layout task's channel.
type Msg interface {
	isLayoutMsg()
}

// LayoutChan is the send-only, asynchronous handle into one layout task.
type LayoutChan chan<- Msg

// GetRPCMsg asks the layout task for its synchronous query handle. It is sent
// once, at page construction, and answered exactly once.
type GetRPCMsg struct {
	Reply chan<- RPC
}

// ReflowMsg carries a reflow request.
type ReflowMsg struct {
	Reflow *Reflow
}

// ExitMsg asks the layout task to shut down.
type ExitMsg struct{}

func (GetRPCMsg) isLayoutMsg() {}
func (ReflowMsg) isLayoutMsg() {}
func (ExitMsg) isLayoutMsg()   {}

// QueryResponse is a tagged reply to a synchronous layout query. Callers
// assert the concrete tag they issued the request for; any other tag is a
// contract violation.
type QueryResponse interface {
	isQueryResponse()
}

// ContentBoxResponse answers a ContentBoxKind query.
type ContentBoxResponse struct {
	Rect geom.Rect
}

// ContentBoxesResponse answers a ContentBoxesKind query.
type ContentBoxesResponse struct {
	Rects []geom.Rect
}

// HitTestResponse carries the topmost node found under a point.
type HitTestResponse struct {
	Node *html.Node
}

// MouseOverResponse carries every node under a point, topmost first.
type MouseOverResponse struct {
	Nodes []*html.Node
}

func (ContentBoxResponse) isQueryResponse()   {}
func (ContentBoxesResponse) isQueryResponse() {}
func (HitTestResponse) isQueryResponse()      {}
func (MouseOverResponse) isQueryResponse()    {}

// RPC is the reusable blocking query handle into one layout task. Content box
// results reflect the most recent reflow that carried the matching query;
// callers serialize RPC calls against outstanding reflows via the page's
// flush/join discipline.
type RPC interface {
	// ContentBox returns the result of the last ContentBoxKind reflow query.
	ContentBox() QueryResponse
	// ContentBoxes returns the result of the last ContentBoxesKind reflow query.
	ContentBoxes() QueryResponse
	// HitTest finds the topmost node under point in the tree rooted at root.
	// A miss is reported as an error, not an empty response.
	HitTest(root *html.Node, point geom.Point2D) (QueryResponse, error)
	// MouseOver finds every node under point, topmost first.
	MouseOver(root *html.Node, point geom.Point2D) (QueryResponse, error)
}
