// internal/script/page.go
//
// Package script holds the script-side half of the layout protocol: the Page
// controller that owns a browsing context's mutable state, decides when a
// reflow must be requested, serializes requests against the context's layout
// task, and answers synchronous geometry queries through the task's RPC
// handle.
package script

import (
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/oksome/servo/internal/compositor"
	"github.com/oksome/servo/internal/dom"
	"github.com/oksome/servo/internal/geom"
	"github.com/oksome/servo/internal/layout/layoutapi"
	"github.com/oksome/servo/internal/msg"
)

// Frame is the immutable pairing of a loaded document with its window. A
// page's frame is replaced wholesale on navigation.
type Frame struct {
	Document *dom.Document
	Window   *dom.Window
}

// Page encapsulates one browsing context and drives its reflow protocol.
//
// A Page may be reachable from several holders at once (its parent's child
// list plus external pipeline registries), but only the script task that owns
// the tree ever touches it. None of its fields are locked; the single-writer
// task affinity is the protection.
type Page struct {
	// ID is the pipeline identifier of this context.
	ID msg.PipelineID

	// SubpageID is set for iframes and nil for top-level contexts.
	SubpageID *msg.SubpageID

	logger *zap.Logger

	// frame is nil until the first document loads.
	frame *Frame

	// layoutChan is the asynchronous dispatch handle to this context's
	// dedicated layout task.
	layoutChan layoutapi.LayoutChan

	// layoutRPC is obtained once at construction and reused for the page's
	// lifetime.
	layoutRPC layoutapi.RPC

	// layoutJoinPort is non-nil exactly while a reflow is outstanding.
	layoutJoinPort <-chan struct{}

	// windowSize is the last known viewport.
	windowSize msg.WindowSizeData

	// lastReflowID correlates a dispatched request with its completion report.
	lastReflowID uint32

	// damaged is true iff content changed since the last dispatched reflow.
	damaged bool

	pendingReflows int
	avoidedReflows int

	url           *url.URL
	nextSubpageID msg.SubpageID

	// resizeEvent holds a viewport change not yet folded into a reflow.
	resizeEvent *msg.WindowSizeData

	// pendingDirtyNodes are nodes to dirty before the next reflow.
	pendingDirtyNodes []*html.Node

	// fragmentName is a pending scroll-to-fragment target, if any.
	fragmentName string

	children []*Page
}

// NewPage provisions the script-side controller for a browsing context. It
// requests the layout task's RPC handle over layoutChan and blocks until the
// handle arrives.
func NewPage(
	id msg.PipelineID,
	subpageID *msg.SubpageID,
	layoutChan layoutapi.LayoutChan,
	windowSize msg.WindowSizeData,
	logger *zap.Logger,
) *Page {
	rpcReply := make(chan layoutapi.RPC, 1)
	layoutChan <- layoutapi.GetRPCMsg{Reply: rpcReply}
	rpc := <-rpcReply

	return &Page{
		ID:         id,
		SubpageID:  subpageID,
		logger:     logger.With(zap.String("component", "script"), zap.Stringer("pipeline_id", id)),
		layoutChan: layoutChan,
		layoutRPC:  rpc,
		windowSize: windowSize,
	}
}

// Frame returns the page's current frame, nil before the first load.
func (p *Page) Frame() *Frame {
	return p.frame
}

// SetFrame installs the frame for a newly loaded document, replacing any
// previous one.
func (p *Page) SetFrame(frame *Frame) {
	p.frame = frame
	if frame != nil {
		p.url = frame.Document.URL()
	}
}

// URL returns the last URL loaded into this context, nil before first load.
func (p *Page) URL() *url.URL {
	return p.url
}

// WindowSize returns the last known viewport.
func (p *Page) WindowSize() msg.WindowSizeData {
	return p.windowSize
}

// SetWindowSize records a new viewport. Callers treat a resize as damage
// before the next flush.
func (p *Page) SetWindowSize(size msg.WindowSizeData) {
	p.windowSize = size
}

// ResizeEvent returns the pending viewport change, if any.
func (p *Page) ResizeEvent() *msg.WindowSizeData {
	return p.resizeEvent
}

// SetResizeEvent stores or clears a pending viewport change.
func (p *Page) SetResizeEvent(size *msg.WindowSizeData) {
	p.resizeEvent = size
}

// FragmentName returns and clears the pending scroll-to-fragment target.
func (p *Page) FragmentName() string {
	name := p.fragmentName
	p.fragmentName = ""
	return name
}

// SetFragmentName records a scroll-to-fragment target for the next display.
func (p *Page) SetFragmentName(name string) {
	p.fragmentName = name
}

// AddDirtyNode queues a node to be dirtied before the next reflow.
func (p *Page) AddDirtyNode(n *html.Node) {
	p.pendingDirtyNodes = append(p.pendingDirtyNodes, n)
}

// TakeDirtyNodes returns and clears the queued dirty nodes.
func (p *Page) TakeDirtyNodes() []*html.Node {
	nodes := p.pendingDirtyNodes
	p.pendingDirtyNodes = nil
	return nodes
}

// NextSubpageID allocates the subpage identifier for a new child iframe.
func (p *Page) NextSubpageID() msg.SubpageID {
	id := p.nextSubpageID
	p.nextSubpageID++
	return id
}

// Damage marks the page's layout as stale. Every DOM mutation path funnels
// through here.
func (p *Page) Damage() {
	p.damaged = true
}

// Damaged reports whether content has changed since the last dispatched
// reflow.
func (p *Page) Damaged() bool {
	return p.damaged
}

// AvoidedReflows returns the count of skipped reflows since the last forced
// one.
func (p *Page) AvoidedReflows() int {
	return p.avoidedReflows
}

// LastReflowID returns the id of the most recently dispatched reflow.
func (p *Page) LastReflowID() uint32 {
	return p.lastReflowID
}

// LayoutChan exposes the dispatch handle, used at teardown to deliver the
// exit message to the layout task.
func (p *Page) LayoutChan() layoutapi.LayoutChan {
	return p.layoutChan
}

// JoinLayout blocks until any previously dispatched reflow for this page has
// signaled completion. Calling it with no reflow outstanding returns
// immediately.
//
// A closed completion channel means the layout task died mid-reflow; layout
// state is then unrecoverable and the owning task is aborted by panic.
func (p *Page) JoinLayout() {
	if p.layoutJoinPort == nil {
		return
	}
	// Clear the field first so a re-entrant caller sees "none outstanding".
	port := p.layoutJoinPort
	p.layoutJoinPort = nil

	select {
	case _, ok := <-port:
		if !ok {
			panic("layout task failed while script was waiting for a result")
		}
	default:
		p.logger.Info("script: waiting on layout")
		if _, ok := <-port; !ok {
			panic("layout task failed while script was waiting for a result")
		}
	}
	p.logger.Debug("script: layout joined")
}

// Reflow requests a new layout run if there is anything to lay out. It joins
// any outstanding reflow, notifies the compositor, dispatches the request,
// and returns without waiting for layout to finish.
//
// With no frame, or a frame whose document has no root element, there is
// nothing to lay out yet and the call is a no-op.
func (p *Page) Reflow(
	goal layoutapi.ReflowGoal,
	scriptChan msg.ScriptControlChan,
	listener compositor.ScriptListener,
	queryType layoutapi.ReflowQueryType,
) {
	if p.frame == nil {
		return
	}
	root := p.frame.Document.DocumentElement()
	if root == nil {
		return
	}

	p.logger.Debug("avoided reflows", zap.Int("count", p.avoidedReflows))
	p.avoidedReflows = 0

	p.logger.Debug("script: performing reflow", zap.Stringer("goal", goal))

	// Join the previous reflow so the new request observes a consistent state.
	p.JoinLayout()

	listener.SetReadyState(p.ID, msg.PerformingLayout)

	// Layout will let us know when it's done. The buffer keeps the layout
	// task from blocking on the signal.
	join := make(chan struct{}, 1)
	p.layoutJoinPort = join

	p.lastReflowID++
	windowSize := p.windowSize
	p.damaged = false

	reflow := &layoutapi.Reflow{
		DocumentRoot:   root,
		URL:            p.url,
		Iframe:         p.SubpageID != nil,
		Goal:           goal,
		WindowSize:     windowSize,
		ScriptChan:     scriptChan,
		ScriptJoinChan: join,
		ID:             p.lastReflowID,
		QueryType:      queryType,
	}

	p.layoutChan <- layoutapi.ReflowMsg{Reflow: reflow}
	p.logger.Debug("script: layout forked", zap.Uint32("reflow_id", p.lastReflowID))
}

// FlushLayout ensures layout is fresh enough to answer query, forcing a
// reflow only when necessary. Damage always forces a display-quality reflow;
// an undamaged page reflows only for geometry queries.
func (p *Page) FlushLayout(query layoutapi.ReflowQueryType) {
	goal := layoutapi.ReflowForDisplay
	force := false
	if p.damaged {
		force = true
	} else {
		switch query.Kind {
		case layoutapi.ContentBoxKind, layoutapi.ContentBoxesKind:
			goal = layoutapi.ReflowForScriptQuery
			force = true
		case layoutapi.NoQuery:
		}
	}

	if !force {
		p.avoidedReflows++
		return
	}
	if p.frame == nil {
		// Damage with nothing loaded: nothing to lay out yet.
		return
	}
	window := p.frame.Window
	p.Reflow(goal, window.ControlChan, window.Compositor, query)
}

// Layout fully synchronizes with the layout task and returns the RPC handle.
// The handle is only valid until the next mutation/reflow cycle; callers must
// not retain it across reflows.
func (p *Page) Layout() layoutapi.RPC {
	p.FlushLayout(layoutapi.ReflowQueryType{})
	p.JoinLayout()
	return p.layoutRPC
}

// ContentBoxQuery returns the union content box of node.
func (p *Page) ContentBoxQuery(node *html.Node) geom.Rect {
	p.FlushLayout(layoutapi.ContentBoxQuery(node))
	p.JoinLayout()
	resp, ok := p.layoutRPC.ContentBox().(layoutapi.ContentBoxResponse)
	if !ok {
		panic("layout returned the wrong response tag to a content box query")
	}
	return resp.Rect
}

// ContentBoxesQuery returns every content box of node.
func (p *Page) ContentBoxesQuery(node *html.Node) []geom.Rect {
	p.FlushLayout(layoutapi.ContentBoxesQuery(node))
	p.JoinLayout()
	resp, ok := p.layoutRPC.ContentBoxes().(layoutapi.ContentBoxesResponse)
	if !ok {
		panic("layout returned the wrong response tag to a content boxes query")
	}
	return resp.Rects
}

// FindFragmentNode resolves a fragment identifier in this page's document.
func (p *Page) FindFragmentNode(fragid string) *html.Node {
	if p.frame == nil {
		return nil
	}
	return p.frame.Document.FindFragmentNode(fragid)
}

// HitTest returns the topmost node under point, or nil. A query failure is
// not an error from the caller's point of view: it is logged and surfaced as
// "no target".
func (p *Page) HitTest(point geom.Point2D) *html.Node {
	root := p.documentRoot()
	if root == nil {
		return nil
	}
	resp, err := p.Layout().HitTest(root, point)
	if err != nil {
		p.logger.Debug("layout query error", zap.Error(err))
		return nil
	}
	hit, ok := resp.(layoutapi.HitTestResponse)
	if !ok {
		panic("layout returned the wrong response tag to a hit test query")
	}
	return hit.Node
}

// NodesUnderMouse returns every node under point, topmost first, or nil.
func (p *Page) NodesUnderMouse(point geom.Point2D) []*html.Node {
	root := p.documentRoot()
	if root == nil {
		return nil
	}
	resp, err := p.Layout().MouseOver(root, point)
	if err != nil {
		p.logger.Debug("layout query error", zap.Error(err))
		return nil
	}
	over, ok := resp.(layoutapi.MouseOverResponse)
	if !ok {
		panic("layout returned the wrong response tag to a mouse over query")
	}
	return over.Nodes
}

func (p *Page) documentRoot() *html.Node {
	if p.frame == nil {
		return nil
	}
	return p.frame.Document.DocumentElement()
}
