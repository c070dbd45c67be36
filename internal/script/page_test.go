// internal/script/page_test.go
package script_test

import (
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/oksome/servo/internal/compositor"
	"github.com/oksome/servo/internal/dom"
	"github.com/oksome/servo/internal/geom"
	"github.com/oksome/servo/internal/layout/layoutapi"
	"github.com/oksome/servo/internal/msg"
	"github.com/oksome/servo/internal/script"
)

const testHTML = `<html><body><div id="box" style="width:100px;height:50px"></div></body></html>`

// -- Stub layout worker --

type joinMode int

const (
	// joinSignal completes every reflow immediately.
	joinSignal joinMode = iota
	// joinClose closes the completion channel without sending, simulating a
	// layout task crash mid-reflow.
	joinClose
	// joinManual leaves completion to the test.
	joinManual
)

// stubLayout services a page's layout channel from its own goroutine the way
// a real layout task would, recording every reflow request it receives.
type stubLayout struct {
	ch   chan layoutapi.Msg
	rpc  layoutapi.RPC
	mode joinMode

	mu      sync.Mutex
	reflows []*layoutapi.Reflow
	joins   []chan<- struct{}
}

func newStubLayout(t *testing.T, rpc layoutapi.RPC, mode joinMode) *stubLayout {
	t.Helper()
	s := &stubLayout{
		ch:   make(chan layoutapi.Msg, 16),
		rpc:  rpc,
		mode: mode,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for m := range s.ch {
			switch m := m.(type) {
			case layoutapi.GetRPCMsg:
				m.Reply <- s.rpc
			case layoutapi.ReflowMsg:
				s.mu.Lock()
				s.reflows = append(s.reflows, m.Reflow)
				s.joins = append(s.joins, m.Reflow.ScriptJoinChan)
				s.mu.Unlock()
				switch s.mode {
				case joinSignal:
					m.Reflow.ScriptJoinChan <- struct{}{}
				case joinClose:
					close(m.Reflow.ScriptJoinChan)
				case joinManual:
				}
			case layoutapi.ExitMsg:
				return
			}
		}
	}()
	t.Cleanup(func() {
		s.ch <- layoutapi.ExitMsg{}
		<-done
	})
	return s
}

func (s *stubLayout) Chan() layoutapi.LayoutChan {
	return s.ch
}

func (s *stubLayout) reflowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reflows)
}

func (s *stubLayout) lastReflow() *layoutapi.Reflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reflows) == 0 {
		return nil
	}
	return s.reflows[len(s.reflows)-1]
}

// signalLast completes the most recent outstanding reflow.
func (s *stubLayout) signalLast() {
	s.mu.Lock()
	join := s.joins[len(s.joins)-1]
	s.mu.Unlock()
	join <- struct{}{}
}

// -- Stub RPC handle --

type stubRPC struct {
	contentBox   layoutapi.QueryResponse
	contentBoxes layoutapi.QueryResponse
	hitTest      layoutapi.QueryResponse
	hitErr       error
	mouseOver    layoutapi.QueryResponse
	mouseErr     error

	mu       sync.Mutex
	hitCalls int
}

func (r *stubRPC) ContentBox() layoutapi.QueryResponse   { return r.contentBox }
func (r *stubRPC) ContentBoxes() layoutapi.QueryResponse { return r.contentBoxes }
func (r *stubRPC) HitTest(root *html.Node, point geom.Point2D) (layoutapi.QueryResponse, error) {
	r.mu.Lock()
	r.hitCalls++
	r.mu.Unlock()
	return r.hitTest, r.hitErr
}
func (r *stubRPC) MouseOver(root *html.Node, point geom.Point2D) (layoutapi.QueryResponse, error) {
	return r.mouseOver, r.mouseErr
}

func (r *stubRPC) hitTestCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hitCalls
}

// -- Helpers --

func testWindowSize() msg.WindowSizeData {
	return msg.WindowSizeData{
		InitialViewport:  geom.Size2D{Width: 800, Height: 600},
		DevicePixelRatio: 1,
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

// newTestPage builds a page wired to stub. With withFrame, a small document
// and a window (control channel + recording compositor) are installed.
func newTestPage(t *testing.T, stub *stubLayout, withFrame bool) (*script.Page, *compositor.Headless) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	page := script.NewPage(1, nil, stub.Chan(), testWindowSize(), logger)
	comp := compositor.NewHeadless(logger)
	if withFrame {
		doc, err := dom.ParseDocumentString(testHTML, mustURL(t, "http://example.com/"))
		require.NoError(t, err)
		control := make(chan msg.ScriptMsg, 16)
		page.SetFrame(&script.Frame{
			Document: doc,
			Window:   dom.NewWindow(control, comp),
		})
	}
	return page, comp
}

// newTreePage builds a bare page (no frame) for tree structure tests.
func newTreePage(t *testing.T, stub *stubLayout, id msg.PipelineID) *script.Page {
	t.Helper()
	return script.NewPage(id, nil, stub.Chan(), testWindowSize(), zap.NewNop())
}

func boxNode(t *testing.T, page *script.Page) *html.Node {
	t.Helper()
	n := page.Frame().Document.FindOne("//*[@id='box']")
	require.NotNil(t, n)
	return n
}

// -- Flush policy --

func TestFlushLayoutSkipsWhenCleanAndNoQuery(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	page, _ := newTestPage(t, stub, true)

	page.FlushLayout(layoutapi.ReflowQueryType{})

	assert.Equal(t, 0, stub.reflowCount(), "clean page with no query must not reflow")
	assert.Equal(t, 1, page.AvoidedReflows())
}

func TestFlushLayoutDamagedForcesDisplayReflow(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	page, _ := newTestPage(t, stub, true)

	page.Damage()
	// Damage wins over the query kind: the goal is still ForDisplay.
	page.FlushLayout(layoutapi.ContentBoxQuery(boxNode(t, page)))
	page.JoinLayout()

	require.Equal(t, 1, stub.reflowCount())
	assert.Equal(t, layoutapi.ReflowForDisplay, stub.lastReflow().Goal)
	assert.False(t, page.Damaged())
}

func TestFlushLayoutGeometryQueryForcesScriptQueryReflow(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	page, _ := newTestPage(t, stub, true)

	page.FlushLayout(layoutapi.ContentBoxQuery(boxNode(t, page)))
	page.JoinLayout()

	require.Equal(t, 1, stub.reflowCount())
	reflow := stub.lastReflow()
	assert.Equal(t, layoutapi.ReflowForScriptQuery, reflow.Goal)
	assert.Equal(t, layoutapi.ContentBoxKind, reflow.QueryType.Kind)
}

// -- Reflow dispatch --

func TestReflowDispatchesAndClearsDamage(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	page, comp := newTestPage(t, stub, true)

	page.Damage()
	control := make(chan msg.ScriptMsg, 16)
	page.Reflow(layoutapi.ReflowForDisplay, control, comp, layoutapi.ReflowQueryType{})
	page.JoinLayout()

	require.Equal(t, 1, stub.reflowCount())
	reflow := stub.lastReflow()
	assert.False(t, page.Damaged(), "damage is cleared at dispatch")
	assert.Equal(t, uint32(1), reflow.ID)
	assert.Equal(t, uint32(1), page.LastReflowID())
	assert.False(t, reflow.Iframe)
	assert.Equal(t, testWindowSize(), reflow.WindowSize)
	assert.Equal(t, "http://example.com/", reflow.URL.String())
	assert.Equal(t, []msg.ReadyState{msg.PerformingLayout}, comp.States(page.ID))
}

func TestReflowWithoutFrameIsNoop(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	page, comp := newTestPage(t, stub, false)

	control := make(chan msg.ScriptMsg, 16)
	page.Reflow(layoutapi.ReflowForDisplay, control, comp, layoutapi.ReflowQueryType{})

	assert.Equal(t, 0, stub.reflowCount())
	assert.Empty(t, comp.States(page.ID))
	assert.Equal(t, uint32(0), page.LastReflowID())
}

func TestReflowSerializesAgainstOutstandingRequest(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinManual)
	page, comp := newTestPage(t, stub, true)
	control := make(chan msg.ScriptMsg, 16)

	page.Reflow(layoutapi.ReflowForDisplay, control, comp, layoutapi.ReflowQueryType{})
	require.Equal(t, 1, stub.reflowCount())

	// The second reflow must first join the outstanding one; complete it from
	// another goroutine so the join can proceed.
	go func() {
		time.Sleep(10 * time.Millisecond)
		stub.signalLast()
	}()
	page.Reflow(layoutapi.ReflowForDisplay, control, comp, layoutapi.ReflowQueryType{})

	assert.Equal(t, 2, stub.reflowCount())
	assert.Equal(t, uint32(2), page.LastReflowID())

	stub.signalLast()
	page.JoinLayout()
}

// -- Join barrier --

func TestJoinLayoutIsIdempotent(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	page, comp := newTestPage(t, stub, true)
	control := make(chan msg.ScriptMsg, 16)

	page.Reflow(layoutapi.ReflowForDisplay, control, comp, layoutapi.ReflowQueryType{})

	page.JoinLayout()
	// No outstanding handle now; the second call must return immediately.
	page.JoinLayout()
}

func TestJoinLayoutBlocksUntilCompletion(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinManual)
	page, comp := newTestPage(t, stub, true)
	control := make(chan msg.ScriptMsg, 16)

	page.Reflow(layoutapi.ReflowForDisplay, control, comp, layoutapi.ReflowQueryType{})

	go func() {
		time.Sleep(10 * time.Millisecond)
		stub.signalLast()
	}()
	page.JoinLayout()
}

func TestJoinLayoutPanicsOnDisconnect(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinClose)
	page, comp := newTestPage(t, stub, true)
	control := make(chan msg.ScriptMsg, 16)

	page.Reflow(layoutapi.ReflowForDisplay, control, comp, layoutapi.ReflowQueryType{})

	// Give the stub time to close the channel before we join.
	time.Sleep(10 * time.Millisecond)
	assert.Panics(t, func() {
		page.JoinLayout()
	}, "a closed completion channel means the layout task died mid-reflow")
}

// -- Synchronous queries --

func TestContentBoxQuery(t *testing.T) {
	want := geom.Rect{X: geom.FromPx(8), Y: geom.FromPx(8), Width: geom.FromPx(100), Height: geom.FromPx(50)}
	stub := newStubLayout(t, &stubRPC{contentBox: layoutapi.ContentBoxResponse{Rect: want}}, joinSignal)
	page, _ := newTestPage(t, stub, true)

	got := page.ContentBoxQuery(boxNode(t, page))

	assert.Equal(t, want, got)
	require.Equal(t, 1, stub.reflowCount())
	assert.Equal(t, layoutapi.ReflowForScriptQuery, stub.lastReflow().Goal)
}

func TestContentBoxesQuery(t *testing.T) {
	want := []geom.Rect{
		{X: 0, Y: 0, Width: 600, Height: 600},
		{X: 0, Y: 600, Width: 300, Height: 600},
	}
	stub := newStubLayout(t, &stubRPC{contentBoxes: layoutapi.ContentBoxesResponse{Rects: want}}, joinSignal)
	page, _ := newTestPage(t, stub, true)

	got := page.ContentBoxesQuery(boxNode(t, page))

	assert.Equal(t, want, got)
	assert.Equal(t, layoutapi.ContentBoxesKind, stub.lastReflow().QueryType.Kind)
}

func TestContentBoxQueryPanicsOnWrongResponseTag(t *testing.T) {
	// An RPC handle that answers a content box query with a hit test response
	// violates the protocol contract.
	stub := newStubLayout(t, &stubRPC{contentBox: layoutapi.HitTestResponse{}}, joinSignal)
	page, _ := newTestPage(t, stub, true)

	assert.Panics(t, func() {
		page.ContentBoxQuery(boxNode(t, page))
	})
}

func TestHitTestReturnsNode(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	page, _ := newTestPage(t, stub, true)
	target := boxNode(t, page)
	stub.rpc.(*stubRPC).hitTest = layoutapi.HitTestResponse{Node: target}

	hit := page.HitTest(geom.Point2D{X: 20, Y: 20})

	assert.Same(t, target, hit)
}

func TestHitTestMissIsNotFatal(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{hitErr: assert.AnError}, joinSignal)
	page, _ := newTestPage(t, stub, true)

	assert.Nil(t, page.HitTest(geom.Point2D{X: 9999, Y: 9999}))
}

func TestHitTestWithoutFrame(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	page, _ := newTestPage(t, stub, false)

	assert.Nil(t, page.HitTest(geom.Point2D{X: 1, Y: 1}))
	assert.Equal(t, 0, stub.reflowCount())
}

func TestNodesUnderMouse(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	page, _ := newTestPage(t, stub, true)
	target := boxNode(t, page)
	stub.rpc.(*stubRPC).mouseOver = layoutapi.MouseOverResponse{Nodes: []*html.Node{target}}

	nodes := page.NodesUnderMouse(geom.Point2D{X: 20, Y: 20})

	require.Len(t, nodes, 1)
	assert.Same(t, target, nodes[0])
}

func TestNodesUnderMouseMiss(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{mouseErr: assert.AnError}, joinSignal)
	page, _ := newTestPage(t, stub, true)

	assert.Nil(t, page.NodesUnderMouse(geom.Point2D{X: 0, Y: 0}))
}

// -- Page tree --

func TestIterateOrder(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)

	// Root R with children [A, B]; A is a leaf, B has one child C.
	r := newTreePage(t, stub, 1)
	a := newTreePage(t, stub, 2)
	b := newTreePage(t, stub, 3)
	c := newTreePage(t, stub, 4)
	r.AddChild(a)
	r.AddChild(b)
	b.AddChild(c)

	var order []msg.PipelineID
	it := r.Iter()
	for page := it.Next(); page != nil; page = it.Next() {
		order = append(order, page.ID)
	}

	// LIFO traversal: root, then the last-stored child's subtree first.
	assert.Equal(t, []msg.PipelineID{1, 3, 4, 2}, order)
	assert.Nil(t, it.Next(), "iterator is finite and stays exhausted")
}

func TestFind(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	r := newTreePage(t, stub, 1)
	a := newTreePage(t, stub, 2)
	b := newTreePage(t, stub, 3)
	c := newTreePage(t, stub, 4)
	r.AddChild(a)
	r.AddChild(b)
	b.AddChild(c)

	assert.Same(t, r, r.Find(1))
	assert.Same(t, c, r.Find(4))
	assert.Nil(t, r.Find(99))
}

func TestRemove(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	r := newTreePage(t, stub, 1)
	a := newTreePage(t, stub, 2)
	b := newTreePage(t, stub, 3)
	c := newTreePage(t, stub, 4)
	r.AddChild(a)
	r.AddChild(b)
	b.AddChild(c)

	// Remove never detaches the receiver itself, even on an id match.
	assert.Nil(t, r.Remove(1))

	// Removing a nested leaf shrinks its parent's child list by one.
	removed := r.Remove(4)
	require.NotNil(t, removed)
	assert.Same(t, c, removed)
	assert.Empty(t, b.Children())

	// An absent id leaves the tree untouched.
	assert.Nil(t, r.Remove(99))
	assert.Len(t, r.Children(), 2)
}

func TestNextSubpageID(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	page := newTreePage(t, stub, 1)

	assert.Equal(t, msg.SubpageID(0), page.NextSubpageID())
	assert.Equal(t, msg.SubpageID(1), page.NextSubpageID())
}
