// internal/script/task_test.go
package script_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/oksome/servo/internal/geom"
	"github.com/oksome/servo/internal/layout/layoutapi"
	"github.com/oksome/servo/internal/msg"
	"github.com/oksome/servo/internal/script"
)

// startTask runs the event loop for page and returns the running task. The
// loop is shut down and drained when the test finishes.
func startTask(t *testing.T, page *script.Page, listener *recordingListener) *script.Task {
	t.Helper()
	task := script.NewTask(page, listener, zaptest.NewLogger(t),
		script.WithResizeInterval(2*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		done <- task.Run(context.Background())
	}()
	t.Cleanup(func() {
		task.Chan() <- msg.ExitMsg{}
		require.NoError(t, <-done)
	})
	return task
}

// recordingListener adapts the headless compositor shape without depending on
// its logger plumbing; the task tests only need the transition log.
type recordingListener struct {
	ch chan msg.ReadyState
}

func newRecordingListener() *recordingListener {
	return &recordingListener{ch: make(chan msg.ReadyState, 32)}
}

func (r *recordingListener) SetReadyState(id msg.PipelineID, state msg.ReadyState) {
	r.ch <- state
}

func (r *recordingListener) next(t *testing.T) msg.ReadyState {
	t.Helper()
	select {
	case s := <-r.ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a ready state transition")
		return 0
	}
}

func TestTaskResizeTriggersDisplayReflow(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	page, _ := newTestPage(t, stub, true)
	listener := newRecordingListener()
	task := startTask(t, page, listener)

	newSize := msg.WindowSizeData{
		InitialViewport:  geom.Size2D{Width: 1024, Height: 768},
		DevicePixelRatio: 1,
	}
	task.Chan() <- msg.ResizeMsg{PipelineID: 1, NewSize: newSize}

	assert.Equal(t, msg.PerformingLayout, listener.next(t))
	assert.Eventually(t, func() bool {
		return stub.reflowCount() == 1
	}, time.Second, time.Millisecond)

	reflow := stub.lastReflow()
	assert.Equal(t, layoutapi.ReflowForDisplay, reflow.Goal)
	assert.Equal(t, newSize, reflow.WindowSize, "reflow observes the resized viewport")
}

func TestTaskCoalescesRapidResizes(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	page, _ := newTestPage(t, stub, true)
	listener := newRecordingListener()
	task := startTask(t, page, listener)

	// A burst of resizes well inside the coalescing interval.
	for w := 100; w < 120; w++ {
		task.Chan() <- msg.ResizeMsg{
			PipelineID: 1,
			NewSize: msg.WindowSizeData{
				InitialViewport:  geom.Size2D{Width: float32(w), Height: 600},
				DevicePixelRatio: 1,
			},
		}
	}

	// Every burst member is folded into at most a couple of reflows, and the
	// final one observes the last size.
	assert.Eventually(t, func() bool {
		r := stub.lastReflow()
		return r != nil && r.WindowSize.InitialViewport.Width == 119
	}, time.Second, time.Millisecond)
	assert.Less(t, stub.reflowCount(), 20, "burst resizes must be coalesced")
}

func TestTaskReflowCompleteReportsFinishedLoading(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	page, _ := newTestPage(t, stub, true)
	listener := newRecordingListener()
	task := startTask(t, page, listener)

	task.Chan() <- msg.ResizeMsg{PipelineID: 1, NewSize: testWindowSize()}
	assert.Equal(t, msg.PerformingLayout, listener.next(t))

	// The layout stub does not report completion itself; deliver the report
	// for the dispatched reflow as the layout task would.
	task.Chan() <- msg.ReflowCompleteMsg{PipelineID: 1, ReflowID: 1}
	assert.Equal(t, msg.FinishedLoading, listener.next(t))
}

func TestTaskStaleReflowCompleteIgnored(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	page, _ := newTestPage(t, stub, true)
	listener := newRecordingListener()
	task := startTask(t, page, listener)

	task.Chan() <- msg.ResizeMsg{PipelineID: 1, NewSize: testWindowSize()}
	assert.Equal(t, msg.PerformingLayout, listener.next(t))

	// A completion report for a reflow id that is no longer the latest one
	// must not flip the ready state.
	task.Chan() <- msg.ReflowCompleteMsg{PipelineID: 1, ReflowID: 99}

	select {
	case s := <-listener.ch:
		t.Fatalf("unexpected ready state transition %v", s)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTaskClickHitTests(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	page, _ := newTestPage(t, stub, true)
	stub.rpc.(*stubRPC).hitTest = layoutapi.HitTestResponse{Node: boxNode(t, page)}
	listener := newRecordingListener()
	task := startTask(t, page, listener)

	task.Chan() <- msg.ClickMsg{PipelineID: 1, Point: geom.Point2D{X: 20, Y: 20}}

	// The click path synchronizes with layout, then issues the hit test RPC.
	rpc := stub.rpc.(*stubRPC)
	assert.Eventually(t, func() bool {
		return rpc.hitTestCalls() == 1
	}, time.Second, time.Millisecond)
}

func TestTaskResizeForUnknownPipeline(t *testing.T) {
	stub := newStubLayout(t, &stubRPC{}, joinSignal)
	page, _ := newTestPage(t, stub, true)
	listener := newRecordingListener()
	task := startTask(t, page, listener)

	task.Chan() <- msg.ResizeMsg{PipelineID: 42, NewSize: testWindowSize()}

	select {
	case s := <-listener.ch:
		t.Fatalf("unexpected ready state transition %v", s)
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, 0, stub.reflowCount())
}
