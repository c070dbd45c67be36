// internal/script/task.go
package script

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/oksome/servo/internal/compositor"
	"github.com/oksome/servo/internal/layout/layoutapi"
	"github.com/oksome/servo/internal/msg"
)

// defaultResizeInterval is the minimum spacing between resize-driven display
// reflows. Resizes arriving faster than this are coalesced.
const defaultResizeInterval = 50 * time.Millisecond

// controlChanBuffer sizes the control channel. Layout tasks report reflow
// completion with a non-blocking send, so the buffer must comfortably cover
// the number of concurrently outstanding reflows.
const controlChanBuffer = 64

// Task is the script-side event loop. It exclusively owns a page tree and is
// the only goroutine that mutates it, which is what makes the pages' unlocked
// fields safe.
type Task struct {
	root       *Page
	compositor compositor.ScriptListener
	logger     *zap.Logger
	ch         chan msg.ScriptMsg

	resizeInterval time.Duration
	resizeLimiter  *rate.Limiter
}

// TaskOption configures a Task.
type TaskOption func(*Task)

// WithResizeInterval overrides the resize coalescing interval.
func WithResizeInterval(d time.Duration) TaskOption {
	return func(t *Task) {
		t.resizeInterval = d
	}
}

// NewTask builds the event loop for the tree rooted at root.
func NewTask(root *Page, listener compositor.ScriptListener, logger *zap.Logger, opts ...TaskOption) *Task {
	t := &Task{
		root:           root,
		compositor:     listener,
		logger:         logger.With(zap.String("component", "script_task")),
		ch:             make(chan msg.ScriptMsg, controlChanBuffer),
		resizeInterval: defaultResizeInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.resizeLimiter = rate.NewLimiter(rate.Every(t.resizeInterval), 1)
	return t
}

// Chan returns the control channel other components post events to.
func (t *Task) Chan() msg.ScriptControlChan {
	return t.ch
}

// Root returns the root page of the tree this task owns.
func (t *Task) Root() *Page {
	return t.root
}

// Run processes control messages until an ExitMsg arrives or ctx is
// cancelled. On exit it delivers the exit message to every page's layout
// task.
func (t *Task) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.resizeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.shutdown()
			return ctx.Err()
		case <-ticker.C:
			t.flushPendingResizes()
		case m := <-t.ch:
			switch m := m.(type) {
			case msg.ResizeMsg:
				t.handleResize(m)
			case msg.ClickMsg:
				t.handleClick(m)
			case msg.ReflowCompleteMsg:
				t.handleReflowComplete(m)
			case msg.ExitMsg:
				t.shutdown()
				return nil
			}
			t.flushPendingResizes()
		}
	}
}

// handleResize records the new viewport on the page; the actual reflow is
// issued by flushPendingResizes under the rate limit.
func (t *Task) handleResize(m msg.ResizeMsg) {
	page := t.root.Find(m.PipelineID)
	if page == nil {
		t.logger.Warn("resize for unknown pipeline", zap.Stringer("pipeline_id", m.PipelineID))
		return
	}
	size := m.NewSize
	page.SetResizeEvent(&size)
}

// flushPendingResizes applies pending viewport changes, at most one reflow
// per limiter token. Pages whose turn is rate-limited keep their pending
// event and are retried on the next tick.
func (t *Task) flushPendingResizes() {
	it := t.root.Iter()
	for page := it.Next(); page != nil; page = it.Next() {
		ev := page.ResizeEvent()
		if ev == nil {
			continue
		}
		if !t.resizeLimiter.Allow() {
			return
		}
		page.SetResizeEvent(nil)
		page.SetWindowSize(*ev)
		page.Damage()
		page.FlushLayout(layoutapi.ReflowQueryType{})
	}
}

func (t *Task) handleClick(m msg.ClickMsg) {
	page := t.root.Find(m.PipelineID)
	if page == nil {
		t.logger.Warn("click for unknown pipeline", zap.Stringer("pipeline_id", m.PipelineID))
		return
	}
	node := page.HitTest(m.Point)
	if node == nil {
		t.logger.Debug("click hit nothing",
			zap.Float32("x", m.Point.X), zap.Float32("y", m.Point.Y))
		return
	}
	t.logger.Info("click hit node",
		zap.String("node", node.Data),
		zap.Float32("x", m.Point.X), zap.Float32("y", m.Point.Y))
}

// handleReflowComplete reports FinishedLoading once the most recently
// dispatched reflow for the page has completed. Stale completion reports
// (from an earlier reflow id) are ignored.
func (t *Task) handleReflowComplete(m msg.ReflowCompleteMsg) {
	page := t.root.Find(m.PipelineID)
	if page == nil {
		return
	}
	if m.ReflowID == page.LastReflowID() {
		t.compositor.SetReadyState(page.ID, msg.FinishedLoading)
	}
}

// shutdown asks every page's layout task to exit.
func (t *Task) shutdown() {
	it := t.root.Iter()
	for page := it.Next(); page != nil; page = it.Next() {
		page.LayoutChan() <- layoutapi.ExitMsg{}
	}
	t.logger.Debug("script task exiting")
}
