// internal/layout/task.go
//
// Package layout implements the per-context layout task: a goroutine that
// consumes reflow requests from a script-side page, maintains the current
// flow-tree snapshot, and answers synchronous geometry queries through the
// RPC handle it hands out at startup.
package layout

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oksome/servo/internal/geom"
	"github.com/oksome/servo/internal/gfx/font"
	"github.com/oksome/servo/internal/layout/layoutapi"
	"github.com/oksome/servo/internal/msg"
	"golang.org/x/net/html"
)

var (
	// errNoLayout is returned by point queries issued before any reflow.
	errNoLayout = errors.New("layout: no flow tree has been constructed yet")
	// errMiss is returned when no box contains the queried point.
	errMiss = errors.New("layout: no node at the given point")
)

// Task is one browsing context's dedicated layout worker.
type Task struct {
	id     msg.PipelineID
	logger *zap.Logger
	fonts  *font.Context
	ch     chan layoutapi.Msg
	rpc    *taskRPC
}

// NewTask constructs a layout task for the given pipeline. Call Run (usually
// on its own goroutine) to start servicing the channel returned by Chan.
func NewTask(id msg.PipelineID, resolver font.Resolver, logger *zap.Logger) *Task {
	return &Task{
		id: id,
		logger: logger.With(
			zap.String("component", "layout"),
			zap.Stringer("pipeline_id", id),
			zap.String("task_id", uuid.NewString()),
		),
		fonts: font.NewContext(resolver),
		ch:    make(chan layoutapi.Msg, 16),
		rpc:   &taskRPC{},
	}
}

// Chan returns the send-only handle scripts use to reach this task.
func (t *Task) Chan() layoutapi.LayoutChan {
	return t.ch
}

// Run services messages until an ExitMsg arrives or the channel is closed.
func (t *Task) Run() error {
	t.logger.Debug("layout task started")
	for m := range t.ch {
		switch m := m.(type) {
		case layoutapi.GetRPCMsg:
			m.Reply <- t.rpc
		case layoutapi.ReflowMsg:
			t.handleReflow(m.Reflow)
		case layoutapi.ExitMsg:
			t.logger.Debug("layout task exiting")
			return nil
		}
	}
	return nil
}

// handleReflow rebuilds the flow tree, publishes the snapshot for RPC
// consumers, reports completion to the owning script task, and finally
// signals the join channel.
func (t *Task) handleReflow(r *layoutapi.Reflow) {
	t.logger.Debug("performing reflow",
		zap.Uint32("reflow_id", r.ID),
		zap.Stringer("goal", r.Goal),
		zap.Bool("iframe", r.Iframe))

	snap := buildSnapshot(r.DocumentRoot, r.WindowSize, t.fonts)
	t.rpc.publish(snap, r.QueryType)

	if r.ScriptChan != nil {
		// The control channel is buffered by the script task; a full channel
		// must not stall the join signal below.
		select {
		case r.ScriptChan <- msg.ReflowCompleteMsg{PipelineID: t.id, ReflowID: r.ID}:
		default:
			t.logger.Warn("script control channel full; dropping reflow completion report",
				zap.Uint32("reflow_id", r.ID))
		}
	}

	r.ScriptJoinChan <- struct{}{}
}

// taskRPC implements layoutapi.RPC over the task's latest snapshot. The
// mutex only guards the snapshot swap; correctness of returned geometry is
// enforced by the caller's flush/join discipline.
type taskRPC struct {
	mu           sync.Mutex
	snap         *snapshot
	contentBox   layoutapi.ContentBoxResponse
	contentBoxes layoutapi.ContentBoxesResponse
}

// publish installs a fresh snapshot and precomputes the answer to the query
// the reflow carried, if any.
func (r *taskRPC) publish(snap *snapshot, query layoutapi.ReflowQueryType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap = snap
	switch query.Kind {
	case layoutapi.ContentBoxKind:
		r.contentBox = layoutapi.ContentBoxResponse{Rect: snap.contentBox(query.Node)}
	case layoutapi.ContentBoxesKind:
		r.contentBoxes = layoutapi.ContentBoxesResponse{Rects: snap.contentBoxes(query.Node)}
	}
}

// ContentBox implements layoutapi.RPC.
func (r *taskRPC) ContentBox() layoutapi.QueryResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contentBox
}

// ContentBoxes implements layoutapi.RPC.
func (r *taskRPC) ContentBoxes() layoutapi.QueryResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contentBoxes
}

// HitTest implements layoutapi.RPC.
func (r *taskRPC) HitTest(root *html.Node, point geom.Point2D) (layoutapi.QueryResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap == nil {
		return nil, errNoLayout
	}
	node := r.snap.hitTest(point)
	if node == nil {
		return nil, errMiss
	}
	return layoutapi.HitTestResponse{Node: node}, nil
}

// MouseOver implements layoutapi.RPC.
func (r *taskRPC) MouseOver(root *html.Node, point geom.Point2D) (layoutapi.QueryResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap == nil {
		return nil, errNoLayout
	}
	nodes := r.snap.nodesUnder(point)
	if len(nodes) == 0 {
		return nil, errMiss
	}
	return layoutapi.MouseOverResponse{Nodes: nodes}, nil
}
