// internal/msg/msg.go
package msg

import (
	"fmt"

	"github.com/oksome/servo/internal/geom"
)

// PipelineID uniquely identifies one browsing context (a top level page or an
// iframe) across its script, layout, and compositor components.
type PipelineID uint32

func (id PipelineID) String() string {
	return fmt.Sprintf("pipeline(%d)", uint32(id))
}

// SubpageID identifies a nested browsing context within its parent. Only
// iframes carry one.
type SubpageID uint32

// WindowSizeData describes the viewport a layout run should target.
type WindowSizeData struct {
	// InitialViewport is the viewport size in CSS pixels.
	InitialViewport geom.Size2D

	// DevicePixelRatio converts CSS pixels to device pixels.
	DevicePixelRatio float32
}

// ReadyState is the coarse loading state a browsing context reports to the
// compositor.
type ReadyState int

const (
	// Loading indicates the context has started loading a document.
	Loading ReadyState = iota
	// PerformingLayout indicates a reflow has been dispatched and layout is
	// (or is about to be) running.
	PerformingLayout
	// FinishedLoading indicates the most recent reflow has completed.
	FinishedLoading
)

func (s ReadyState) String() string {
	switch s {
	case Loading:
		return "Loading"
	case PerformingLayout:
		return "PerformingLayout"
	case FinishedLoading:
		return "FinishedLoading"
	default:
		return fmt.Sprintf("ReadyState(%d)", int(s))
	}
}

// ScriptMsg is a control message delivered to a script task.
type ScriptMsg interface {
	isScriptMsg()
}

// ScriptControlChan is the send-only handle other components use to post
// control messages back to the script task that owns a page tree.
type ScriptControlChan chan<- ScriptMsg

// ReflowCompleteMsg is sent by a layout task when it finishes the reflow
// identified by ReflowID.
type ReflowCompleteMsg struct {
	PipelineID PipelineID
	ReflowID   uint32
}

// ResizeMsg reports a new viewport size for a browsing context.
type ResizeMsg struct {
	PipelineID PipelineID
	NewSize    WindowSizeData
}

// ClickMsg reports a pointer click at a viewport position.
type ClickMsg struct {
	PipelineID PipelineID
	Point      geom.Point2D
}

// ExitMsg asks the script task to shut down its page tree and return.
type ExitMsg struct{}

func (ReflowCompleteMsg) isScriptMsg() {}
func (ResizeMsg) isScriptMsg()         {}
func (ClickMsg) isScriptMsg()          {}
func (ExitMsg) isScriptMsg()           {}
