// internal/compositor/compositor.go
package compositor

import (
	"sync"

	"go.uber.org/zap"

	"github.com/oksome/servo/internal/msg"
)

// ScriptListener is the face of the compositor that script-side code sees.
// It receives coarse state transitions and never replies.
type ScriptListener interface {
	// SetReadyState records that the browsing context identified by id has
	// entered the given state.
	SetReadyState(id msg.PipelineID, state msg.ReadyState)
}

// Headless is a ScriptListener that records state transitions instead of
// driving a real compositor. The CLI pipeline and tests use it.
type Headless struct {
	logger *zap.Logger

	mu     sync.Mutex
	states map[msg.PipelineID][]msg.ReadyState
}

// NewHeadless returns a recording compositor listener.
func NewHeadless(logger *zap.Logger) *Headless {
	return &Headless{
		logger: logger.With(zap.String("component", "compositor")),
		states: make(map[msg.PipelineID][]msg.ReadyState),
	}
}

// SetReadyState implements ScriptListener.
func (h *Headless) SetReadyState(id msg.PipelineID, state msg.ReadyState) {
	h.mu.Lock()
	h.states[id] = append(h.states[id], state)
	h.mu.Unlock()
	h.logger.Debug("ready state changed",
		zap.Stringer("pipeline_id", id),
		zap.Stringer("state", state))
}

// States returns a copy of the transitions recorded for id, oldest first.
func (h *Headless) States(id msg.PipelineID) []msg.ReadyState {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]msg.ReadyState, len(h.states[id]))
	copy(out, h.states[id])
	return out
}
