package session

import (
	"github.com/adragomir/pi.nvim/internal/wire"
	"github.com/adragomir/pi.nvim/pkg/logger"
)

// handleEvent is the subscription callback: it applies one event to the
// session state and requests a render. tool_call and tool_result echoes
// arrive as GenericEvent and are ignored; they duplicate what the
// tool_execution_* and message_* events already deliver.
func (s *Session) handleEvent(evt wire.Event) {
	switch e := evt.(type) {
	case *wire.AgentStartEvent:
		s.mu.Lock()
		s.resetScratchLocked()
		s.turnActive = true
		s.mu.Unlock()

	case *wire.AgentEndEvent:
		// The agent is the source of truth at turn boundaries: its message
		// list replaces the log, local echoes included.
		s.mu.Lock()
		s.messages = append([]wire.Message(nil), e.Messages...)
		s.resetScratchLocked()
		s.turnActive = false
		s.mu.Unlock()

	case *wire.MessageStartEvent:
		s.mu.Lock()
		s.streaming = streamingAssembly{active: true}
		s.mu.Unlock()

	case *wire.MessageUpdateEvent:
		s.applyAssistantEvent(e.AssistantEvent)

	case *wire.MessageEndEvent:
		s.mu.Lock()
		s.streaming.active = false
		s.mu.Unlock()

	case *wire.ToolExecutionStartEvent:
		s.mu.Lock()
		if _, exists := s.tools[e.ToolCallID]; !exists {
			s.toolOrder = append(s.toolOrder, e.ToolCallID)
		}
		s.tools[e.ToolCallID] = &ToolExecution{
			CallID: e.ToolCallID,
			Name:   e.ToolName,
			Args:   e.Args,
			Status: ToolRunning,
		}
		s.mu.Unlock()

	case *wire.ToolExecutionUpdateEvent:
		s.mu.Lock()
		rec := s.tools[e.ToolCallID]
		if rec == nil {
			// The start event was missed; nothing to patch.
			s.mu.Unlock()
			return
		}
		rec.PartialResult = e.PartialResult
		s.mu.Unlock()

	case *wire.ToolExecutionEndEvent:
		s.mu.Lock()
		rec := s.tools[e.ToolCallID]
		if rec == nil {
			s.mu.Unlock()
			return
		}
		rec.Status = ToolDone
		rec.Result = e.Result
		rec.IsError = e.IsError
		s.mu.Unlock()

	default:
		logger.Tracef("[session] ignoring %s event", evt.EventType())
		return
	}

	s.throttle.Request()
}

// applyAssistantEvent folds one nested message_update payload into the
// streaming assembly.
func (s *Session) applyAssistantEvent(e wire.AssistantMessageEvent) {
	s.mu.Lock()
	switch e.Type {
	case wire.AssistantStart:
		s.streaming = streamingAssembly{active: true}

	case wire.AssistantTextDelta:
		s.streaming.text += e.Text

	case wire.AssistantThinkingDelta:
		s.streaming.thinking += e.Thinking

	case wire.AssistantTextEnd:
		// Authoritative final text; idempotent even when deltas were dropped.
		s.streaming.text = e.Text

	case wire.AssistantThinkingEnd:
		s.streaming.thinking = e.Thinking

	case wire.AssistantDone:
		if e.Message != nil {
			s.messages = append(s.messages, *e.Message)
		}
		s.streaming = streamingAssembly{}

	case wire.AssistantError:
		logger.Warnf("[session] assistant message failed: %s", e.Error)
		s.streaming = streamingAssembly{}

	default:
		// toolcall_* sub-events are superseded by tool_execution_* frames.
	}
	s.mu.Unlock()
}
