package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/adragomir/pi.nvim/internal/promise"
	"github.com/adragomir/pi.nvim/internal/wire"
)

// ServerError is the rejection for a response with success=false. It carries
// the agent-provided message.
type ServerError struct {
	Command string
	Message string
}

// Error implements error.
func (e *ServerError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Command, e.Message)
}

// call sends a command and unwraps the response envelope: success resolves
// with the data payload, failure rejects with a ServerError.
func (c *Client) call(cmdType string, payload any) *promise.Promise[json.RawMessage] {
	return promise.Then(c.Send(cmdType, payload), func(resp *wire.Response) (json.RawMessage, error) {
		if !resp.Success {
			return nil, &ServerError{Command: cmdType, Message: resp.Error}
		}
		return resp.Data, nil
	})
}

// callAs is call plus decoding of the data payload into T.
func callAs[T any](c *Client, cmdType string, payload any) *promise.Promise[T] {
	return promise.Then(c.call(cmdType, payload), func(data json.RawMessage) (T, error) {
		var out T
		if len(data) == 0 {
			return out, nil
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return out, fmt.Errorf("decode %s response: %w", cmdType, err)
		}
		return out, nil
	})
}

// Conversation.

// Prompt starts a new agent turn with the given user input.
func (c *Client) Prompt(message string, images ...wire.ImageAttachment) *promise.Promise[json.RawMessage] {
	return c.call(wire.CmdPrompt, wire.PromptRequest{Message: message, Images: images})
}

// Steer injects user input into the currently running turn.
func (c *Client) Steer(message string) *promise.Promise[json.RawMessage] {
	return c.call(wire.CmdSteer, wire.SteerRequest{Message: message})
}

// FollowUp queues user input to run after the current turn finishes.
func (c *Client) FollowUp(message string) *promise.Promise[json.RawMessage] {
	return c.call(wire.CmdFollowUp, wire.FollowUpRequest{Message: message})
}

// Abort cancels the agent's current turn.
func (c *Client) Abort() *promise.Promise[json.RawMessage] {
	return c.call(wire.CmdAbort, nil)
}

// Sessions.

// NewSession starts a fresh session.
func (c *Client) NewSession() *promise.Promise[json.RawMessage] {
	return c.call(wire.CmdNewSession, nil)
}

// SwitchSession switches the agent to a stored session.
func (c *Client) SwitchSession(sessionID string) *promise.Promise[json.RawMessage] {
	return c.call(wire.CmdSwitchSession, wire.SwitchSessionRequest{SessionID: sessionID})
}

// ForkSession forks the current session at the given message index.
func (c *Client) ForkSession(messageIndex int) *promise.Promise[json.RawMessage] {
	return c.call(wire.CmdForkSession, wire.ForkSessionRequest{MessageIndex: messageIndex})
}

type sessionListData struct {
	Sessions []wire.SessionInfo `json:"sessions"`
}

// ListSessions returns the stored sessions.
func (c *Client) ListSessions() *promise.Promise[[]wire.SessionInfo] {
	return promise.Then(callAs[sessionListData](c, wire.CmdListSessions, nil),
		func(d sessionListData) ([]wire.SessionInfo, error) { return d.Sessions, nil })
}

// SetSessionName renames the current session.
func (c *Client) SetSessionName(name string) *promise.Promise[json.RawMessage] {
	return c.call(wire.CmdSetSessionName, wire.SetSessionNameRequest{Name: name})
}

type messageListData struct {
	Messages []wire.Message `json:"messages"`
}

// GetMessages returns the current session's message log.
func (c *Client) GetMessages() *promise.Promise[[]wire.Message] {
	return promise.Then(callAs[messageListData](c, wire.CmdGetMessages, nil),
		func(d messageListData) ([]wire.Message, error) { return d.Messages, nil })
}

// GetForkMessages returns the messages eligible as fork points.
func (c *Client) GetForkMessages() *promise.Promise[[]wire.Message] {
	return promise.Then(callAs[messageListData](c, wire.CmdGetForkMessages, nil),
		func(d messageListData) ([]wire.Message, error) { return d.Messages, nil })
}

// GetState returns the agent's session state snapshot.
func (c *Client) GetState() *promise.Promise[wire.StateSnapshot] {
	return callAs[wire.StateSnapshot](c, wire.CmdGetState, nil)
}

type commandListData struct {
	Commands []wire.CommandInfo `json:"commands"`
}

// GetCommands returns the agent's available slash commands.
func (c *Client) GetCommands() *promise.Promise[[]wire.CommandInfo] {
	return promise.Then(callAs[commandListData](c, wire.CmdGetCommands, nil),
		func(d commandListData) ([]wire.CommandInfo, error) { return d.Commands, nil })
}

// Models and thinking level.

// SetModel selects the upstream model.
func (c *Client) SetModel(model string) *promise.Promise[json.RawMessage] {
	return c.call(wire.CmdSetModel, wire.SetModelRequest{Model: model})
}

type modelListData struct {
	Models []string `json:"models"`
}

// ListModels returns the model identifiers the agent can use.
func (c *Client) ListModels() *promise.Promise[[]string] {
	return promise.Then(callAs[modelListData](c, wire.CmdListModels, nil),
		func(d modelListData) ([]string, error) { return d.Models, nil })
}

type modelData struct {
	Model string `json:"model"`
}

// CycleModel advances to the next configured model and returns its name.
func (c *Client) CycleModel() *promise.Promise[string] {
	return promise.Then(callAs[modelData](c, wire.CmdCycleModel, nil),
		func(d modelData) (string, error) { return d.Model, nil })
}

// SetThinkingLevel selects the thinking effort preset.
func (c *Client) SetThinkingLevel(level string) *promise.Promise[json.RawMessage] {
	return c.call(wire.CmdSetThinkingLevel, wire.SetThinkingLevelRequest{Level: level})
}

type thinkingData struct {
	Level string `json:"level"`
}

// CycleThinkingLevel advances to the next thinking preset and returns it.
func (c *Client) CycleThinkingLevel() *promise.Promise[string] {
	return promise.Then(callAs[thinkingData](c, wire.CmdCycleThinking, nil),
		func(d thinkingData) (string, error) { return d.Level, nil })
}

// Compaction.

// Compact asks the agent to compact the session context now.
func (c *Client) Compact() *promise.Promise[json.RawMessage] {
	return c.call(wire.CmdCompact, nil)
}

// SetAutoCompact toggles automatic context compaction.
func (c *Client) SetAutoCompact(enabled bool) *promise.Promise[json.RawMessage] {
	return c.call(wire.CmdSetAutoCompact, wire.SetAutoCompactRequest{Enabled: enabled})
}

// Shell.

// Bash runs a shell command through the agent's executor.
func (c *Client) Bash(command string) *promise.Promise[wire.BashResult] {
	return callAs[wire.BashResult](c, wire.CmdBash, wire.BashRequest{Command: command})
}

// AbortBash cancels a running bash command.
func (c *Client) AbortBash() *promise.Promise[json.RawMessage] {
	return c.call(wire.CmdAbortBash, nil)
}

// Introspection and export.

// GetStats returns token and cost statistics for the session.
func (c *Client) GetStats() *promise.Promise[wire.SessionStats] {
	return callAs[wire.SessionStats](c, wire.CmdGetStats, nil)
}

type exportData struct {
	Path string `json:"path"`
}

// Export renders the session transcript to a file and returns its path.
func (c *Client) Export(path string) *promise.Promise[string] {
	return promise.Then(callAs[exportData](c, wire.CmdExport, wire.ExportRequest{Path: path}),
		func(d exportData) (string, error) { return d.Path, nil })
}

type lastAssistantData struct {
	Text string `json:"text"`
}

// GetLastAssistantText returns the text of the last assistant message.
func (c *Client) GetLastAssistantText() *promise.Promise[string] {
	return promise.Then(callAs[lastAssistantData](c, wire.CmdGetLastAssistant, nil),
		func(d lastAssistantData) (string, error) { return d.Text, nil })
}

// Ping checks that the agent answers commands.
func (c *Client) Ping() *promise.Promise[json.RawMessage] {
	return c.call(wire.CmdPing, nil)
}

// WaitForTurnEnd returns a promise settled by the next terminal turn event:
// resolved on agent_end, rejected when the assistant message fails first. It
// is the "wait until the turn is over" helper used by scripted flows; callers
// bound the wait with AwaitContext.
//
// The event callback only touches the promise; the subscription is released
// through OnSettle once the handle exists, so a turn ending before OnEvent
// returns still cleans up.
func (c *Client) WaitForTurnEnd() *promise.Promise[*wire.AgentEndEvent] {
	fut := promise.New[*wire.AgentEndEvent]()
	unsubscribe := c.OnEvent(func(evt wire.Event) {
		switch e := evt.(type) {
		case *wire.AgentEndEvent:
			fut.Resolve(e)
		case *wire.MessageUpdateEvent:
			if e.AssistantEvent.Type == wire.AssistantError {
				fut.Reject(fmt.Errorf("turn failed: %s", e.AssistantEvent.Error))
			}
		}
	})
	fut.OnSettle(func(*wire.AgentEndEvent, error) { unsubscribe() })
	return fut
}
