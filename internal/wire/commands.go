package wire

// Command types accepted by the agent. Each expects a response frame carrying
// the same id, except extension_ui_response which is fire-and-forget.
const (
	CmdPrompt           = "prompt"
	CmdSteer            = "steer"
	CmdFollowUp         = "follow_up"
	CmdAbort            = "abort"
	CmdNewSession       = "new_session"
	CmdSwitchSession    = "switch_session"
	CmdForkSession      = "fork_session"
	CmdListSessions     = "list_sessions"
	CmdSetSessionName   = "set_session_name"
	CmdGetMessages      = "get_messages"
	CmdGetForkMessages  = "get_fork_messages"
	CmdGetState         = "get_state"
	CmdGetCommands      = "get_commands"
	CmdSetModel         = "set_model"
	CmdListModels       = "list_models"
	CmdCycleModel       = "cycle_model"
	CmdSetThinkingLevel = "set_thinking_level"
	CmdCycleThinking    = "cycle_thinking_level"
	CmdCompact          = "compact"
	CmdSetAutoCompact   = "set_auto_compaction"
	CmdBash             = "bash"
	CmdAbortBash        = "abort_bash"
	CmdGetStats         = "get_session_stats"
	CmdExport           = "export_html"
	CmdGetLastAssistant = "get_last_assistant_text"
	CmdPing             = "ping"
)

// Conversation commands.

// PromptRequest starts a new agent turn with user input.
type PromptRequest struct {
	// Message is the user's prompt text.
	Message string `json:"message"`
	// Images attaches optional inline images.
	Images []ImageAttachment `json:"images,omitempty"`
}

// ImageAttachment is an inline image sent alongside a prompt.
type ImageAttachment struct {
	// MimeType describes the payload (e.g. "image/png").
	MimeType string `json:"mimeType"`
	// Data is the base64 payload.
	Data string `json:"data"`
}

// SteerRequest injects user input into the currently running turn.
type SteerRequest struct {
	// Message is the steering text.
	Message string `json:"message"`
}

// FollowUpRequest queues user input to run after the current turn finishes.
type FollowUpRequest struct {
	// Message is the queued prompt text.
	Message string `json:"message"`
}

// Session commands.

// SwitchSessionRequest switches the agent to a stored session.
type SwitchSessionRequest struct {
	// SessionID identifies the target session.
	SessionID string `json:"sessionId"`
}

// ForkSessionRequest forks the current session at a message boundary.
type ForkSessionRequest struct {
	// MessageIndex is the log index to fork at; the new session keeps
	// messages [0, MessageIndex).
	MessageIndex int `json:"messageIndex"`
}

// SetSessionNameRequest renames the current session.
type SetSessionNameRequest struct {
	// Name is the new display name.
	Name string `json:"name"`
}

// SessionInfo describes one stored session in a list_sessions response.
type SessionInfo struct {
	// ID is the session id.
	ID string `json:"id"`
	// Name is the display name (may be empty).
	Name string `json:"name,omitempty"`
	// MessageCount is the number of messages in the log.
	MessageCount int `json:"messageCount"`
	// UpdatedAt is the last activity time in ms since epoch.
	UpdatedAt int64 `json:"updatedAt,omitempty"`
}

// Model and thinking commands.

// SetModelRequest selects the upstream model.
type SetModelRequest struct {
	// Model is the model identifier (agent-specific).
	Model string `json:"model"`
}

// SetThinkingLevelRequest selects the thinking effort preset.
type SetThinkingLevelRequest struct {
	// Level is the thinking level (e.g. "off", "low", "medium", "high").
	Level string `json:"level"`
}

// Compaction commands.

// SetAutoCompactRequest toggles automatic context compaction.
type SetAutoCompactRequest struct {
	// Enabled turns auto-compaction on or off.
	Enabled bool `json:"enabled"`
}

// Shell commands.

// BashRequest runs a shell command through the agent's executor.
type BashRequest struct {
	// Command is the shell command line.
	Command string `json:"command"`
}

// Export commands.

// ExportRequest renders the session transcript to a file.
type ExportRequest struct {
	// Path is the output file path; empty lets the agent pick one.
	Path string `json:"path,omitempty"`
}

// StateSnapshot is the get_state response payload.
type StateSnapshot struct {
	// SessionID is the active session id.
	SessionID string `json:"sessionId"`
	// SessionName is the active session's display name.
	SessionName string `json:"sessionName,omitempty"`
	// Model is the active model identifier.
	Model string `json:"model,omitempty"`
	// ThinkingLevel is the active thinking preset.
	ThinkingLevel string `json:"thinkingLevel,omitempty"`
	// AutoCompact reports whether auto-compaction is enabled.
	AutoCompact bool `json:"autoCompact"`
	// TurnActive reports whether an agent turn is in flight.
	TurnActive bool `json:"turnActive"`
}

// SessionStats is the get_session_stats response payload.
type SessionStats struct {
	// MessageCount is the number of messages in the log.
	MessageCount int `json:"messageCount"`
	// InputTokens is the cumulative input token count.
	InputTokens int64 `json:"inputTokens"`
	// OutputTokens is the cumulative output token count.
	OutputTokens int64 `json:"outputTokens"`
	// CostUSD is the estimated cumulative cost.
	CostUSD float64 `json:"costUsd"`
}

// BashResult is the bash response payload.
type BashResult struct {
	// Output is the combined stdout/stderr of the command.
	Output string `json:"output"`
	// ExitCode is the command's exit status.
	ExitCode int `json:"exitCode"`
}

// CommandInfo describes one slash command in a get_commands response.
type CommandInfo struct {
	// Name is the command name without the leading slash.
	Name string `json:"name"`
	// Description is the one-line help text.
	Description string `json:"description,omitempty"`
}
