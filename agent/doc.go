// Package agent provides the conversation loop at the heart of hearth.
//
// The agent takes one user message per turn, asks the configured LLM for the
// next message given the full persisted transcript, and either surfaces the
// model's answer or executes the tool it requested and loops. All
// conversation state lives in the session store; the agent never caches the
// transcript across turns.
//
// # Architecture
//
//   - Core agent (this package): the Agent type, the turn processing loop
//     and the callback surface interaction modes plug into
//   - agent/terminal: the interactive CLI mode
//   - agent/acp: the Agent Client Protocol server for editor integration
//
// # Turn processing
//
// A turn starts with a user message and ends with a content-bearing
// assistant message. In between the model may request any number of
// sequential tool calls, each recorded as an assistant tool-request message
// followed by a tool-result message linked by the call id. The number of
// tool cycles per turn is bounded; past the bound the turn fails with
// ErrTurnLimitExceeded.
//
// # Callbacks
//
// ProcessCallbacks lets each interaction mode decide how events are
// surfaced: the terminal prints them, the ACP server turns them into
// JSON-RPC notifications. ShouldExecuteTool implements prompt mode, where
// tool execution requires user confirmation; a declined call is recorded as
// a cancelled tool result so the model can react to the refusal.
//
// # Modes and verbosity
//
//   - ModeAuto: tools run without confirmation
//   - ModePrompt: every tool call asks for confirmation first
//   - ToolVerbosityNone / Info / All: how much tool detail the surface shows
package agent
