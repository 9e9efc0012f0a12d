package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m4xw311/hearth/agent"
	"github.com/m4xw311/hearth/session"
)

// Run starts the Agent Client Protocol server over stdio using JSON-RPC.
// It implements a minimal subset of ACP:
// - initialize
// - session/new
// - session/load (replays stored history as session/update notifications)
// - session/prompt (emits agent_message_chunk, tool_call, and tool_result updates)
//
// Nothing but JSON-RPC ever goes to stdout; diagnostics go to the trace file
// when tracing is enabled. Messages are newline-delimited JSON objects rather
// than Content-Length framed.
func Run(ctx context.Context, hearthAgent *agent.Agent, in *bufio.Reader, out *bufio.Writer, traceEnabled bool) error {
	trace := func(string) {}
	if traceEnabled {
		traceFile, err := os.OpenFile("acp.trace", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			defer traceFile.Close()
			trace = func(msg string) {
				fmt.Fprintf(traceFile, "[%s] %s\n", time.Now().Format("15:04:05.000"), msg)
			}
		}
	}

	trace("Run: starting ACP server")
	server := &acpServer{
		ctx:      ctx,
		agent:    hearthAgent,
		sessions: make(map[string]*session.Session),
		stdin:    in,
		stdout:   out,
		trace:    trace,
	}

	for {
		payload, err := server.readMessage()
		if err != nil {
			if err == io.EOF {
				trace("Run: EOF received, exiting")
				return nil
			}
			trace(fmt.Sprintf("Run: read error: %v", err))
			return fmt.Errorf("ACP: read error: %w", err)
		}
		if len(payload) == 0 {
			continue
		}

		trace(fmt.Sprintf("Run: received payload: %s", string(payload)))
		var req jsonrpcRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			trace(fmt.Sprintf("Run: JSON parse error: %v", err))
			_ = server.writeResponseError(nil, -32700, "Parse error", nil)
			continue
		}

		trace(fmt.Sprintf("Run: dispatching method %s (id=%v)", req.Method, req.ID))
		switch req.Method {
		case "initialize":
			server.handleInitialize(&req)
		case "session/new":
			server.handleSessionNew(&req)
		case "session/load":
			server.handleSessionLoad(&req)
		case "session/prompt":
			server.handleSessionPrompt(&req)
		default:
			_ = server.writeResponseError(req.ID, -32601, "Method not found", nil)
		}
	}
}

// ---- JSON-RPC message types ----

type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ---- acpServer ----

// acpServer holds the state of one ACP server instance: the sessions it has
// opened and the stdio streams it talks to the client over.
type acpServer struct {
	ctx          context.Context
	agent        *agent.Agent
	sessions     map[string]*session.Session
	sessionsLock sync.Mutex

	stdin     *bufio.Reader
	stdout    *bufio.Writer
	writeLock sync.Mutex
	trace     func(string)
}

// readMessage reads one newline-delimited JSON-RPC payload from stdin.
func (s *acpServer) readMessage() ([]byte, error) {
	line, _, err := s.stdin.ReadLine()
	if err != nil {
		return nil, err
	}
	return line, nil
}

// writeJSON serializes obj and writes it to stdout as one newline-delimited
// JSON-RPC message.
func (s *acpServer) writeJSON(obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to serialize JSON-RPC message: %w", err)
	}
	s.trace(fmt.Sprintf("writeJSON: %s", string(data)))

	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	if _, err := s.stdout.Write(data); err != nil {
		return err
	}
	// The trailing newline tells the client the message is complete.
	if _, err := s.stdout.WriteString("\n"); err != nil {
		return err
	}
	return s.stdout.Flush()
}

func (s *acpServer) writeResponseOK(id any, result json.RawMessage) error {
	return s.writeJSON(jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

func (s *acpServer) writeResponseError(id any, code int, msg string, data any) error {
	s.trace(fmt.Sprintf("writeResponseError: code=%d msg=%s data=%+v", code, msg, data))
	return s.writeJSON(jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &jsonrpcError{
			Code:    code,
			Message: msg,
			Data:    data,
		},
	})
}

// writeNotification sends a JSON-RPC notification (a request without an ID).
func (s *acpServer) writeNotification(method string, params any) error {
	return s.writeJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
}

// decodeParams round-trips req.Params through JSON into dst. Params arrive as
// an already-unmarshalled any, so this is the simplest way to bind them to a
// typed struct.
func decodeParams(params, dst any) error {
	b, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// ---- Handlers ----

// handleInitialize answers the initialize request with the protocol version
// and the agent's capabilities. Session loading is supported; audio, images
// and embedded context are not.
func (s *acpServer) handleInitialize(req *jsonrpcRequest) {
	s.trace("handleInitialize: starting")
	resp := map[string]any{
		"protocolVersion": 1,
		"agentCapabilities": map[string]any{
			"loadSession": true,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": false,
				"image":           false,
			},
		},
		"authMethods": []any{},
	}
	respBytes, err := json.Marshal(resp)
	if err != nil {
		s.trace(fmt.Sprintf("handleInitialize: marshal error: %v", err))
		return
	}
	_ = s.writeResponseOK(req.ID, respBytes)
}

// handleSessionNew creates a new durable session, stamps it with the agent's
// configuration metadata, and returns its ID to the client.
func (s *acpServer) handleSessionNew(req *jsonrpcRequest) {
	s.trace("handleSessionNew: starting")
	type sessionNewParams struct {
		Cwd        string          `json:"cwd"`
		McpServers json.RawMessage `json:"mcpServers"`
	}
	var p sessionNewParams
	if err := decodeParams(req.Params, &p); err != nil {
		s.trace(fmt.Sprintf("handleSessionNew: bad params: %v", err))
	}

	sid := newSessionID()
	s.trace(fmt.Sprintf("handleSessionNew: created session ID %s", sid))

	sess, err := session.New(sid, s.agent.Config.Storage)
	if err != nil {
		s.trace(fmt.Sprintf("handleSessionNew: failed to create session: %v", err))
		_ = s.writeResponseError(req.ID, -32603, "Internal error", fmt.Sprintf("failed to create session: %v", err))
		return
	}

	// Carry the agent's runtime flags into the session metadata so the
	// session resumes the same way outside ACP.
	sess.Mode = string(s.agent.Mode)
	sess.Toolset = s.agent.Session.Toolset
	sess.ToolVerbosity = string(s.agent.Verbosity)
	sess.Acp = true
	if err := sess.Save(); err != nil {
		s.trace(fmt.Sprintf("handleSessionNew: failed to save session metadata: %v", err))
	}

	s.sessionsLock.Lock()
	s.sessions[sid] = sess
	s.sessionsLock.Unlock()

	respBytes, err := json.Marshal(map[string]any{"sessionId": sid})
	if err != nil {
		s.trace(fmt.Sprintf("handleSessionNew: marshal error: %v", err))
		return
	}
	_ = s.writeResponseOK(req.ID, respBytes)
}

// handleSessionLoad loads an existing session from disk and replays its
// history as session/update notifications: user_message_chunk for user
// messages, agent_message_chunk for assistant text, tool_call for tool
// requests and tool_result for their results. Responds null when the replay
// is complete.
func (s *acpServer) handleSessionLoad(req *jsonrpcRequest) {
	s.trace("handleSessionLoad: starting")
	type sessionLoadParams struct {
		SessionID  string          `json:"sessionId"`
		Cwd        string          `json:"cwd"`
		McpServers json.RawMessage `json:"mcpServers"`
	}
	var p sessionLoadParams
	if err := decodeParams(req.Params, &p); err != nil {
		s.trace(fmt.Sprintf("handleSessionLoad: bad params: %v", err))
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", fmt.Sprintf("bad params: %v", err))
		return
	}

	s.trace(fmt.Sprintf("handleSessionLoad: loading session %s", p.SessionID))
	sess, err := session.Load(p.SessionID, s.agent.Config.Storage)
	if err != nil {
		s.trace(fmt.Sprintf("handleSessionLoad: failed to load session: %v", err))
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", fmt.Sprintf("session not found: %v", err))
		return
	}

	s.sessionsLock.Lock()
	s.sessions[p.SessionID] = sess
	s.sessionsLock.Unlock()

	msgs, err := sess.Messages()
	if err != nil {
		s.trace(fmt.Sprintf("handleSessionLoad: failed to read history: %v", err))
		_ = s.writeResponseError(req.ID, -32603, "Internal error", fmt.Sprintf("failed to read history: %v", err))
		return
	}

	s.trace(fmt.Sprintf("handleSessionLoad: replaying %d messages", len(msgs)))
	for _, msg := range msgs {
		switch msg.Role {
		case "user":
			_ = s.writeNotification("session/update", map[string]any{
				"sessionId": p.SessionID,
				"update": map[string]any{
					"sessionUpdate": "user_message_chunk",
					"content": map[string]any{
						"type": "text",
						"text": msg.Content,
					},
				},
			})
		case "assistant":
			if msg.Content != "" {
				_ = s.sendAgentMessageChunk(p.SessionID, msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				_ = s.sendToolCallNotification(p.SessionID, tc)
			}
		case "tool":
			_ = s.sendToolResultNotification(p.SessionID, msg.ToolCallID, msg.Content)
		}
	}

	_ = s.writeResponseOK(req.ID, json.RawMessage("null"))
}

// contentBlock is a content block in ACP prompt requests. Text and
// resource_link blocks are handled; everything else is ignored.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// resource_link fields
	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Size        *int64 `json:"size,omitempty"`
}

// handleSessionPrompt runs one full agent turn for a session. Assistant text
// is streamed as agent_message_chunk notifications, tool activity as
// tool_call/tool_result notifications, and the response carries
// stopReason: end_turn once the model produced its final answer.
func (s *acpServer) handleSessionPrompt(req *jsonrpcRequest) {
	s.trace("handleSessionPrompt: starting")
	type promptParams struct {
		SessionID string         `json:"sessionId"`
		Prompt    []contentBlock `json:"prompt"`
	}
	var p promptParams
	if err := decodeParams(req.Params, &p); err != nil {
		s.trace(fmt.Sprintf("handleSessionPrompt: bad params: %v", err))
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", fmt.Sprintf("bad params: %v", err))
		return
	}

	s.sessionsLock.Lock()
	sess, ok := s.sessions[p.SessionID]
	s.sessionsLock.Unlock()
	if !ok {
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", "unknown sessionId")
		return
	}

	userText := extractUserText(p.Prompt)
	s.trace(fmt.Sprintf("handleSessionPrompt: extracted user text: %s", userText))

	// ProcessUserInput appends the user message itself; appending here too
	// would duplicate it.
	callbacks := agent.ProcessCallbacks{
		OnAssistantMessage: func(message string) {
			_ = s.sendAgentMessageChunk(p.SessionID, message)
		},
		OnToolCall: func(toolCall session.ToolCall) {
			_ = s.sendToolCallNotification(p.SessionID, toolCall)
		},
		OnToolResult: func(toolCall session.ToolCall, result string) {
			_ = s.sendToolResultNotification(p.SessionID, toolCall.ToolCallID, result)
		},
		ShouldExecuteTool: func(toolCall session.ToolCall) bool {
			// The ACP client has no confirmation channel here, so tools
			// always run.
			return true
		},
		OnWarning: func(warning string) {
			s.trace(fmt.Sprintf("handleSessionPrompt: warning: %s", warning))
		},
	}

	s.agent.Session = sess
	if err := s.agent.ProcessUserInput(s.ctx, userText, callbacks); err != nil {
		s.trace(fmt.Sprintf("handleSessionPrompt: turn failed: %v", err))
		_ = s.writeResponseError(req.ID, -32603, "Internal error", fmt.Sprintf("error processing user input: %v", err))
		return
	}

	respBytes, err := json.Marshal(map[string]any{"stopReason": "end_turn"})
	if err != nil {
		s.trace(fmt.Sprintf("handleSessionPrompt: marshal error: %v", err))
		return
	}
	_ = s.writeResponseOK(req.ID, respBytes)
}

// sendToolCallNotification emits a session/update notification announcing a
// tool call the agent is about to run.
func (s *acpServer) sendToolCallNotification(sessionID string, toolCall session.ToolCall) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": "tool_call",
			"toolCall": map[string]any{
				"id":   toolCall.ToolCallID,
				"name": toolCall.Name,
				"args": toolCall.Args,
			},
		},
	})
}

// sendToolResultNotification emits a session/update notification carrying a
// tool call's result.
func (s *acpServer) sendToolResultNotification(sessionID, toolCallID, result string) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": "tool_result",
			"toolResult": map[string]any{
				"toolCallId": toolCallID,
				"result":     result,
			},
		},
	})
}

// sendAgentMessageChunk emits a session/update notification streaming agent
// text to the client.
func (s *acpServer) sendAgentMessageChunk(sessionID, text string) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": "agent_message_chunk",
			"content": map[string]any{
				"type": "text",
				"text": text,
			},
		},
	})
}

func newSessionID() string {
	return fmt.Sprintf("sess_%s", uuid.NewString())
}

// readFileFromURI reads file contents from a file:// URI.
func readFileFromURI(uri string) (string, error) {
	parsedURL, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid URI: %v", err)
	}
	if parsedURL.Scheme != "file" {
		return "", fmt.Errorf("unsupported URI scheme: %s", parsedURL.Scheme)
	}
	content, err := os.ReadFile(parsedURL.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %v", err)
	}
	return string(content), nil
}

// extractUserText flattens the prompt's content blocks into a single user
// message. resource_link blocks are expanded inline, including the file's
// contents when the URI points at a local file.
func extractUserText(blocks []contentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if strings.TrimSpace(b.Text) != "" {
				parts = append(parts, b.Text)
			}
		case "resource_link":
			resourceInfo := fmt.Sprintf("=== Resource: %s ===\n", b.Name)
			if b.Title != "" {
				resourceInfo += fmt.Sprintf("Title: %s\n", b.Title)
			}
			if b.Description != "" {
				resourceInfo += fmt.Sprintf("Description: %s\n", b.Description)
			}
			resourceInfo += fmt.Sprintf("URI: %s\n", b.URI)
			if b.MimeType != "" {
				resourceInfo += fmt.Sprintf("Type: %s\n", b.MimeType)
			}
			if b.Size != nil {
				resourceInfo += fmt.Sprintf("Size: %d bytes\n", *b.Size)
			}

			if strings.HasPrefix(b.URI, "file://") {
				content, err := readFileFromURI(b.URI)
				if err != nil {
					resourceInfo += fmt.Sprintf("\n[Error reading file: %v]\n", err)
				} else {
					// Cap inline content for very large files.
					const maxContentSize = 50000
					if len(content) > maxContentSize {
						content = content[:maxContentSize] + "\n\n[... truncated to 50KB ...]"
					}
					resourceInfo += fmt.Sprintf("\n--- File Contents ---\n%s\n--- End of File ---\n", content)
				}
			} else {
				resourceInfo += "\n[External resource - content not available]\n"
			}

			resourceInfo += "=== End Resource ===\n"
			parts = append(parts, resourceInfo)
		}
	}
	return strings.Join(parts, "\n")
}
