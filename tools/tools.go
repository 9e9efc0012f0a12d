// Package tools defines the actions the agent can take on the model's
// behalf: the Tool interface, the registry that assembles the active
// toolset, and the dispatcher that validates and executes requested calls.
package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/hearth/config"
	"github.com/m4xw311/hearth/tools/mcp"
)

// Tool defines the interface for any action the agent can take.
type Tool interface {
	Name() string
	Description() string
	// Schema describes the tool's arguments as a JSON schema object. Every
	// declared property carries a type and a human-readable purpose string;
	// the schema is sent to the model and used to validate incoming calls.
	Schema() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ToolRegistry holds all available tools, built-in and MCP-provided.
type ToolRegistry struct {
	tools      map[string]Tool
	mcpClients map[string]*mcp.MCPClient
}

// NewToolRegistry registers the built-in tools and connects to any
// additional MCP servers named in the configuration.
func NewToolRegistry(cfg *config.Config) *ToolRegistry {
	r := &ToolRegistry{
		tools:      make(map[string]Tool),
		mcpClients: make(map[string]*mcp.MCPClient),
	}

	r.Register(&WeatherTool{})
	r.Register(&HeaterTool{})
	r.Register(&ReadFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&WriteFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&ExecuteCommandTool{allowedCommands: cfg.AllowedCommands})

	for _, server := range cfg.AdditionalMCPServers {
		client, err := mcp.NewMCPClient(server.Name, server.Command, server.Args)
		if err != nil {
			fmt.Printf("Warning: could not initialize MCP server '%s': %v\n", server.Name, err)
			continue
		}
		r.mcpClients[server.Name] = client
		for _, t := range client.Tools() {
			r.Register(t)
		}
	}

	return r
}

func (r *ToolRegistry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *ToolRegistry) GetTool(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// GetActiveTools returns the tool instances for a given toolset. Toolset
// entries may name a tool exactly or use a glob pattern (e.g. "gopls.*") to
// pull in a family of MCP tools.
func (r *ToolRegistry) GetActiveTools(ts *config.Toolset) ([]Tool, error) {
	var activeTools []Tool
	for _, toolName := range ts.Tools {
		if strings.ContainsAny(toolName, "*?[") {
			matched := false
			for name, t := range r.tools {
				ok, err := doublestar.Match(toolName, name)
				if err != nil {
					return nil, fmt.Errorf("invalid tool pattern '%s' in toolset '%s': %w", toolName, ts.Name, err)
				}
				if ok {
					activeTools = append(activeTools, t)
					matched = true
				}
			}
			if !matched {
				fmt.Printf("Warning: tool pattern '%s' in toolset '%s' matched nothing\n", toolName, ts.Name)
			}
			continue
		}

		if t, ok := r.GetTool(toolName); ok {
			activeTools = append(activeTools, t)
		} else {
			return nil, fmt.Errorf("tool '%s' from toolset '%s' is not registered", toolName, ts.Name)
		}
	}
	return activeTools, nil
}

// Close stops all MCP server subprocesses started by the registry.
func (r *ToolRegistry) Close() {
	for _, client := range r.mcpClients {
		if err := client.Stop(); err != nil {
			fmt.Printf("Warning: failed to stop MCP server '%s': %v\n", client.Name, err)
		}
	}
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// isCommandAllowed checks if a command is in the allowlist (with regex support).
func isCommandAllowed(command string, allowed []string) (bool, error) {
	if len(strings.Fields(command)) == 0 {
		return false, nil
	}

	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			fmt.Printf("Warning: Invalid regex in allowed_commands '%s': %v\n", pattern, err)
			// Fall back to exact comparison when the pattern does not compile
			if command == pattern {
				return true, nil
			}
			continue
		}
		if re.MatchString(command) {
			return true, nil
		}
	}
	return false, nil
}
