package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/amatelic/ralph-loop/llm"
)

// ToolExecutor executes one tool call. Arguments arrive as the raw JSON the
// model produced; executors decode them into their own typed struct.
type ToolExecutor func(ctx context.Context, arguments json.RawMessage, ws *Workspace) (string, error)

// RegisteredTool pairs a tool definition with its executor.
type RegisteredTool struct {
	Definition llm.ToolDefinition
	Executor   ToolExecutor
}

// ToolRegistry maps tool names to registered tools. Registration happens at
// startup; lookup and execution are concurrency-safe.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*RegisteredTool)}
}

// Register adds or replaces a tool in the registry.
func (r *ToolRegistry) Register(tool RegisteredTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Definition.Name] = &tool
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all registered tool names, sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions returns all tool definitions sorted by name, for declaring to
// the model. The order is deterministic so identical registries produce
// identical requests.
func (r *ToolRegistry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs one tool call against the workspace. An unknown tool name
// returns a *ToolError with code unknown_tool and no result, and a cancelled
// context propagates as an error; every other failure is rendered into an
// error tool result for the model to see.
func (r *ToolRegistry) Execute(ctx context.Context, call llm.ToolCall, ws *Workspace) (llm.ToolResult, error) {
	registered := r.Get(call.Name)
	if registered == nil {
		return llm.ToolResult{}, NewToolError(ToolErrUnknownTool, call.Name, "no such tool (available: %v)", r.Names())
	}

	output, err := registered.Executor(ctx, call.Arguments, ws)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return llm.ToolResult{}, err
		}
		return llm.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("Error: %v", err),
			IsError:    true,
		}, nil
	}
	return llm.ToolResult{ToolCallID: call.ID, Content: output}, nil
}

// decodeArgs unmarshals tool arguments into a typed struct, rejecting
// unknown fields.
func decodeArgs(tool string, raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return NewToolError(ToolErrInvalidInput, tool, "invalid arguments: %v", err)
	}
	return nil
}
