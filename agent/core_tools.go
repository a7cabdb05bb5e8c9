package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/amatelic/ralph-loop/llm"
)

const (
	defaultCommandTimeoutMs = 120000
	maxCommandTimeoutMs     = 600000
)

// RegisterCoreTools registers the built-in tool set on a registry.
func RegisterCoreTools(reg *ToolRegistry) {
	registerReadFile(reg)
	registerWriteFile(reg)
	registerEditFile(reg)
	registerGlobSearch(reg)
	registerGrepSearch(reg)
	registerBashCommand(reg)
	registerListFiles(reg)
}

func toolDef(name, description string, properties map[string]any, required []string) llm.ToolDefinition {
	params := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		params["required"] = required
	}
	return llm.ToolDefinition{Name: name, Description: description, Parameters: params}
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func intProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func registerReadFile(reg *ToolRegistry) {
	type args struct {
		Path string `json:"path"`
	}
	reg.Register(RegisteredTool{
		Definition: toolDef("read_file",
			"Read a file from the workspace and return its content.",
			map[string]any{
				"path": stringProp("Workspace-relative path to the file."),
			},
			[]string{"path"}),
		Executor: func(ctx context.Context, raw json.RawMessage, ws *Workspace) (string, error) {
			var a args
			if err := decodeArgs("read_file", raw, &a); err != nil {
				return "", err
			}
			return ws.ReadFile("read_file", a.Path)
		},
	})
}

func registerWriteFile(reg *ToolRegistry) {
	type args struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	reg.Register(RegisteredTool{
		Definition: toolDef("write_file",
			"Write content to a workspace file, creating it and any parent directories if needed.",
			map[string]any{
				"path":    stringProp("Workspace-relative path to write."),
				"content": stringProp("The full file content."),
			},
			[]string{"path", "content"}),
		Executor: func(ctx context.Context, raw json.RawMessage, ws *Workspace) (string, error) {
			var a args
			if err := decodeArgs("write_file", raw, &a); err != nil {
				return "", err
			}
			if a.Path == "" {
				return "", NewToolError(ToolErrInvalidInput, "write_file", "path is required")
			}
			if err := ws.WriteFile("write_file", a.Path, a.Content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Wrote %d bytes to %s", len(a.Content), a.Path), nil
		},
	})
}

func registerEditFile(reg *ToolRegistry) {
	type args struct {
		Path string `json:"path"`
		Old  string `json:"old"`
		New  string `json:"new"`
	}
	reg.Register(RegisteredTool{
		Definition: toolDef("edit_file",
			"Replace an exact string in a file. A single occurrence is replaced in place; "+
				"multiple occurrences are all replaced.",
			map[string]any{
				"path": stringProp("Workspace-relative path to the file to edit."),
				"old":  stringProp("Exact text to find in the file."),
				"new":  stringProp("Replacement text."),
			},
			[]string{"path", "old", "new"}),
		Executor: func(ctx context.Context, raw json.RawMessage, ws *Workspace) (string, error) {
			var a args
			if err := decodeArgs("edit_file", raw, &a); err != nil {
				return "", err
			}
			if a.Old == "" {
				return "", NewToolError(ToolErrInvalidInput, "edit_file", "old is required")
			}

			content, err := ws.ReadFile("edit_file", a.Path)
			if err != nil {
				return "", err
			}

			count := strings.Count(content, a.Old)
			if count == 0 {
				return "", NewToolError(ToolErrNotFound, "edit_file", "old string not found in %s", a.Path)
			}
			if a.Old == a.New {
				return fmt.Sprintf("No change needed in %s", a.Path), nil
			}

			var updated string
			if count == 1 {
				updated = strings.Replace(content, a.Old, a.New, 1)
			} else {
				updated = strings.ReplaceAll(content, a.Old, a.New)
			}
			if err := ws.WriteFile("edit_file", a.Path, updated); err != nil {
				return "", err
			}
			return fmt.Sprintf("Replaced %d occurrence(s) in %s", count, a.Path), nil
		},
	})
}

func registerGlobSearch(reg *ToolRegistry) {
	type args struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path,omitempty"`
	}
	reg.Register(RegisteredTool{
		Definition: toolDef("glob_search",
			"Find files matching a glob pattern. Supports ** for recursive matching. "+
				"Returns sorted workspace-relative paths.",
			map[string]any{
				"pattern": stringProp("Glob pattern, e.g. \"**/*.go\"."),
				"path":    stringProp("Base directory to search from. Default: workspace root."),
			},
			[]string{"pattern"}),
		Executor: func(ctx context.Context, raw json.RawMessage, ws *Workspace) (string, error) {
			var a args
			if err := decodeArgs("glob_search", raw, &a); err != nil {
				return "", err
			}
			if a.Pattern == "" {
				return "", NewToolError(ToolErrInvalidInput, "glob_search", "pattern is required")
			}
			matches, err := ws.Glob(a.Pattern, a.Path)
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return "No files matched the pattern.", nil
			}
			return strings.Join(matches, "\n"), nil
		},
	})
}

func registerGrepSearch(reg *ToolRegistry) {
	type args struct {
		Pattern    string `json:"pattern"`
		Path       string `json:"path,omitempty"`
		MaxResults int    `json:"max_results,omitempty"`
	}
	reg.Register(RegisteredTool{
		Definition: toolDef("grep_search",
			"Search file contents with a regular expression. Returns matching lines as path:line: text.",
			map[string]any{
				"pattern":     stringProp("Regular expression to search for."),
				"path":        stringProp("Directory to search. Default: workspace root."),
				"max_results": intProp("Maximum matches to return. Default: 100."),
			},
			[]string{"pattern"}),
		Executor: func(ctx context.Context, raw json.RawMessage, ws *Workspace) (string, error) {
			var a args
			if err := decodeArgs("grep_search", raw, &a); err != nil {
				return "", err
			}
			if a.Pattern == "" {
				return "", NewToolError(ToolErrInvalidInput, "grep_search", "pattern is required")
			}
			matches, err := ws.Grep(ctx, a.Pattern, a.Path, a.MaxResults)
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return "No matches found.", nil
			}
			var sb strings.Builder
			for _, m := range matches {
				fmt.Fprintf(&sb, "%s:%d: %s\n", m.Path, m.Line, m.Text)
			}
			return strings.TrimRight(sb.String(), "\n"), nil
		},
	})
}

func registerBashCommand(reg *ToolRegistry) {
	type args struct {
		Command   string `json:"command"`
		TimeoutMs int    `json:"timeout_ms,omitempty"`
	}
	reg.Register(RegisteredTool{
		Definition: toolDef("bash_command",
			"Execute a shell command in the workspace root. Returns stdout, stderr, and the exit code.",
			map[string]any{
				"command":    stringProp("The command to run with /bin/bash -c."),
				"timeout_ms": intProp("Command timeout in milliseconds. Default: 120000, max: 600000."),
			},
			[]string{"command"}),
		Executor: func(ctx context.Context, raw json.RawMessage, ws *Workspace) (string, error) {
			var a args
			if err := decodeArgs("bash_command", raw, &a); err != nil {
				return "", err
			}
			if a.Command == "" {
				return "", NewToolError(ToolErrInvalidInput, "bash_command", "command is required")
			}
			timeoutMs := a.TimeoutMs
			if timeoutMs <= 0 {
				timeoutMs = defaultCommandTimeoutMs
			}
			if timeoutMs > maxCommandTimeoutMs {
				timeoutMs = maxCommandTimeoutMs
			}

			result, err := ws.ExecCommand(ctx, a.Command, time.Duration(timeoutMs)*time.Millisecond)
			if err != nil {
				return "", err
			}
			if result.TimedOut {
				return "", &ToolError{
					Code: ToolErrTimeout,
					Tool: "bash_command",
					Message: fmt.Sprintf("command timed out after %dms; partial output:\n%s",
						timeoutMs, result.Output()),
				}
			}

			var sb strings.Builder
			sb.WriteString(result.Output())
			if result.ExitCode != 0 {
				fmt.Fprintf(&sb, "\n\n[Exit code: %d]", result.ExitCode)
			}
			return sb.String(), nil
		},
	})
}

func registerListFiles(reg *ToolRegistry) {
	type args struct {
		Path string `json:"path,omitempty"`
	}
	reg.Register(RegisteredTool{
		Definition: toolDef("list_files",
			"List the immediate entries of a workspace directory.",
			map[string]any{
				"path": stringProp("Workspace-relative directory. Default: workspace root."),
			},
			nil),
		Executor: func(ctx context.Context, raw json.RawMessage, ws *Workspace) (string, error) {
			var a args
			if err := decodeArgs("list_files", raw, &a); err != nil {
				return "", err
			}
			entries, err := ws.ListDir("list_files", a.Path)
			if err != nil {
				return "", err
			}
			if len(entries) == 0 {
				return "Directory is empty.", nil
			}
			var sb strings.Builder
			for _, entry := range entries {
				if entry.IsDir {
					fmt.Fprintf(&sb, "[dir]  %s\n", entry.Name)
				} else {
					fmt.Fprintf(&sb, "[file] %s\n", entry.Name)
				}
			}
			return strings.TrimRight(sb.String(), "\n"), nil
		},
	})
}
