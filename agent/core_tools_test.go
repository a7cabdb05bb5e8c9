package agent

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amatelic/ralph-loop/llm"
)

func execTool(t *testing.T, reg *ToolRegistry, ws *Workspace, name, args string) llm.ToolResult {
	t.Helper()
	result, err := reg.Execute(context.Background(), llm.ToolCall{
		ID:        "call_test",
		Name:      name,
		Arguments: json.RawMessage(args),
	}, ws)
	if err != nil {
		t.Fatalf("%s: unexpected registry error: %v", name, err)
	}
	return result
}

func TestReadWriteRoundTrip(t *testing.T) {
	ws := testWorkspace(t)
	reg := testRegistry()

	result := execTool(t, reg, ws, "write_file", `{"path":"notes/hello.txt","content":"hi there"}`)
	if result.IsError {
		t.Fatalf("write failed: %s", result.Content)
	}
	if !strings.Contains(result.Content, "8 bytes") {
		t.Errorf("expected byte count in result, got %q", result.Content)
	}

	result = execTool(t, reg, ws, "read_file", `{"path":"notes/hello.txt"}`)
	if result.IsError {
		t.Fatalf("read failed: %s", result.Content)
	}
	if result.Content != "hi there" {
		t.Errorf("expected %q, got %q", "hi there", result.Content)
	}
}

func TestReadFileNotFound(t *testing.T) {
	result := execTool(t, testRegistry(), testWorkspace(t), "read_file", `{"path":"nope.txt"}`)
	if !result.IsError {
		t.Fatal("expected error result for missing file")
	}
	if !strings.Contains(result.Content, "not_found") {
		t.Errorf("expected not_found in result, got %q", result.Content)
	}
}

func TestUnknownArgumentFieldRejected(t *testing.T) {
	result := execTool(t, testRegistry(), testWorkspace(t), "read_file", `{"path":"a.txt","extra":true}`)
	if !result.IsError {
		t.Fatal("expected error result for unknown field")
	}
	if !strings.Contains(result.Content, "invalid_input") {
		t.Errorf("expected invalid_input in result, got %q", result.Content)
	}
}

func TestEditFileSemantics(t *testing.T) {
	ws := testWorkspace(t)
	reg := testRegistry()
	path := filepath.Join(ws.Root(), "main.go")

	// Single occurrence: replaced in place.
	if err := os.WriteFile(path, []byte("alpha beta gamma"), 0644); err != nil {
		t.Fatal(err)
	}
	result := execTool(t, reg, ws, "edit_file", `{"path":"main.go","old":"beta","new":"BETA"}`)
	if result.IsError {
		t.Fatalf("edit failed: %s", result.Content)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "alpha BETA gamma" {
		t.Errorf("unexpected content: %q", data)
	}

	// Multiple occurrences: all replaced.
	if err := os.WriteFile(path, []byte("x y x y x"), 0644); err != nil {
		t.Fatal(err)
	}
	result = execTool(t, reg, ws, "edit_file", `{"path":"main.go","old":"x","new":"z"}`)
	if result.IsError {
		t.Fatalf("edit failed: %s", result.Content)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "z y z y z" {
		t.Errorf("expected all occurrences replaced, got %q", data)
	}
	if !strings.Contains(result.Content, "3 occurrence") {
		t.Errorf("expected 3 occurrences reported, got %q", result.Content)
	}

	// Absent old string: not_found.
	result = execTool(t, reg, ws, "edit_file", `{"path":"main.go","old":"absent","new":"w"}`)
	if !result.IsError || !strings.Contains(result.Content, "not_found") {
		t.Errorf("expected not_found result, got %q", result.Content)
	}

	// old == new with old present: successful no-op, file untouched.
	before, _ := os.ReadFile(path)
	result = execTool(t, reg, ws, "edit_file", `{"path":"main.go","old":"y","new":"y"}`)
	if result.IsError {
		t.Fatalf("no-op edit failed: %s", result.Content)
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("no-op edit modified the file")
	}
}

func TestEditFileIdempotent(t *testing.T) {
	ws := testWorkspace(t)
	reg := testRegistry()
	path := filepath.Join(ws.Root(), "f.txt")
	if err := os.WriteFile(path, []byte("old value"), 0644); err != nil {
		t.Fatal(err)
	}

	args := `{"path":"f.txt","old":"old","new":"new"}`
	if result := execTool(t, reg, ws, "edit_file", args); result.IsError {
		t.Fatalf("first edit failed: %s", result.Content)
	}
	// Second identical edit finds nothing to replace.
	result := execTool(t, reg, ws, "edit_file", args)
	if !result.IsError || !strings.Contains(result.Content, "not_found") {
		t.Errorf("expected not_found on repeat edit, got %q", result.Content)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	ws := testWorkspace(t)
	reg := testRegistry()

	for _, args := range []string{
		`{"path":"../outside.txt"}`,
		`{"path":"/etc/passwd"}`,
		`{"path":"a/../../outside.txt"}`,
	} {
		result := execTool(t, reg, ws, "read_file", args)
		if !result.IsError {
			t.Errorf("expected error result for %s", args)
			continue
		}
		if !strings.Contains(result.Content, "invalid_input") {
			t.Errorf("expected invalid_input for %s, got %q", args, result.Content)
		}
	}
}

func TestGlobSearch(t *testing.T) {
	ws := testWorkspace(t)
	reg := testRegistry()
	for _, p := range []string{"a.go", "sub/b.go", "sub/deep/c.go", "d.txt"} {
		full := filepath.Join(ws.Root(), p)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	result := execTool(t, reg, ws, "glob_search", `{"pattern":"**/*.go"}`)
	if result.IsError {
		t.Fatalf("glob failed: %s", result.Content)
	}
	expected := "a.go\nsub/b.go\nsub/deep/c.go"
	if result.Content != expected {
		t.Errorf("expected %q, got %q", expected, result.Content)
	}

	result = execTool(t, reg, ws, "glob_search", `{"pattern":"*.rs"}`)
	if result.Content != "No files matched the pattern." {
		t.Errorf("expected no-match message, got %q", result.Content)
	}
}

func TestGrepSearch(t *testing.T) {
	ws := testWorkspace(t)
	reg := testRegistry()
	if err := os.WriteFile(filepath.Join(ws.Root(), "a.go"), []byte("package a\nfunc Hello() {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(ws.Root(), ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ws.Root(), ".git", "config"), []byte("func Hello"), 0644); err != nil {
		t.Fatal(err)
	}

	result := execTool(t, reg, ws, "grep_search", `{"pattern":"func \\w+"}`)
	if result.IsError {
		t.Fatalf("grep failed: %s", result.Content)
	}
	if result.Content != "a.go:2: func Hello() {}" {
		t.Errorf("unexpected matches: %q", result.Content)
	}

	result = execTool(t, reg, ws, "grep_search", `{"pattern":"[invalid"}`)
	if !result.IsError || !strings.Contains(result.Content, "invalid_input") {
		t.Errorf("expected invalid_input for bad pattern, got %q", result.Content)
	}
}

func TestBashCommand(t *testing.T) {
	ws := testWorkspace(t)
	reg := testRegistry()

	result := execTool(t, reg, ws, "bash_command", `{"command":"echo hello && pwd"}`)
	if result.IsError {
		t.Fatalf("command failed: %s", result.Content)
	}
	if !strings.Contains(result.Content, "hello") {
		t.Errorf("missing stdout: %q", result.Content)
	}
	if !strings.Contains(result.Content, ws.Root()) {
		t.Errorf("expected command to run in the workspace root: %q", result.Content)
	}

	result = execTool(t, reg, ws, "bash_command", `{"command":"exit 3"}`)
	if !strings.Contains(result.Content, "[Exit code: 3]") {
		t.Errorf("expected exit code report, got %q", result.Content)
	}
}

func TestBashCommandTimeout(t *testing.T) {
	ws := testWorkspace(t)
	reg := testRegistry()

	result := execTool(t, reg, ws, "bash_command", `{"command":"echo partial; sleep 5","timeout_ms":200}`)
	if !result.IsError {
		t.Fatal("expected timeout to produce an error result")
	}
	if !strings.Contains(result.Content, "timeout") {
		t.Errorf("expected timeout code in result, got %q", result.Content)
	}
	if !strings.Contains(result.Content, "partial") {
		t.Errorf("expected partial output in result, got %q", result.Content)
	}
}

func TestBashCommandCancelledRunPropagates(t *testing.T) {
	ws := testWorkspace(t)
	reg := testRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled run must abort dispatch, not feed an error result back
	// to the model.
	result, err := reg.Execute(ctx, llm.ToolCall{
		ID:        "call_test",
		Name:      "bash_command",
		Arguments: json.RawMessage(`{"command":"sleep 30"}`),
	}, ws)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got result=%+v err=%v", result, err)
	}
}

func TestToolDefinitionsSorted(t *testing.T) {
	defs := testRegistry().Definitions()
	expected := []string{
		"bash_command", "edit_file", "glob_search", "grep_search",
		"list_files", "read_file", "write_file",
	}
	if len(defs) != len(expected) {
		t.Fatalf("expected %d definitions, got %d", len(expected), len(defs))
	}
	for i, name := range expected {
		if defs[i].Name != name {
			t.Errorf("position %d: expected %s, got %s", i, name, defs[i].Name)
		}
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	_, err := testRegistry().Execute(context.Background(), llm.ToolCall{
		ID:        "call_x",
		Name:      "teleport",
		Arguments: json.RawMessage(`{}`),
	}, testWorkspace(t))
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	var te *ToolError
	if !errors.As(err, &te) || te.Code != ToolErrUnknownTool {
		t.Errorf("expected unknown_tool ToolError, got %v", err)
	}
}
