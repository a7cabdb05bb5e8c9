package llm

import (
	"encoding/json"
	"testing"
)

func TestParseEmbeddedToolCallsFencedJSON(t *testing.T) {
	content := "I'll read the file.\n```tool\n{\"tool\": \"read_file\", \"args\": {\"path\": \"main.go\"}}\n```\nDone."
	calls := parseEmbeddedToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "read_file" {
		t.Errorf("expected read_file, got %s", calls[0].Name)
	}
	if calls[0].ID == "" {
		t.Error("expected a synthesized call ID")
	}
	var args map[string]string
	if err := json.Unmarshal(calls[0].Arguments, &args); err != nil {
		t.Fatalf("arguments not valid JSON: %v", err)
	}
	if args["path"] != "main.go" {
		t.Errorf("unexpected args: %v", args)
	}
}

func TestParseEmbeddedToolCallsRawBash(t *testing.T) {
	content := "Running tests:\n```bash\ngo test ./...\n```"
	calls := parseEmbeddedToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "bash_command" {
		t.Errorf("expected bash_command, got %s", calls[0].Name)
	}
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(calls[0].Arguments, &args); err != nil {
		t.Fatalf("arguments not valid JSON: %v", err)
	}
	if args.Command != "go test ./..." {
		t.Errorf("unexpected command: %q", args.Command)
	}
}

func TestParseEmbeddedToolCallsBracketForm(t *testing.T) {
	content := `[TOOL: glob_search][ARGS: {"pattern": "**/*.go"}]`
	calls := parseEmbeddedToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "glob_search" {
		t.Errorf("expected glob_search, got %s", calls[0].Name)
	}
}

func TestParseEmbeddedToolCallsPlainText(t *testing.T) {
	if calls := parseEmbeddedToolCalls("All done, nothing left to do."); len(calls) != 0 {
		t.Errorf("expected no calls in plain text, got %d", len(calls))
	}
	// A non-tool code fence should not be treated as a call.
	if calls := parseEmbeddedToolCalls("```go\nfunc main() {}\n```"); len(calls) != 0 {
		t.Errorf("expected no calls for a go fence, got %d", len(calls))
	}
}

func TestParseEmbeddedToolCallsUniqueIDs(t *testing.T) {
	content := "```tool\n{\"tool\": \"list_files\", \"args\": {}}\n```\n```tool\n{\"tool\": \"list_files\", \"args\": {}}\n```"
	calls := parseEmbeddedToolCalls(content)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].ID == calls[1].ID {
		t.Error("expected distinct synthesized IDs")
	}
}

func TestToOpenAIMessagesToolFlow(t *testing.T) {
	history := []Message{
		SystemMessage("You are an assistant."),
		UserMessage("List the files."),
		{
			Role: RoleAssistant,
			Content: []ContentPart{
				TextPart("Listing now."),
				ToolCallPart("call_1", "list_files", json.RawMessage(`{}`)),
			},
		},
		ToolResultMessage("call_1", "[file] main.go", false),
	}

	converted := toOpenAIMessages(history)
	if len(converted) != 4 {
		t.Fatalf("expected 4 wire messages, got %d", len(converted))
	}
	assistant := converted[2].OfAssistant
	if assistant == nil {
		t.Fatal("expected third message to be assistant")
	}
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call on assistant message, got %d", len(assistant.ToolCalls))
	}
	if assistant.ToolCalls[0].OfFunction.ID != "call_1" {
		t.Errorf("expected call ID call_1, got %s", assistant.ToolCalls[0].OfFunction.ID)
	}
	if converted[3].OfTool == nil {
		t.Fatal("expected fourth message to be a tool result")
	}
	if converted[3].OfTool.ToolCallID != "call_1" {
		t.Errorf("expected tool result correlated to call_1, got %s", converted[3].OfTool.ToolCallID)
	}
}
