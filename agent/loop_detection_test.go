package agent

import (
	"encoding/json"
	"testing"

	"github.com/amatelic/ralph-loop/llm"
)

func assistantCall(id, name, args string) llm.Message {
	return llm.Message{
		Role:    llm.RoleAssistant,
		Content: []llm.ContentPart{llm.ToolCallPart(id, name, json.RawMessage(args))},
	}
}

func TestDetectLoopRepeatedCall(t *testing.T) {
	var history []llm.Message
	for i := 0; i < 4; i++ {
		history = append(history, assistantCall("c", "read_file", `{"path":"a.go"}`))
	}
	if !detectLoop(history, 4) {
		t.Error("expected identical repeated calls to be detected")
	}
}

func TestDetectLoopAlternatingPattern(t *testing.T) {
	var history []llm.Message
	for i := 0; i < 3; i++ {
		history = append(history, assistantCall("c", "read_file", `{"path":"a.go"}`))
		history = append(history, assistantCall("c", "bash_command", `{"command":"go test"}`))
	}
	if !detectLoop(history, 6) {
		t.Error("expected alternating pattern to be detected")
	}
}

func TestDetectLoopDistinctCalls(t *testing.T) {
	history := []llm.Message{
		assistantCall("c", "read_file", `{"path":"a.go"}`),
		assistantCall("c", "read_file", `{"path":"b.go"}`),
		assistantCall("c", "read_file", `{"path":"c.go"}`),
		assistantCall("c", "read_file", `{"path":"d.go"}`),
	}
	if detectLoop(history, 4) {
		t.Error("distinct arguments must not trigger detection")
	}
}

func TestDetectLoopInsufficientHistory(t *testing.T) {
	history := []llm.Message{assistantCall("c", "read_file", `{"path":"a.go"}`)}
	if detectLoop(history, 4) {
		t.Error("short history must not trigger detection")
	}
}
