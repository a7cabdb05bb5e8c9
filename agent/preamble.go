package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/amatelic/ralph-loop/llm"
)

// BuildPreamble generates the system message for a run: what the agent is,
// where it operates, and which tools it has.
func BuildPreamble(ws *Workspace, defs []llm.ToolDefinition) string {
	var sb strings.Builder

	sb.WriteString("You are a coding agent operating inside a sandboxed workspace. ")
	sb.WriteString("Complete the user's task by calling the available tools, then reply with a final summary once the task is done.\n\n")

	sb.WriteString("Rules:\n")
	sb.WriteString("- All file paths are relative to the workspace root. Never use absolute paths.\n")
	sb.WriteString("- Prefer edit_file over write_file for small changes to existing files.\n")
	sb.WriteString("- When a tool returns an error, read it and adjust; do not repeat the same call unchanged.\n")
	sb.WriteString("- Reply without tool calls only when the task is complete.\n\n")

	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Workspace root: %s\n", ws.Root())
	fmt.Fprintf(&sb, "Platform: %s\n", ws.Platform())
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	sb.WriteString("</environment>\n\n")

	sb.WriteString("Available tools:\n")
	for _, def := range defs {
		fmt.Fprintf(&sb, "- %s: %s\n", def.Name, def.Description)
	}

	return strings.TrimRight(sb.String(), "\n")
}
