package agent

import (
	"fmt"
	"strings"
)

// TruncationMode specifies how oversized tool output is cut.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// Character limits per tool for output fed back to the model. The full
// output still reaches the host through the event stream.
var toolCharLimits = map[string]int{
	"read_file":    50000,
	"bash_command": 30000,
	"grep_search":  20000,
	"glob_search":  20000,
	"list_files":   20000,
	"edit_file":    10000,
	"write_file":   1000,
}

var toolTruncationModes = map[string]TruncationMode{
	"read_file":    TruncateHeadTail,
	"bash_command": TruncateHeadTail,
	"grep_search":  TruncateTail,
	"glob_search":  TruncateTail,
	"list_files":   TruncateTail,
	"edit_file":    TruncateTail,
	"write_file":   TruncateTail,
}

// Line limits per tool, applied after character truncation.
var toolLineLimits = map[string]int{
	"bash_command": 256,
	"grep_search":  200,
	"glob_search":  500,
}

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if len(output) <= maxChars {
		return output
	}

	removed := len(output) - maxChars
	switch mode {
	case TruncateTail:
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed. "+
			"The full output is available in the event stream.]\n\n", removed) +
			output[len(output)-maxChars:]
	default:
		half := maxChars / 2
		return output[:half] +
			fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
				"The full output is available in the event stream. "+
				"Re-run the tool with more targeted parameters to see specific parts.]\n\n", removed) +
			output[len(output)-half:]
	}
}

// TruncateLines applies line-based truncation using a head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies the full truncation pipeline for a tool:
// character-based first (handles pathological cases), then line-based for
// readability.
func TruncateToolOutput(output, toolName string) string {
	maxChars, ok := toolCharLimits[toolName]
	if !ok {
		maxChars = 30000
	}
	mode, ok := toolTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}
	result := TruncateOutput(output, maxChars, mode)

	if maxLines, ok := toolLineLimits[toolName]; ok {
		result = TruncateLines(result, maxLines)
	}
	return result
}
