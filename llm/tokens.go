package llm

import "fmt"

// Token estimation uses a character-count heuristic: 4 characters per token.
// Exact tokenization is provider-internal; the heuristic is within roughly
// 25% for code-heavy English text, which is accurate enough for rejecting
// grossly oversized prompts before a network call and for clamping output
// ceilings.

const charsPerToken = 4

// EstimateTokens estimates the token count of a string.
func EstimateTokens(s string) int {
	return len(s) / charsPerToken
}

// EstimateRequestTokens estimates the prompt token cost of a request:
// all message text, tool call arguments, tool results, and the JSON-encoded
// tool declarations.
func EstimateRequestTokens(req Request) int {
	chars := 0
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			switch part.Kind {
			case ContentText:
				chars += len(part.Text)
			case ContentToolCall:
				if part.ToolCall != nil {
					chars += len(part.ToolCall.Name) + len(part.ToolCall.Arguments)
				}
			case ContentToolResult:
				if part.ToolResult != nil {
					chars += len(part.ToolResult.Content)
				}
			case ContentThinking:
				if part.Thinking != nil {
					chars += len(part.Thinking.Text)
				}
			}
		}
	}
	for _, tool := range req.Tools {
		chars += len(tool.Name) + len(tool.Description)
		// Parameters are small JSON Schemas; a flat guess avoids
		// re-marshaling on every call.
		chars += 256
	}
	return chars / charsPerToken
}

// checkRequestFits rejects a request whose estimated prompt exceeds the
// provider context window. Returns nil when the request fits or when the
// window is unknown (zero).
func checkRequestFits(provider string, req Request, contextWindow int) error {
	if contextWindow <= 0 {
		return nil
	}
	estimated := EstimateRequestTokens(req)
	if estimated > contextWindow {
		return ErrorFromStatusCode(provider, 413,
			fmt.Sprintf("estimated prompt of ~%d tokens exceeds context window of %d", estimated, contextWindow),
			"", nil)
	}
	return nil
}

// clampMaxTokens applies the provider output ceiling to a requested
// max-token value. Zero requests the full ceiling.
func clampMaxTokens(requested, ceiling int) int {
	if ceiling <= 0 {
		return requested
	}
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}
