package llm

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAICompatAdapter speaks the OpenAI chat/completions wire format. It
// serves both the codex provider (api.openai.com) and the glm provider
// (Z.AI's coding endpoint is OpenAI-compatible); the two differ only in
// base URL, credential, and token ceilings.
type OpenAICompatAdapter struct {
	client openai.Client
	cfg    ProviderConfig
}

// NewOpenAICompatAdapter creates an adapter for an OpenAI-compatible API.
func NewOpenAICompatAdapter(cfg ProviderConfig) *OpenAICompatAdapter {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAICompatAdapter{
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}
}

// Name returns the provider identifier.
func (a *OpenAICompatAdapter) Name() string { return a.cfg.Provider }

// Complete sends one chat/completions request and normalizes the response.
func (a *OpenAICompatAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := checkRequestFits(a.cfg.Provider, req, a.cfg.ContextWindow); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = a.cfg.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(model),
		Messages:  toOpenAIMessages(req.Messages),
		MaxTokens: openai.Int(int64(clampMaxTokens(req.MaxTokens, a.cfg.MaxOutputTokens))),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, a.mapError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, NewProtocolError(a.cfg.Provider, "response contains no choices")
	}

	choice := completion.Choices[0]
	msg := Message{Role: RoleAssistant}

	// GLM reports reasoning in a non-standard extra field.
	if f, ok := choice.Message.JSON.ExtraFields["reasoning_content"]; ok {
		var reasoning string
		if json.Unmarshal([]byte(f.Raw()), &reasoning) == nil && reasoning != "" {
			msg.Content = append(msg.Content, ThinkingPart(reasoning))
		}
	}

	if choice.Message.Content != "" {
		msg.Content = append(msg.Content, TextPart(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.New().String()
		}
		msg.Content = append(msg.Content,
			ToolCallPart(id, tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
	}

	// Some models, GLM in particular, occasionally emit tool invocations as
	// fenced blocks in the text instead of structured tool_calls. Recover
	// them so the loop still dispatches.
	if len(choice.Message.ToolCalls) == 0 {
		for _, call := range parseEmbeddedToolCalls(choice.Message.Content) {
			msg.Content = append(msg.Content, ToolCallPart(call.ID, call.Name, call.Arguments))
		}
	}

	finish := FinishReason{Raw: string(choice.FinishReason)}
	switch choice.FinishReason {
	case "stop":
		finish.Reason = "stop"
	case "length":
		finish.Reason = "length"
	case "tool_calls", "function_call":
		finish.Reason = "tool_calls"
	default:
		finish.Reason = "other"
	}
	if len(msg.ToolCalls()) > 0 {
		finish.Reason = "tool_calls"
	}

	return &Response{
		ID:           completion.ID,
		Model:        completion.Model,
		Provider:     a.cfg.Provider,
		Message:      msg,
		FinishReason: finish,
		Usage: Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:  int(completion.Usage.TotalTokens),
		},
	}, nil
}

// mapError classifies an SDK error into the adapter error taxonomy.
func (a *OpenAICompatAdapter) mapError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		message := apierr.Message
		if message == "" {
			message = "request failed"
		}
		var retryAfter *float64
		if apierr.Response != nil {
			if s := apierr.Response.Header.Get("Retry-After"); s != "" {
				if secs, perr := strconv.ParseFloat(s, 64); perr == nil {
					retryAfter = &secs
				}
			}
		}
		return ErrorFromStatusCode(a.cfg.Provider, apierr.StatusCode, message, apierr.Error(), retryAfter)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return NewProtocolError(a.cfg.Provider, "unparseable response body: "+err.Error())
	}
	return NewTransportError(a.cfg.Provider, err)
}

// toOpenAIMessages converts conversation history into the chat/completions
// message envelope, including assistant tool_calls and tool-role results.
func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	var result []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			result = append(result, openai.SystemMessage(msg.TextContent()))
		case RoleUser:
			result = append(result, openai.UserMessage(msg.TextContent()))
		case RoleAssistant:
			calls := msg.ToolCalls()
			if len(calls) == 0 {
				result = append(result, openai.AssistantMessage(msg.TextContent()))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if text := msg.TextContent(); text != "" {
				assistant.Content.OfString = openai.String(text)
			}
			for _, tc := range calls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: string(tc.Arguments),
						},
					},
				})
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					result = append(result, openai.ToolMessage(part.ToolResult.Content, part.ToolResult.ToolCallID))
				}
			}
		}
	}
	return result
}

// toOpenAITools translates tool definitions into function declarations.
func toOpenAITools(tools []ToolDefinition) []openai.ChatCompletionToolUnionParam {
	result := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, tool := range tools {
		result[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  openai.FunctionParameters(tool.Parameters),
		})
	}
	return result
}

var (
	fencedToolPattern  = regexp.MustCompile("(?s)```(?:tool|bash|command)\\s*\n(.*?)\n```")
	bracketToolPattern = regexp.MustCompile(`(?s)\[TOOL:\s*(\w+)\s*\]\s*\[ARGS:\s*(\{.*?\})\s*\]`)
)

// parseEmbeddedToolCalls recovers tool invocations leaked into assistant
// text as fenced ```tool blocks ({"tool": name, "args": {...}}) or
// [TOOL: name][ARGS: {...}] brackets. A fenced block that is not JSON is
// treated as a raw shell command.
func parseEmbeddedToolCalls(content string) []ToolCall {
	var calls []ToolCall

	for _, match := range fencedToolPattern.FindAllStringSubmatch(content, -1) {
		body := match[1]
		var payload struct {
			Tool      string          `json:"tool"`
			Args      json.RawMessage `json:"args"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(body), &payload); err == nil && payload.Tool != "" {
			args := payload.Args
			if args == nil {
				args = payload.Arguments
			}
			if args == nil {
				args = json.RawMessage("{}")
			}
			calls = append(calls, ToolCall{
				ID:        "call_" + uuid.New().String(),
				Name:      payload.Tool,
				Arguments: args,
			})
			continue
		}
		command, err := json.Marshal(strings.TrimSpace(body))
		if err != nil {
			continue
		}
		calls = append(calls, ToolCall{
			ID:        "call_" + uuid.New().String(),
			Name:      "bash_command",
			Arguments: json.RawMessage(`{"command":` + string(command) + `}`),
		})
	}

	for _, match := range bracketToolPattern.FindAllStringSubmatch(content, -1) {
		if !json.Valid([]byte(match[2])) {
			continue
		}
		calls = append(calls, ToolCall{
			ID:        "call_" + uuid.New().String(),
			Name:      match[1],
			Arguments: json.RawMessage(match[2]),
		})
	}

	return calls
}
