package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicAdapter speaks the Anthropic Messages API via the official SDK.
// The SDK handles the x-api-key and anthropic-version headers.
type AnthropicAdapter struct {
	client anthropic.Client
	cfg    ProviderConfig
}

// NewAnthropicAdapter creates an adapter for the Anthropic Messages API.
func NewAnthropicAdapter(cfg ProviderConfig) *AnthropicAdapter {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicAdapter{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
	}
}

// Name returns the provider identifier.
func (a *AnthropicAdapter) Name() string { return a.cfg.Provider }

// Complete sends one Messages API request and normalizes the response.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := checkRequestFits(a.cfg.Provider, req, a.cfg.ContextWindow); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = a.cfg.Model
	}

	messages, system := toAnthropicMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(clampMaxTokens(req.MaxTokens, a.cfg.MaxOutputTokens)),
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	result, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, a.mapError(err)
	}

	msg := Message{Role: RoleAssistant}
	for _, block := range result.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			msg.Content = append(msg.Content, TextPart(variant.Text))
		case anthropic.ThinkingBlock:
			msg.Content = append(msg.Content, ThinkingPart(variant.Thinking))
		case anthropic.ToolUseBlock:
			input := json.RawMessage(variant.Input)
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			msg.Content = append(msg.Content, ToolCallPart(variant.ID, variant.Name, input))
		}
	}

	finish := FinishReason{Raw: string(result.StopReason)}
	switch result.StopReason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		finish.Reason = "stop"
	case anthropic.StopReasonToolUse:
		finish.Reason = "tool_calls"
	case anthropic.StopReasonMaxTokens:
		finish.Reason = "length"
	default:
		finish.Reason = "other"
	}

	inTok := int(result.Usage.InputTokens)
	outTok := int(result.Usage.OutputTokens)
	return &Response{
		ID:           result.ID,
		Model:        string(result.Model),
		Provider:     a.cfg.Provider,
		Message:      msg,
		FinishReason: finish,
		Usage: Usage{
			InputTokens:  inTok,
			OutputTokens: outTok,
			TotalTokens:  inTok + outTok,
		},
	}, nil
}

// mapError classifies an SDK error into the adapter error taxonomy.
func (a *AnthropicAdapter) mapError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		var retryAfter *float64
		if apierr.Response != nil {
			if s := apierr.Response.Header.Get("Retry-After"); s != "" {
				if secs, perr := strconv.ParseFloat(s, 64); perr == nil {
					retryAfter = &secs
				}
			}
		}
		return ErrorFromStatusCode(a.cfg.Provider, apierr.StatusCode, "request failed", apierr.Error(), retryAfter)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return NewProtocolError(a.cfg.Provider, "unparseable response body: "+err.Error())
	}
	return NewTransportError(a.cfg.Provider, err)
}

// toAnthropicMessages converts conversation history into Messages API
// params. System messages are lifted out into system blocks; tool results
// become tool_result blocks in user-role messages, as the API requires.
func toAnthropicMessages(messages []Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var system []anthropic.TextBlockParam
	var result []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.TextContent()})
		case RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.TextContent())))
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			for _, part := range msg.Content {
				switch part.Kind {
				case ContentText:
					blocks = append(blocks, anthropic.NewTextBlock(part.Text))
				case ContentToolCall:
					if part.ToolCall != nil {
						blocks = append(blocks, anthropic.NewToolUseBlock(
							part.ToolCall.ID, part.ToolCall.Arguments, part.ToolCall.Name))
					}
				}
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewAssistantMessage(blocks...))
			}
		case RoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			for _, part := range msg.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					blocks = append(blocks, anthropic.NewToolResultBlock(
						part.ToolResult.ToolCallID, part.ToolResult.Content, part.ToolResult.IsError))
				}
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewUserMessage(blocks...))
			}
		}
	}

	return result, system
}

// toAnthropicTools translates tool definitions into tool declarations.
func toAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Properties: tool.Parameters["properties"],
		}
		if required, ok := tool.Parameters["required"].([]string); ok {
			schema.Required = required
		}
		result[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: schema,
			},
		}
	}
	return result
}
