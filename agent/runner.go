package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/amatelic/ralph-loop/llm"
)

// RunState is the runner lifecycle state.
type RunState string

const (
	StateIdle          RunState = "idle"
	StateAwaitingModel RunState = "awaiting_model"
	StateToolDispatch  RunState = "tool_dispatch"
	StateDone          RunState = "done"
	StateFailed        RunState = "failed"
)

// ErrMaxTurns is returned when a run exhausts its turn budget without the
// model producing a final answer.
var ErrMaxTurns = errors.New("maximum turns exceeded")

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Provider names the provider handling model calls. It is stamped on
	// every request so a routing client resolves the right adapter; empty
	// means the client's default.
	Provider string
	// MaxTurns caps model calls per run. Zero means the default of 50.
	MaxTurns int
	// Temperature is passed through to the provider when set.
	Temperature *float64
	// DisableLoopDetection turns off repeated-call detection.
	DisableLoopDetection bool
	// LoopWindow is the sliding window for loop detection. Zero means 10.
	LoopWindow int
}

// DefaultMaxTurns is the turn budget when none is configured.
const DefaultMaxTurns = 50

// Runner drives one instruction to completion: it alternates model calls
// and tool dispatch until the model answers without tool calls, the turn
// budget runs out, or an unrecoverable error occurs.
type Runner struct {
	id       string
	client   llm.Completer
	registry *ToolRegistry
	ws       *Workspace
	emitter  *EventEmitter
	cfg      RunnerConfig

	mu      sync.Mutex
	state   RunState
	history []llm.Message
	usage   llm.Usage
}

// NewRunner creates a runner bound to one completion client, registry, and
// workspace. The client may be a single adapter or an llm.Client routing by
// the configured provider name.
func NewRunner(client llm.Completer, registry *ToolRegistry, ws *Workspace, cfg RunnerConfig) *Runner {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.LoopWindow <= 0 {
		cfg.LoopWindow = 10
	}
	if cfg.Provider == "" {
		if adapter, ok := client.(llm.ProviderAdapter); ok {
			cfg.Provider = adapter.Name()
		}
	}
	runID := uuid.New().String()
	return &Runner{
		id:       runID,
		client:   client,
		registry: registry,
		ws:       ws,
		emitter:  NewEventEmitter(runID, 256),
		cfg:      cfg,
		state:    StateIdle,
	}
}

// ID returns the run identifier.
func (r *Runner) ID() string { return r.id }

// State returns the current run state.
func (r *Runner) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// History returns a copy of the conversation history.
func (r *Runner) History() []llm.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := make([]llm.Message, len(r.history))
	copy(h, r.history)
	return h
}

// Usage returns accumulated token usage across all model calls of the run.
func (r *Runner) Usage() llm.Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}

// Events returns the event channel for the host application.
func (r *Runner) Events() <-chan RunEvent {
	return r.emitter.Events()
}

// Close releases the event channel.
func (r *Runner) Close() {
	r.emitter.Close()
}

func (r *Runner) setState(s RunState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Runner) appendHistory(msgs ...llm.Message) {
	r.mu.Lock()
	r.history = append(r.history, msgs...)
	r.mu.Unlock()
}

// Run executes one instruction to completion and returns the model's final
// text. The history is reset at the start of every run.
func (r *Runner) Run(ctx context.Context, instruction string) (string, error) {
	defs := r.registry.Definitions()

	r.mu.Lock()
	r.history = []llm.Message{
		llm.SystemMessage(BuildPreamble(r.ws, defs)),
		llm.UserMessage(instruction),
	}
	r.usage = llm.Usage{}
	r.state = StateAwaitingModel
	r.mu.Unlock()

	r.emitter.Emit(EventRunStart, map[string]any{
		"instruction": instruction,
		"provider":    r.cfg.Provider,
	})

	turn := 0
	for {
		if turn >= r.cfg.MaxTurns {
			r.setState(StateFailed)
			r.emitter.Emit(EventTurnLimit, map[string]any{"turns": turn})
			r.emitter.Emit(EventRunEnd, map[string]any{"state": string(StateFailed)})
			return "", fmt.Errorf("%w after %d turns", ErrMaxTurns, turn)
		}

		select {
		case <-ctx.Done():
			r.setState(StateFailed)
			r.emitter.Emit(EventError, map[string]any{"error": ctx.Err().Error()})
			r.emitter.Emit(EventRunEnd, map[string]any{"state": string(StateFailed)})
			return "", ctx.Err()
		default:
		}

		r.setState(StateAwaitingModel)
		r.emitter.Emit(EventModelCallStart, map[string]any{"turn": turn})

		resp, err := r.client.Complete(ctx, llm.Request{
			Provider:    r.cfg.Provider,
			Messages:    r.History(),
			Tools:       defs,
			Temperature: r.cfg.Temperature,
		})
		turn++
		if err != nil {
			r.setState(StateFailed)
			r.emitter.Emit(EventError, map[string]any{"error": err.Error()})
			r.emitter.Emit(EventRunEnd, map[string]any{"state": string(StateFailed)})
			return "", err
		}

		r.mu.Lock()
		r.usage = r.usage.Add(resp.Usage)
		r.mu.Unlock()
		r.appendHistory(resp.Message)

		calls := resp.Message.ToolCalls()
		r.emitter.Emit(EventModelCallEnd, map[string]any{
			"turn":       turn - 1,
			"text":       resp.Text(),
			"tool_calls": len(calls),
		})

		if len(calls) == 0 {
			r.setState(StateDone)
			r.emitter.Emit(EventRunEnd, map[string]any{"state": string(StateDone)})
			return resp.Text(), nil
		}

		if err := validateCallIDs(resp.Provider, calls); err != nil {
			r.setState(StateFailed)
			r.emitter.Emit(EventError, map[string]any{"error": err.Error()})
			r.emitter.Emit(EventRunEnd, map[string]any{"state": string(StateFailed)})
			return "", err
		}

		r.setState(StateToolDispatch)
		results, err := r.dispatchTools(ctx, calls)
		if err != nil {
			r.setState(StateFailed)
			r.emitter.Emit(EventError, map[string]any{"error": err.Error()})
			r.emitter.Emit(EventRunEnd, map[string]any{"state": string(StateFailed)})
			return "", err
		}

		for _, result := range results {
			r.appendHistory(llm.ToolResultMessage(result.ToolCallID, result.Content, result.IsError))
		}

		if !r.cfg.DisableLoopDetection && detectLoop(r.History(), r.cfg.LoopWindow) {
			warning := fmt.Sprintf("The last %d tool calls follow a repeating pattern. Try a different approach.", r.cfg.LoopWindow)
			r.appendHistory(llm.UserMessage(warning))
			r.emitter.Emit(EventLoopDetection, map[string]any{"message": warning})
		}
	}
}

// dispatchTools executes tool calls sequentially in call order. Every call
// is executed and reported even when an earlier one fails; only an unknown
// tool name aborts the run.
func (r *Runner) dispatchTools(ctx context.Context, calls []llm.ToolCall) ([]llm.ToolResult, error) {
	results := make([]llm.ToolResult, 0, len(calls))
	for _, call := range calls {
		r.emitter.Emit(EventToolCallStart, map[string]any{
			"call_id":   call.ID,
			"tool_name": call.Name,
		})

		result, err := r.registry.Execute(ctx, call, r.ws)
		if err != nil {
			r.emitter.Emit(EventToolCallEnd, map[string]any{
				"call_id": call.ID,
				"error":   err.Error(),
			})
			return nil, err
		}

		// The event stream carries the full output; the model sees the
		// truncated version.
		r.emitter.Emit(EventToolCallEnd, map[string]any{
			"call_id":  call.ID,
			"output":   result.Content,
			"is_error": result.IsError,
		})
		result.Content = TruncateToolOutput(result.Content, call.Name)
		results = append(results, result)
	}
	return results, nil
}

// validateCallIDs enforces the correlation invariant on a model response:
// every tool call carries a non-empty identifier, unique within the
// response.
func validateCallIDs(provider string, calls []llm.ToolCall) error {
	seen := make(map[string]bool, len(calls))
	for _, call := range calls {
		if call.ID == "" {
			return llm.NewProtocolError(provider, "tool call with empty identifier: "+call.Name)
		}
		if seen[call.ID] {
			return llm.NewProtocolError(provider, "duplicate tool call identifier: "+call.ID)
		}
		seen[call.ID] = true
	}
	return nil
}
