package llm

import "context"

// Completer is the completion surface consumers of this package depend on.
// A single adapter satisfies it, and so does a Client routing across
// several adapters.
type Completer interface {
	// Complete sends the conversation and tool declarations upstream and
	// returns the normalized response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ProviderAdapter is the interface every provider backend implements. An
// adapter issues exactly one outbound network request per Complete call: no
// caching, no hidden retries. Streaming is intentionally unsupported.
type ProviderAdapter interface {
	Completer

	// Name returns the provider identifier (e.g. "glm", "claude", "codex").
	Name() string
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}
