// Command ralph runs a single agent instruction against a workspace: it
// resolves a provider from the environment, drives the execution loop, and
// prints the model's final answer to stdout. Run events stream to stderr.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amatelic/ralph-loop/agent"
	"github.com/amatelic/ralph-loop/config"
	"github.com/amatelic/ralph-loop/llm"
)

var flags struct {
	provider string
	model    string
	root     string
	maxTurns int
	envFile  string
	cfgFile  string
	quiet    bool
}

var rootCmd = &cobra.Command{
	Use:   "ralph [instruction]",
	Short: "Run a coding-agent instruction against the current workspace",
	Long: `ralph drives an LLM through tool calls (read, write, edit, search,
shell) inside a sandboxed workspace until it produces a final answer.

The instruction is taken from the arguments, or from stdin when no
arguments are given. Provider credentials come from the environment
(OPENCODE_API_KEY, ANTHROPIC_API_KEY, OPENAI_API_KEY), optionally via a
.env file.`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&flags.provider, "provider", "", "provider to use (glm, claude, codex)")
	rootCmd.Flags().StringVar(&flags.model, "model", "", "model override")
	rootCmd.Flags().StringVar(&flags.root, "root", "", "workspace root (default: PROJECT_ROOT or the current directory)")
	rootCmd.Flags().IntVar(&flags.maxTurns, "max-turns", 0, "maximum model calls per run (default: MAX_ITERATIONS or 50)")
	rootCmd.Flags().StringVar(&flags.envFile, "env-file", "", "env file to load (default: .env if present)")
	rootCmd.Flags().StringVar(&flags.cfgFile, "config", "", "ralph.toml defaults file")
	rootCmd.Flags().BoolVar(&flags.quiet, "quiet", false, "suppress the event stream on stderr")
}

func run(cmd *cobra.Command, args []string) error {
	instruction := strings.TrimSpace(strings.Join(args, " "))
	if instruction == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading instruction from stdin: %w", err)
		}
		instruction = strings.TrimSpace(string(data))
	}
	if instruction == "" {
		return fmt.Errorf("no instruction given (pass it as arguments or on stdin)")
	}

	cfg, err := config.Load(flags.envFile, flags.cfgFile)
	if err != nil {
		return err
	}

	providerCfg, err := cfg.ResolveProvider(flags.provider, flags.model)
	if err != nil {
		return err
	}
	adapter, err := llm.NewAdapter(providerCfg)
	if err != nil {
		return err
	}
	client := llm.NewClient(llm.WithProvider(providerCfg.Provider, adapter))
	defer client.Close()

	root := flags.root
	if root == "" {
		root = cfg.ProjectRoot
	}
	ws, err := agent.NewWorkspace(root)
	if err != nil {
		return err
	}

	registry := agent.NewToolRegistry()
	agent.RegisterCoreTools(registry)

	maxTurns := flags.maxTurns
	if maxTurns <= 0 {
		maxTurns = cfg.MaxTurns
	}
	runner := agent.NewRunner(client, registry, ws, agent.RunnerConfig{
		Provider: providerCfg.Provider,
		MaxTurns: maxTurns,
	})
	defer runner.Close()

	if !flags.quiet {
		go renderEvents(runner.Events(), os.Stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := llm.DefaultRetryPolicy()
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		if !flags.quiet {
			fmt.Fprintf(os.Stderr, "[retry] attempt %d in %s: %v\n", attempt, delay.Round(time.Millisecond), err)
		}
	}
	final, err := runWithRetry(ctx, runner, policy, instruction)
	if err != nil {
		return err
	}
	fmt.Println(final)
	return nil
}

// runWithRetry drives a run under the iteration-level retry policy. A failed
// run is repeated from a fresh history only when the failure is a retryable
// provider error; everything else surfaces on the first attempt.
func runWithRetry(ctx context.Context, runner *agent.Runner, policy llm.RetryPolicy, instruction string) (string, error) {
	return llm.Retry(ctx, policy, func(ctx context.Context) (string, error) {
		return runner.Run(ctx, instruction)
	})
}

// renderEvents writes a compact line per run event.
func renderEvents(events <-chan agent.RunEvent, w io.Writer) {
	for event := range events {
		switch event.Kind {
		case agent.EventRunStart:
			fmt.Fprintf(w, "[run] %v\n", event.Data["provider"])
		case agent.EventModelCallStart:
			fmt.Fprintf(w, "[model] turn %v\n", event.Data["turn"])
		case agent.EventToolCallStart:
			fmt.Fprintf(w, "[tool] %v\n", event.Data["tool_name"])
		case agent.EventToolCallEnd:
			if errMsg, ok := event.Data["error"]; ok {
				fmt.Fprintf(w, "[tool] failed: %v\n", errMsg)
			}
		case agent.EventTurnLimit:
			fmt.Fprintf(w, "[limit] turn budget exhausted after %v turns\n", event.Data["turns"])
		case agent.EventLoopDetection:
			fmt.Fprintf(w, "[loop] %v\n", event.Data["message"])
		case agent.EventWarning:
			fmt.Fprintf(w, "[warn] %v\n", event.Data["message"])
		case agent.EventError:
			fmt.Fprintf(w, "[error] %v\n", event.Data["error"])
		case agent.EventRunEnd:
			fmt.Fprintf(w, "[run] finished: %v\n", event.Data["state"])
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ralph:", err)
		os.Exit(1)
	}
}
