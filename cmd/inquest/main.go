package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/inquestlabs/inquest/internal/chat"
	"github.com/inquestlabs/inquest/internal/config"
	"github.com/inquestlabs/inquest/internal/platform"
	"github.com/inquestlabs/inquest/internal/session"
)

// version is the CLI build version.
const version = "0.1.0"

// options holds all CLI flags.
type options struct {
	// Agent selects the agent for the current conversation.
	Agent string
	// Attach lists file paths to analyze alongside the prompt.
	Attach []string
	// Config overrides the platform config path.
	Config string
	// Continue resumes the most recent conversation.
	Continue bool
	// Print enables non-interactive mode.
	Print bool
	// Resume resumes a specific conversation by session id.
	Resume string
	// SessionID pins the conversation to a known session id.
	SessionID string
	// Settings provides a path or inline JSON for settings overrides.
	Settings string
	// Verbose toggles tool and citation detail in the output.
	Verbose bool
	// Version prints the CLI version.
	Version bool
}

// main wires Cobra and executes the CLI.
func main() {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "inquest [prompt]",
		Short: "Inquest - research agents in your terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Version {
				fmt.Println(version)
				return nil
			}
			return runRoot(cmd, opts, args)
		},
	}
	rootCmd.Args = cobra.ArbitraryArgs

	applyFlags(rootCmd.Flags(), opts)

	rootCmd.AddCommand(doctorCommand(opts))
	rootCmd.AddCommand(sessionsCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyFlags defines all CLI flags.
func applyFlags(flags *pflag.FlagSet, opts *options) {
	flags.StringVar(&opts.Agent, "agent", "", "Agent for the current conversation")
	flags.StringSliceVarP(&opts.Attach, "file", "f", nil, "Files to analyze with the prompt")
	flags.StringVar(&opts.Config, "config", "", "Platform config path")
	flags.BoolVarP(&opts.Continue, "continue", "c", false, "Continue the most recent conversation")
	flags.BoolVarP(&opts.Print, "print", "p", false, "Print the response and exit")
	flags.StringVarP(&opts.Resume, "resume", "r", "", "Resume a conversation by session ID")
	flags.StringVar(&opts.SessionID, "session-id", "", "Use a specific session ID")
	flags.StringVar(&opts.Settings, "settings", "", "Settings file path or JSON")
	flags.BoolVar(&opts.Verbose, "verbose", false, "Verbose output")
	flags.BoolVarP(&opts.Version, "version", "v", false, "Output the version number")
}

// doctorCommand validates platform configuration.
func doctorCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check Inquest configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.Config
			if path == "" {
				resolved, err := config.PlatformConfigPath()
				if err != nil {
					return err
				}
				path = resolved
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("platform config missing at %s", path)
			}
			mode := info.Mode().Perm()
			if mode&0o077 != 0 {
				return fmt.Errorf("platform config permissions too open: %s", mode)
			}
			if _, err := config.LoadPlatformConfig(path); err != nil {
				return fmt.Errorf("platform config invalid: %w", err)
			}
			fmt.Fprintf(os.Stdout, "OK: platform config %s\n", path)
			return nil
		},
	}
}

// runtime bundles the wired components for one CLI invocation.
type runtime struct {
	// cfg is the loaded platform config.
	cfg *config.PlatformConfig
	// settings are the merged user and project settings.
	settings *config.Settings
	// store persists identity and transcripts.
	store *session.Store
	// runner executes conversation turns.
	runner *chat.Runner
}

// buildRuntime loads configuration and wires the client, store, reconciler,
// and runner for one invocation.
func buildRuntime(opts *options) (*runtime, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get cwd: %w", err)
	}

	cfg, err := config.LoadPlatformConfig(opts.Config)
	if err != nil {
		if errors.Is(err, config.ErrPlatformConfigMissing) {
			path, pathErr := config.PlatformConfigPath()
			if pathErr != nil {
				return nil, pathErr
			}
			return nil, fmt.Errorf("platform config missing; create %s", path)
		}
		return nil, fmt.Errorf("load platform config: %w", err)
	}

	settings, err := config.LoadSettings(cwd, opts.Settings)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	store, err := session.NewStore()
	if err != nil {
		return nil, err
	}

	clientOpts := []platform.Option{
		platform.WithChatTimeout(time.Duration(cfg.ChatTimeoutMS) * time.Millisecond),
		platform.WithUploadTimeout(time.Duration(cfg.UploadTimeoutMS) * time.Millisecond),
	}
	if cfg.RetryBudget > 0 {
		clientOpts = append(clientOpts, platform.WithRetryBudget(cfg.RetryBudget))
	}
	var identities session.IdentitySource
	if cfg.APIKey != "" {
		tokens := &platform.StaticToken{Value: cfg.APIKey, UserID: cfg.UserID}
		clientOpts = append(clientOpts, platform.WithTokenSource(tokens))
		identities = tokens
	}
	client := platform.NewClient(cfg.APIBaseURL, clientOpts...)

	agentID := config.ResolveAgent(cfg, opts.Agent, settings.Agent)
	reconciler := session.NewReconciler(store, identities, &chat.PlatformRegistrar{Client: client}, agentID)

	return &runtime{
		cfg:      cfg,
		settings: settings,
		store:    store,
		runner: &chat.Runner{
			Client:     client,
			Reconciler: reconciler,
			Store:      store,
			AgentID:    agentID,
		},
	}, nil
}

// selectSession applies the session flags before the first turn.
func selectSession(ctx context.Context, rt *runtime, opts *options) error {
	switch {
	case opts.SessionID != "":
		rt.runner.Reconciler.Adopt(opts.SessionID)
		return nil
	case opts.Resume != "":
		return resumeSession(ctx, rt, opts.Resume)
	case opts.Continue:
		last, err := rt.store.LoadLastSession()
		if err != nil || last == "" {
			return errors.New("no previous conversation to continue")
		}
		return resumeSession(ctx, rt, last)
	}
	return nil
}

// resumeSession resumes a conversation with an ownership check.
func resumeSession(ctx context.Context, rt *runtime, sessionID string) error {
	if err := rt.runner.Reconciler.Resume(ctx, sessionID); err != nil {
		if errors.Is(err, session.ErrNotOwned) {
			return fmt.Errorf("session %s belongs to a different user", sessionID)
		}
		return fmt.Errorf("resume session %s: %w", sessionID, err)
	}
	return nil
}

// runRoot orchestrates config loading, session handling, and mode dispatch.
func runRoot(cmd *cobra.Command, opts *options, args []string) error {
	rt, err := buildRuntime(opts)
	if err != nil {
		return err
	}

	ctx, cancel := withInterrupt(context.Background(), nil)
	defer cancel()

	if err := selectSession(ctx, rt, opts); err != nil {
		return err
	}

	prompt := strings.TrimSpace(strings.Join(args, " "))

	if len(opts.Attach) > 0 {
		if prompt == "" {
			return errors.New("a prompt is required when analyzing files")
		}
		return runAnalyzePrint(ctx, rt.runner, prompt, opts.Attach, opts.Verbose)
	}

	interactive := !opts.Print && term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	if interactive {
		return runInteractiveTUI(rt, opts, prompt)
	}

	if prompt == "" {
		raw, err := readAllStdin()
		if err != nil {
			return err
		}
		prompt = strings.TrimSpace(raw)
	}
	if prompt == "" {
		return errors.New("a prompt is required in print mode")
	}
	return runPrint(ctx, rt.runner, prompt, opts.Verbose)
}

// readAllStdin reads the full prompt from standard input.
func readAllStdin() (string, error) {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(raw), nil
}
