package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/wallet-agent/internal/config"
	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/model"
	"github.com/ggonzalez94/wallet-agent/internal/out"
	"github.com/ggonzalez94/wallet-agent/internal/policy"
	"github.com/ggonzalez94/wallet-agent/internal/schema"
	"github.com/ggonzalez94/wallet-agent/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	root        *cobra.Command
	lastCommand string
	services    *services
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := normalizeRunError(root.Execute())
	if state.services != nil {
		state.services.close()
	}
	if err == nil {
		return 0
	}
	state.renderError("", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Wallet agent: relay quotes, 0x swaps and guarded on-chain execution",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}
			svc, err := newServices(settings)
			if err != nil {
				return err
			}
			s.services = svc
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	pf := cmd.PersistentFlags()
	pf.BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	pf.BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	pf.StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated, dotted paths allowed)")
	pf.BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	pf.StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	pf.StringVar(&s.flags.Timeout, "timeout", "", "HTTP request timeout")
	pf.IntVar(&s.flags.Retries, "retries", -1, "Retries per HTTP request")
	pf.BoolVar(&s.flags.NoCache, "no-cache", false, "Disable relay response cache")
	pf.BoolVar(&s.flags.Testnet, "testnet", false, "Use the relay testnet API")
	pf.StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	pf.StringVar(&s.flags.KeySource, "key-source", "", "Signing key source (auto|env|file|keystore)")
	pf.StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	pf.StringVar(&s.flags.EnvFile, "env-file", "", "Path to a .env file")

	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(s.newRelayCommand())
	cmd.AddCommand(s.newExecuteCommand())
	cmd.AddCommand(s.newIntentCommand())
	cmd.AddCommand(s.newSwapCommand())
	cmd.AddCommand(s.newBalanceCommand())
	cmd.AddCommand(s.newAllowanceCommand())
	cmd.AddCommand(s.newPreviewCommand())
	cmd.AddCommand(s.newExecutionsCommand())
	cmd.AddCommand(s.newChainsCommand())
	cmd.AddCommand(s.newProvidersCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, nil)
		},
	}
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	root := &cobra.Command{Use: "providers", Short: "Provider commands"}
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List quote providers and API key metadata (no keys required)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.services.providerInfos(), nil, nil)
		},
	})
	return root
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, providers []model.ProviderStatus) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
			Cache:     s.cacheMeta(),
		},
	}
	return out.Render(s.runner.stdout, env, s.outputOptions())
}

// renderError always writes a full envelope to stderr, ignoring --select and --results-only.
func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.CodeOf(err)
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Error: &model.ErrorBody{
			Code:    int(code),
			Type:    clierr.TypeName(code),
			Message: err.Error(),
		},
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Cache:     s.cacheMeta(),
		},
	}
	opts := s.outputOptions()
	opts.Select = nil
	opts.ResultsOnly = false
	_ = out.Render(s.runner.stderr, env, opts)
}

func (s *runtimeState) outputOptions() out.Options {
	mode := s.settings.OutputMode
	if mode == "" {
		mode = out.ModeJSON
	}
	return out.Options{Mode: mode, Select: s.settings.SelectFields, ResultsOnly: s.settings.ResultsOnly}
}

func (s *runtimeState) cacheMeta() model.CacheStatus {
	if s.services == nil || s.services.cache == nil {
		return model.CacheStatus{Status: "bypass"}
	}
	return model.CacheStatus{Status: "enabled"}
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func statusFromErr(err error) string {
	if err == nil {
		return "ok"
	}
	switch clierr.CodeOf(err) {
	case clierr.CodeAuth:
		return "auth_error"
	case clierr.CodeRateLimited:
		return "rate_limited"
	case clierr.CodeUnavailable:
		return "unavailable"
	default:
		return "error"
	}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
