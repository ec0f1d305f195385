package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/dyike/cortexmarket/config"
	"github.com/dyike/cortexmarket/pkg/app"
)

const version = "v1.0.0"

// errUsage marks bad command-line input that cobra does not catch itself.
var errUsage = errors.New("usage")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// Builder turns a config into a wired App. Tests swap it to inject fakes.
type Builder func(ctx context.Context, cfg config.Config, opts ...app.BuildOption) (*app.App, error)

// env is shared by every subcommand of one invocation.
type env struct {
	configDir string
	logLevel  string
	builder   Builder

	mgr *config.Manager
}

func (e *env) config() config.Config {
	return e.mgr.Get()
}

// open builds the App for commands that touch data.
func (e *env) open(ctx context.Context, opts ...app.BuildOption) (*app.App, error) {
	return e.builder(ctx, e.config(), opts...)
}

type RootOption func(*env)

func WithBuilder(b Builder) RootOption {
	return func(e *env) { e.builder = b }
}

// NewRootCmd creates the root command
func NewRootCmd(opts ...RootOption) *cobra.Command {
	e := &env{builder: app.Build}
	for _, opt := range opts {
		opt(e)
	}

	rootCmd := &cobra.Command{
		Use:   "cortexmarket",
		Short: "cortexmarket - market data sync, cache and investment assistant",
		Long: `cortexmarket keeps realtime and historical quotes for stocks, funds, bonds,
futures, forex, gold and market indices in a two-tier cache/store, syncs them in the
background and answers investment questions with a tool-using LLM agent.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup()
		},
	}

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})
	rootCmd.PersistentFlags().StringVar(&e.configDir, "config-dir", "", "Directory holding config.json (data dir if empty)")
	rootCmd.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "Override log level: debug|info|error|severe")

	rootCmd.AddCommand(
		newServeCmd(e),
		newQuoteCmd(e),
		newHistoryCmd(e),
		newSearchCmd(e),
		newIndexCmd(e),
		newFundsCmd(e),
		newWatchlistCmd(e),
		newChatCmd(e),
		newAdviceCmd(e),
		newNewsCmd(e),
		newConfigCmd(e),
		newVersionCmd(),
	)
	return rootCmd
}

func (e *env) setup() error {
	base := config.DefaultConfig()
	mgr, err := config.NewManager(config.WithConfigDir(e.configDir), config.WithBase(base))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	e.mgr = mgr

	level := e.config().LogLevel
	if e.logLevel != "" {
		level = e.logLevel
	}
	setupLogging(level)
	return nil
}

func setupLogging(level string) {
	logx.MustSetup(logx.LogConf{
		ServiceName: "cortexmarket",
		Mode:        "console",
		Encoding:    "plain",
	})
	logx.DisableStat()
	logx.SetWriter(logx.NewWriter(os.Stderr))
	app.ApplyLogLevel(level)
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "cortexmarket "+version)
			fmt.Fprintln(out, "Market data sync, two-tier cache and investment agent")
		},
	}
}

func splitArgs(args []string) []string {
	var out []string
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
