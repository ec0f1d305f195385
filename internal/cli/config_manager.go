package cli

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/dyike/cortexmarket/config"
)

// newConfigCmd creates the config command
func newConfigCmd(e *env) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "Show and change the persisted configuration (config.json). API keys are masked.",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := sonic.ConfigStd.MarshalIndent(masked(e.config()), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("# "+e.mgr.Path()))
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "set <key=value>...",
		Short: "Update configuration keys",
		Long: `Update one or more keys of config.json. Values are read as JSON when they parse
(numbers, booleans, lists) and as strings otherwise.
Example: cortexmarket config set log_level=debug realtime_interval=15s`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := parseAssignments(args)
			if err != nil {
				return err
			}
			if err := e.mgr.UpdateFromJSON(patch); err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %d key(s) in %s\n", len(args), e.mgr.Path())
			return nil
		},
	})

	return configCmd
}

// parseAssignments turns key=value pairs into a partial JSON config.
func parseAssignments(args []string) (string, error) {
	patch := make(map[string]any, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return "", usageErrorf("expected key=value, got %q", arg)
		}
		var parsed any
		if sonic.Valid([]byte(v)) && sonic.UnmarshalString(v, &parsed) == nil {
			patch[k] = parsed
		} else {
			patch[k] = v
		}
	}
	return sonic.MarshalString(patch)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

func masked(cfg config.Config) config.Config {
	for _, p := range []*string{
		&cfg.DeepSeekAPIKey, &cfg.OpenAIAPIKey, &cfg.TavilyAPIKey, &cfg.FinnhubAPIKey,
		&cfg.LongportAppKey, &cfg.LongportAppSecret, &cfg.LongportAccessToken, &cfg.RedisPassword,
	} {
		*p = mask(*p)
	}
	return cfg
}
