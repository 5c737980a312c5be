// Package cli implements the legisgraph command-line interface. Every
// subcommand talks to a running API server through the SDK in pkg/client.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/turtacn/LegisGraph/internal/config"
	"github.com/turtacn/LegisGraph/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegisGraph/pkg/client"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// RootOptions holds the global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	NoColor      bool
	Timeout      time.Duration
	ServerAddr   string
}

// CLIContext carries the initialized dependencies through the command
// tree.
type CLIContext struct {
	Config       *config.Config
	Logger       logging.Logger
	Client       *client.Client
	OutputFormat string
	Verbose      bool
	Timeout      time.Duration
}

type cliContextKey struct{}

// NewRootCommand builds the root command with global flags and all
// subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "legisgraph",
		Short: "LegisGraph CLI - entity and relation extraction for legislative text",
		Long: "LegisGraph ingests legislative documents, extracts entities and\n" +
			"relations through remote annotation and pattern matching, and serves\n" +
			"the results as a searchable knowledge graph.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./legisgraph.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json, table)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose output")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	pf.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "per-command timeout")
	pf.StringVar(&opts.ServerAddr, "server", "", "API server address (default: http://localhost:8080)")

	cmd.AddCommand(
		NewDocumentsCmd(),
		NewExtractCmd(),
		NewSearchCmd(),
		NewGraphCmd(),
	)

	return cmd
}

// persistentPreRun builds the CLIContext and stores it on the command
// context before any subcommand runs.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	if opts.NoColor {
		color.NoColor = true
	}

	cfg, err := initConfig(opts)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := initLogger(opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	apiClient, err := initClient(cfg, opts)
	if err != nil {
		return fmt.Errorf("init API client: %w", err)
	}

	cliCtx := &CLIContext{
		Config:       cfg,
		Logger:       logger,
		Client:       apiClient,
		OutputFormat: opts.OutputFormat,
		Verbose:      opts.Verbose,
		Timeout:      opts.Timeout,
	}

	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cliCtx))
	return nil
}

// initConfig loads configuration from the flagged path, the standard
// search paths, or the environment when no file exists.
func initConfig(opts *RootOptions) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.Load(opts.ConfigPath)
	}

	searchPaths := []string{"./legisgraph.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".legisgraph", "config.yaml"))
	}
	searchPaths = append(searchPaths, "/etc/legisgraph/config.yaml")

	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}

	return config.LoadFromEnv()
}

// initLogger builds a console logger on stderr so command output on
// stdout stays parseable.
func initLogger(opts *RootOptions) (logging.Logger, error) {
	level := opts.LogLevel
	if opts.Verbose {
		level = "debug"
	}

	return logging.NewLogger(logging.LogConfig{
		Level:            level,
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// initClient builds the SDK client against the flagged or configured
// server address.
func initClient(cfg *config.Config, opts *RootOptions) (*client.Client, error) {
	addr := opts.ServerAddr
	if addr == "" && cfg.Server.Port > 0 {
		addr = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	if addr == "" {
		addr = "http://localhost:8080"
	}

	return client.NewClient(addr, client.WithTimeout(opts.Timeout))
}

// GetCLIContext extracts the CLIContext stored by the root command.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, appErrors.Internal("command context is nil")
	}

	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, appErrors.Internal("CLI context not initialized")
	}
	return cliCtx, nil
}

// commandContext derives the timeout-bounded context used for one API
// call.
func commandContext(cmd *cobra.Command, cliCtx *CLIContext) (context.Context, context.CancelFunc) {
	timeout := cliCtx.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

// Execute runs the CLI and reports the process exit error.
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// tableProvider lets a result render itself as a table.
type tableProvider interface {
	TableHeaders() []string
	TableRows() [][]string
}

// PrintResult writes data to stdout in the format selected by the
// --output flag.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return printJSON(cmd, data)
	}

	switch strings.ToLower(cliCtx.OutputFormat) {
	case "json":
		return printJSON(cmd, data)
	case "table":
		return printTable(cmd, data)
	default:
		return printText(cmd, data)
	}
}

func printJSON(cmd *cobra.Command, data interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printText(cmd *cobra.Command, data interface{}) error {
	switch v := data.(type) {
	case string:
		fmt.Fprintln(cmd.OutOrStdout(), v)
	case fmt.Stringer:
		fmt.Fprintln(cmd.OutOrStdout(), v.String())
	default:
		if tp, ok := data.(tableProvider); ok {
			return printTableProvider(cmd, tp)
		}
		return printJSON(cmd, data)
	}
	return nil
}

func printTable(cmd *cobra.Command, data interface{}) error {
	if tp, ok := data.(tableProvider); ok {
		return printTableProvider(cmd, tp)
	}
	return printText(cmd, data)
}

func printTableProvider(cmd *cobra.Command, tp tableProvider) error {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader(tp.TableHeaders())
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, row := range tp.TableRows() {
		table.Append(row)
	}
	table.Render()
	return nil
}

// PrintError writes a red error line to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", color.RedString("Error:"), err.Error())
}

// PrintSuccess writes a green confirmation line to stdout.
func PrintSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("OK:"), msg)
}

// truncate shortens a cell value for table output.
func truncate(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
