package scanner

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server  string
	Area    string
	Proxy   string
	Timeout time.Duration
	Verbose bool

	logger *zap.Logger
}

// NewRootCommand creates the parkscan command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parkscan",
		Short: "Forward QR scanner reads to the parking server",
		Long: `parkscan sits next to a gate's QR scanner. Hardware scanners type each code
as keyboard input; parkscan reads those lines and submits them to the
parking server, printing whether the vehicle entered, left or was refused.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Server == "" {
				return fmt.Errorf("--server is required")
			}
			if opts.logger != nil {
				return nil
			}
			config := zap.NewProductionConfig()
			if opts.Verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", "http://localhost:8080", "parking server base URL")
	cmd.PersistentFlags().StringVar(&opts.Area, "area", "", "area code of this gate; empty toggles entry and exit")
	cmd.PersistentFlags().StringVar(&opts.Proxy, "proxy", "", "HTTP proxy URL")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "request timeout")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newSendCommand(opts))

	return cmd
}

func (o *RootOptions) client(cooldown time.Duration) *Client {
	return NewClient(Options{
		Server:   o.Server,
		Area:     o.Area,
		Proxy:    o.Proxy,
		Timeout:  o.Timeout,
		Cooldown: cooldown,
	}, o.logger)
}

func newWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var cooldown time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Submit every code read from standard input",
		Long: `Reads one code per line from standard input until it is closed.

Validity lines that follow a plate are skipped, and the same plate is
submitted at most once per --cooldown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rootOpts.logger.Info("watching for scans", zap.String("server", rootOpts.Server), zap.String("area", rootOpts.Area))
			return rootOpts.client(cooldown).Watch(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&cooldown, "cooldown", 5*time.Second, "ignore repeated reads of a plate for this long")

	return cmd
}

func newSendCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <payload>",
		Short: "Submit a single scanned payload",
		Example: `  parkscan send "Plate: ABC123"
  parkscan --area A1 send ABC123`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rootOpts.client(0).Send(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), Describe(res))
			return nil
		},
	}
}
