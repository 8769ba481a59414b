package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/sheetrelay/internal/gateway"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingestion gateway",
		Long: `Run the HTTP ingestion gateway.

Serves POST /ingest, GET /health and GET /debug/state-hashes until
interrupted. With a store configured, state is restored on startup and
every accepted row is persisted before it is applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}

	cmd.Flags().String("addr", "", "listen address (default :8080)")
	cmd.Flags().StringSlice("key", nil, "accepted X-Relay-Key credential (repeatable)")
	cmd.Flags().Bool("strict", false, "reject records with missing required fields")

	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, closeStore, err := opts.openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	g := opts.Config.Gateway
	srv := gateway.NewServer(eng, gateway.Config{
		Addr:           g.Addr,
		Keys:           g.Keys,
		RatePerSecond:  g.RatePerSecond,
		Burst:          g.Burst,
		MaxBodyBytes:   g.MaxBodyBytes,
		MaxRecords:     g.MaxRecords,
		MaxLimiters:    g.MaxLimiters,
		StrictRequired: g.StrictRequired,
		Logger:         opts.Logger,
	})
	if err := srv.Serve(ctx); err != nil {
		return WrapExitError(ExitCommandError, "gateway", err)
	}
	return nil
}
