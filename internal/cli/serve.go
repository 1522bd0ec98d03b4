package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/dbconnector/internal/logger"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API",
		Long: `Start the REST API and block until SIGINT or SIGTERM, then shut down
gracefully. Profiles from --connections-file are added on startup unless a
connection with the same name already exists.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			log := logger.FromContext(cmd.Context())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.server.Serve(ctx)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default :8000)")
	cmd.Flags().String("store", "", "Profile store (memory|sqlite)")
	cmd.Flags().String("store-path", "", "SQLite profile store path")
	cmd.Flags().Bool("read-only", false, "Reject statements that may modify data")
	cmd.Flags().Duration("query-timeout", 0, "Per-statement timeout (default 30s)")
	cmd.Flags().Duration("connect-timeout", 0, "Connection timeout (default 10s)")
	cmd.Flags().Int("max-page-size", 0, "Largest page_size accepted (default 1000)")

	_ = cmd.RegisterFlagCompletionFunc("store", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"memory", "sqlite"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}
