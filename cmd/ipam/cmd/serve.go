package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the allocation API and capacity monitor",
		Long: `Run the HTTP API and the background capacity monitor until SIGINT or
SIGTERM. In-flight requests get service.shutdown_timeout to finish.

Examples:
  # Serve with the config file found on the search path
  ipam serve

  # Serve on another port with an explicit database
  IPAM_API_LISTEN_ADDR=:9090 ipam serve --db /var/lib/ipam/ipam.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, log, err := a.newService(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if err := svc.Close(); err != nil {
					log.ErrorCtx(ctx, "failed to close service", err)
				}
			}()

			log.InfoContext(ctx, "service started, waiting for shutdown signal")
			return svc.Run(ctx)
		},
	}

	cmd.Flags().String("listen", "", "listen address override")
	_ = a.v.BindPFlag("api.listen_addr", cmd.Flags().Lookup("listen"))
	return cmd
}
