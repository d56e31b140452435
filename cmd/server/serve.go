package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/chatbubble/internal/infrastructure/config"
	"github.com/GriffinCanCode/chatbubble/internal/infrastructure/server"
)

type serveFlags struct {
	host     string
	port     string
	upstream string
	dev      bool
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the widget API and reverse proxy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyServeFlags(cmd, cfg, flags)

			srv, err := server.NewServer(cfg)
			if err != nil {
				return err
			}
			defer srv.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&flags.host, "host", "", "listen host (overrides HOST)")
	cmd.Flags().StringVarP(&flags.port, "port", "p", "", "listen port (overrides PORT)")
	cmd.Flags().StringVar(&flags.upstream, "upstream", "", "chat origin to proxy (overrides UPSTREAM_ORIGIN)")
	cmd.Flags().BoolVar(&flags.dev, "dev", false, "development logging")
	return cmd
}

// applyServeFlags lets explicitly set flags win over the environment.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config, flags serveFlags) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = flags.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = flags.port
	}
	if cmd.Flags().Changed("upstream") {
		cfg.Upstream.Origin = flags.upstream
	}
	if cmd.Flags().Changed("dev") {
		cfg.Logging.Development = flags.dev
	}
}
