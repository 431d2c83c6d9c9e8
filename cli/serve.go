package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/icecapdb/icecap/server"
	"github.com/icecapdb/icecap/server/config"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the catalog server",
	Long:  "Start the REST catalog server and run until interrupted.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		// an explicitly requested file must load; the default name may
		// simply be absent
		if configFile != "icecap.yml" {
			return err
		}
		cfg = config.LoadDefaultConfig()
	}

	logger, err := config.SetupLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create server")
		return err
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info().Msg("Shutting down catalog server")
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("Server failed to start")
		return err
	}

	<-ctx.Done()

	if err := srv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		return err
	}
	return nil
}
