package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Lidorpahima/AiTripPlanner-sub000/backend"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/config"
	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/logging"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the live trip HTTP service",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	logger := logging.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level)
	if cfg.Log.Level != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := backend.NewServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	logger.Info("live trip service starting",
		"addr", cfg.Server.Addr,
		"api", cfg.API.BaseURL,
		"suggestions", cfg.Suggestions.Provider,
		"persistence", cfg.Mongo.URI != "",
	)
	return srv.Run(ctx)
}
