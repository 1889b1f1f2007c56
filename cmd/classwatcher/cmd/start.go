package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/classwatcher/classwatcher/internal/app"
	"github.com/classwatcher/classwatcher/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	startFolder     string
	startAPIBaseURL string
	startPort       int
	startNoServer   bool
)

// startCmd represents the start command.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start watching for new recordings",
	Long: `Start classwatcher and keep it running until interrupted.

When a folder is configured, watching begins right away. New .mp3, .wav
and .m4a files created after startup are uploaded once each. Files that
were already in the folder are left alone.

The local control API (default 127.0.0.1:8767) lets another program
start and stop watching, change the folder and follow events on /ws.

Example:
  classwatcher start
  classwatcher start --folder ~/Recordings
  classwatcher start --api-base-url https://api.example.com
  classwatcher start --no-server`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startFolder, "folder", "", "folder to watch for this run (not saved)")
	startCmd.Flags().StringVar(&startAPIBaseURL, "api-base-url", "", "backend that issues presigned URLs (overrides API_BASE_URL)")
	startCmd.Flags().IntVar(&startPort, "port", 0, "control API port (default: 8767)")
	startCmd.Flags().BoolVar(&startNoServer, "no-server", false, "disable the local control API")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if startFolder != "" {
		folder, err := config.ExpandPath(startFolder)
		if err != nil {
			return fmt.Errorf("invalid --folder: %w", err)
		}
		cfg.FolderPath = folder
	}
	if startAPIBaseURL != "" {
		cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(startAPIBaseURL), "/")
	}
	if startPort != 0 {
		cfg.Server.Port = startPort
	}
	if startNoServer {
		cfg.Server.Enabled = false
	}

	// Re-validate after overrides
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cfg)

	log.Info().
		Str("version", version).
		Str("folder", cfg.FolderPath).
		Str("api", cfg.API.BaseURL).
		Bool("server", cfg.Server.Enabled).
		Msg("starting classwatcher")

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}

	log.Info().Msg("classwatcher stopped")
	return nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Format == "console" || verbose {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}
