package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/audiolibrelab/audiorec/internal/audio"
	"github.com/audiolibrelab/audiorec/internal/config"
	"github.com/audiolibrelab/audiorec/internal/files"
	"github.com/audiolibrelab/audiorec/internal/mic"
	"github.com/audiolibrelab/audiorec/internal/play"
	"github.com/audiolibrelab/audiorec/internal/service"
	"github.com/audiolibrelab/audiorec/internal/settings"
	"github.com/audiolibrelab/audiorec/internal/store"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "audiorec",
	Short: "Record, organize and play back audio clips",
	Long: `AudioRec is a CLI audio recorder with a searchable library.

Recordings are captured from the default input device, stored as files in
the data directory and described by metadata (title, category, tags, notes,
favorite) kept in a local SQLite database.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		// Use default config path if not specified
		if cfgFile == "" {
			cfgFile = config.DefaultPath()
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/audiorec.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=ffmpeg output, 3=SQL tracing")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(storageCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(themeCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))
}

// app holds the components one command invocation works with
type app struct {
	svc    *service.RecorderService
	player *play.Player
	db     *store.Store
}

// openApp builds the component graph from cfg and initializes storage
func openApp(ctx context.Context) (*app, error) {
	db, err := store.Open(cfg.DatabasePath(), verboseLevel >= 3)
	if err != nil {
		return nil, err
	}

	var perms audio.Permissions = mic.Probe{}
	if !cfg.Capture.CheckMicrophone {
		perms = audio.AllowAll{}
	}

	// Level 2 and up show raw ffmpeg output
	var ffmpegLog io.Writer
	if verboseLevel >= 2 {
		ffmpegLog = os.Stderr
	}
	backend := &audio.FFmpegBackend{
		FFmpegPath:  cfg.Capture.FFmpegPath,
		InputFormat: cfg.Capture.InputFormat,
		InputDevice: cfg.Capture.InputDevice,
		TempDir:     cfg.Capture.TempDirectory,
		LogWriter:   ffmpegLog,
	}

	player := play.NewPlayer(&play.FFplayEngine{
		FFplayPath:     cfg.Playback.FFplayPath,
		FFprobePath:    cfg.Playback.FFprobePath,
		StatusInterval: cfg.Playback.StatusInterval,
	})

	fm := files.New(cfg.Storage.DataDirectory, cfg.Storage.ExportDirectory, nil)
	svc := service.New(service.Deps{
		Store:    db,
		Files:    fm,
		Settings: settings.New(db),
		Capture:  audio.NewSession(backend, perms, cfg.Platform()),
		Player:   player,
	})
	if err := svc.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}

	slog.Debug("Application ready", "database", cfg.DatabasePath(), "recordings", fm.Dir(), "platform", cfg.Platform())
	return &app{svc: svc, player: player, db: db}, nil
}

func (a *app) Close() {
	if a.player.IsLoaded() {
		a.player.Unload(context.Background())
	}
	if err := a.db.Close(); err != nil {
		slog.Debug("Error closing database", "error", err)
	}
}
