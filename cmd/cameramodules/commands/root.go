package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"cameramodules/internal/camera"
	"cameramodules/internal/config"
	"cameramodules/internal/logger"
	"cameramodules/internal/portal"
	"cameramodules/internal/resolution"
	"cameramodules/internal/usbcam"
)

var (
	configPath string
	debug      bool

	cfgManager *config.Manager
)

func Execute() error {
	root := &cobra.Command{
		Use:          "cameramodules",
		Short:        "Pick camera resolutions and capture stills",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			cfgManager = config.NewManager(configPath)
			if err := cfgManager.Load(); err != nil {
				return fmt.Errorf("load config %s: %w", configPath, err)
			}
			return initLogger(cfgManager.Get())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if l := logger.Get(); l != nil {
				l.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to configuration file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(serveCmd(), camerasCmd(), sizesCmd(), selectCmd(), captureCmd(), versionCmd())
	return root.Execute()
}

func initLogger(cfg config.Config) error {
	level := logger.ParseLevel(cfg.Logging.Level)
	if debug {
		level = logger.LevelDebug
	}
	opts := logger.Options{
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Level:      level,
		Console:    os.Stderr,
	}
	if err := logger.Init(opts); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] Failed to initialize file logging: %v (continuing with console only)\n", err)
		opts.FilePath = ""
		return logger.Init(opts)
	}
	return nil
}

// newService builds the camera service from the loaded config, connecting to
// the desktop portal when permission checks are enabled.
func newService(opts ...camera.Option) (*camera.Service, func()) {
	cfg := cfgManager.Get()
	cleanup := func() {}

	if cfg.Permissions.Portal {
		client, err := portal.Connect()
		if err != nil {
			logger.Warn("[Portal] Camera permission checks disabled: %v", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			present, err := client.IsCameraPresent(ctx)
			cancel()
			if err != nil {
				logger.Warn("[Portal] IsCameraPresent: %v", err)
			} else if !present {
				logger.Info("[Portal] Portal reports no camera present")
			}
			opts = append(opts, camera.WithAccessChecker(client))
			cleanup = func() { client.Close() }
		}
	}

	svc := camera.NewService(cfgManager, usbcam.NewScanner(), opts...)
	if _, err := svc.Scan(); err != nil {
		logger.Warn("[USBCam] Initial scan failed: %v", err)
	}
	return svc, cleanup
}

// addTargetFlags registers --width/--height. Zero means "use the configured target".
func addTargetFlags(cmd *cobra.Command, width, height *int) {
	cmd.Flags().IntVar(width, "width", 0, "target width (default: configured target)")
	cmd.Flags().IntVar(height, "height", 0, "target height (default: configured target)")
}

func targetFromFlags(cmd *cobra.Command, width, height int) (*resolution.Size, error) {
	wSet, hSet := cmd.Flags().Changed("width"), cmd.Flags().Changed("height")
	if !wSet && !hSet {
		return nil, nil
	}
	if wSet != hSet {
		return nil, fmt.Errorf("%w: --width and --height must be given together", resolution.ErrInvalidTarget)
	}
	return &resolution.Size{Width: width, Height: height}, nil
}

func addUseCaseFlag(cmd *cobra.Command, useCase *string, def string) {
	cmd.Flags().StringVarP(useCase, "use-case", "u", def, "preview, capture or analysis")
}
