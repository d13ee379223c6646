package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tysttext/host/internal/config"
	"github.com/tysttext/host/internal/host"
	"github.com/tysttext/host/internal/logging"
)

var (
	runHeadless   bool
	runConfigPath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the host and its backend",
	Long: `Run the host window. The backend sidecar is started shortly after launch
and stopped when the window closes.

With --headless no window is shown: the host runs until interrupted or until
"tysttext host stop" is called, and logs are also written to stderr.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var extra *os.File
	if runHeadless {
		extra = os.Stderr
	}
	cleanup, err := setupLogging(cfg, extra)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := host.New(host.Options{
		Config:     cfg,
		Headless:   runHeadless,
		SocketPath: socketPath,
	})
	if err := h.Run(ctx); err != nil {
		slog.Error("host exited with error", "error", err)
		return err
	}
	return nil
}

// loadConfig loads path, or the default config file when path is empty.
// A missing file yields the defaults.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config, extra *os.File) (func(), error) {
	level := logging.ParseLevel(cfg.GetLogLevel())
	if extra == nil {
		return logging.Setup(cfg.GetLogFile(), level)
	}
	return logging.SetupMulti(cfg.GetLogFile(), extra, level)
}

func init() {
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "run without a window")
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "config file (default ~/.config/tysttext/config.toml)")
	rootCmd.AddCommand(runCmd)
}
