package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/audiolibrelab/keycapture/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "keycapture [channel]",
	Short: "Keying recorder with channel selection and timed playback",
	Long: `KeyCapture records key-down intervals from a keying input onto one of
several channels and plays them back with the original timing.

A mode button starts playback (short press) or recording (long press), and a
channel button selects the channel. The device runs against a simulated front
panel, either in the terminal (sim) or in a browser (serve).

When a channel number is provided, it acts as 'keycapture play [channel]'.`,
	Args: cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)

		if cfgFile == "" {
			cfgFile = defaultConfigPath()
		}

		// Profile management works on the raw file and must not require a valid profile
		if cmd.Parent() != nil && cmd.Parent().Name() == "config" && cmd.Name() != "show" {
			return nil
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		slog.Debug("Configuration loaded", "file", cfgFile, "profile", cfg.Inheritance.Profile)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return playCmd.RunE(cmd, args)
		}
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/keycapture.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	rootCmd.AddCommand(simCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(channelsCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(infoCmd)
}

func defaultConfigPath() string {
	return os.ExpandEnv("$HOME/.config/keycapture.yaml")
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	// Configure text handler for clean terminal output
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))
}

// parseChannel converts a 1-based channel argument and checks it against the
// configured channel table.
func parseChannel(arg string) (int, error) {
	ch, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid channel %q: must be a number", arg)
	}
	if cfg.ChannelName(ch) == "" {
		return 0, fmt.Errorf("channel %d out of range 1..%d", ch, len(cfg.Channels))
	}
	return ch, nil
}
