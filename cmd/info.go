package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [channel]",
	Short: "Show resolved configuration and storage location for a channel",
	Long:  `Display the resolved configuration with inheritance indicators and where the recording of the given channel is stored. Shows which values are inherited from default vs profile-specific.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := parseChannel(args[0])
		if err != nil {
			return err
		}
		name := cfg.ChannelName(ch)
		src := cfg.Inheritance.Source

		fmt.Printf("=== CHANNEL %d ===\n", ch)
		fmt.Printf("stream: %s\n", name)
		switch cfg.Storage.Backend {
		case "sqlite":
			fmt.Printf("location: %s (stream %q)\n", cfg.Storage.Database, name)
		default:
			fmt.Printf("location: %s\n", filepath.Join(cfg.Storage.Directory, name))
		}

		fmt.Printf("\n=== RESOLVED CONFIGURATION (%s) ===\n", cfg.Inheritance.Profile)

		fmt.Printf("\n[Timing]\n")
		fmt.Printf("debounce_ms: %d %s\n", cfg.Timing.DebounceMs, getInheritanceIndicator(src("timing.debounce_ms")))
		fmt.Printf("short_threshold_ms: %d %s\n", cfg.Timing.ShortThresholdMs, getInheritanceIndicator(src("timing.short_threshold_ms")))
		fmt.Printf("long_threshold_ms: %d %s\n", cfg.Timing.LongThresholdMs, getInheritanceIndicator(src("timing.long_threshold_ms")))
		fmt.Printf("playback_delay_ms: %d %s\n", cfg.Timing.PlaybackDelayMs, getInheritanceIndicator(src("timing.playback_delay_ms")))

		fmt.Printf("\n[Report]\n")
		fmt.Printf("pause_ms: %d %s\n", cfg.Report.PauseMs, getInheritanceIndicator(src("report.pause_ms")))
		fmt.Printf("pulse_width_ms: %d %s\n", cfg.Report.PulseWidthMs, getInheritanceIndicator(src("report.pulse_width_ms")))
		fmt.Printf("spacing_ms: %d %s\n", cfg.Report.SpacingMs, getInheritanceIndicator(src("report.spacing_ms")))

		fmt.Printf("\n[Channels] %s\n", getInheritanceIndicator(src("channels")))
		for i, n := range cfg.Channels {
			marker := " "
			if i+1 == ch {
				marker = "*"
			}
			fmt.Printf("%s %d. %s\n", marker, i+1, n)
		}

		fmt.Printf("\n[Storage]\n")
		fmt.Printf("backend: %s %s\n", cfg.Storage.Backend, getInheritanceIndicator(src("storage.backend")))
		fmt.Printf("directory: %s %s\n", cfg.Storage.Directory, getInheritanceIndicator(src("storage.directory")))
		fmt.Printf("database: %s %s\n", cfg.Storage.Database, getInheritanceIndicator(src("storage.database")))
		return nil
	},
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	if status == "" {
		return "[unknown]"
	}
	return "[" + status + "]"
}
