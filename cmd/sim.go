package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/audiolibrelab/keycapture/internal/device"
	"github.com/audiolibrelab/keycapture/internal/pin"
	"github.com/audiolibrelab/keycapture/internal/service"
	"github.com/audiolibrelab/keycapture/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run the device against a terminal front panel",
	Long: `Run the device loop with a simulated front panel in the terminal.
k or space toggles the key, m toggles the mode button and c toggles the
channel button. Logs go to the file given by --log, or nowhere.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logPath, _ := cmd.Flags().GetString("log")

		// The terminal belongs to the panel; slog output would tear it
		var logOut io.Writer = io.Discard
		if logPath != "" {
			f, err := tea.LogToFile(logPath, "keycapture")
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			defer f.Close()
			logOut = f
		}
		level := slog.LevelInfo
		if verboseLevel >= 1 {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

		svc, err := service.New(cfg, logger)
		if err != nil {
			return err
		}
		defer svc.Close()

		clock := pin.NewSystemClock()
		board := device.NewSimBoard(clock)
		dev := svc.NewDevice(board.Lines(), clock)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- dev.Run(ctx)
		}()

		_, runErr := tea.NewProgram(tui.New(dev, board), tea.WithAltScreen()).Run()
		cancel()
		if err := <-done; err != nil {
			return err
		}
		if runErr != nil {
			return fmt.Errorf("terminal panel failed: %w", runErr)
		}
		return nil
	},
}

func init() {
	simCmd.Flags().String("log", "", "write logs to this file")
}
