package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/keycapture/internal/device"
	"github.com/audiolibrelab/keycapture/internal/panel"
	"github.com/audiolibrelab/keycapture/internal/pin"
	"github.com/audiolibrelab/keycapture/internal/service"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the device behind a web panel",
	Long: `Run the device loop with a simulated front panel served over HTTP.
The panel shows the indicator lamps live and its buttons drive the key, mode
and channel inputs, from a phone or any browser on the same network.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		if listen == "" {
			listen = cfg.Panel.Listen
		}

		svc, err := service.New(cfg, nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		clock := pin.NewSystemClock()
		board := device.NewSimBoard(clock)
		dev := svc.NewDevice(board.Lines(), clock)
		srv := panel.New(svc, dev, board, listen, nil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		go func() {
			select {
			case <-sigChan:
				slog.Info("Shutting down")
				cancel()
			case <-ctx.Done():
			}
		}()

		done := make(chan error, 1)
		go func() {
			done <- dev.Run(ctx)
		}()

		serveErr := srv.Start(ctx)
		cancel()
		if err := <-done; err != nil {
			return err
		}
		if serveErr != nil {
			return fmt.Errorf("server failed: %w", serveErr)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (overrides panel.listen)")
}
