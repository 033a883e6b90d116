package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/keycapture/internal/service"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [channel]",
	Short: "Play a channel back headless",
	Long: `Replay the recording of a channel with its original timing and print every
key level change with the playback clock time. Press Ctrl+C to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := parseChannel(args[0])
		if err != nil {
			return err
		}

		svc, err := service.New(cfg, nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		go func() {
			select {
			case <-sigChan:
				cancel()
			case <-ctx.Done():
			}
		}()

		fmt.Printf("Playing channel %d (%s)\n", ch, cfg.ChannelName(ch))
		var start int64 = -1
		err = svc.Play(ctx, ch, func(at int64, level bool) {
			if start < 0 {
				start = at
			}
			state := "up"
			if level {
				state = "down"
			}
			fmt.Printf("%8d ms  key %s\n", at-start, state)
		})
		if errors.Is(err, context.Canceled) {
			fmt.Println("Playback stopped")
			return nil
		}
		if err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		fmt.Println("Playback complete")
		return nil
	},
}
