package cmd

import (
	"fmt"

	"github.com/audiolibrelab/keycapture/internal/service"

	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [channel]",
	Short: "Print the recorded pulses of a channel",
	Long: `Print the key-down intervals recorded on a channel, one "start,end" line per
pulse, up to the first record playback would stop at.`,
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

		events, err := svc.Dump(ch)
		if err != nil {
			return fmt.Errorf("dump failed: %w", err)
		}
		for _, e := range events {
			fmt.Println(e.String())
		}
		return nil
	},
}
