package cmd

import (
	"fmt"

	"github.com/audiolibrelab/keycapture/internal/service"

	"github.com/spf13/cobra"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List channels and their recordings",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg, nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		infos, err := svc.Channels()
		if err != nil {
			return fmt.Errorf("failed to list channels: %w", err)
		}

		fmt.Printf("Channels (%s storage)\n", cfg.Storage.Backend)
		fmt.Printf("═══════════════════════════════════════\n")
		for _, info := range infos {
			if !info.Recorded {
				fmt.Printf("  %d. %-16s (empty)\n", info.Index, info.Name)
				continue
			}
			fmt.Printf("  %d. %-16s %4d records  %6d ms  key down %d ms\n",
				info.Index, info.Name, info.Records, info.DurationMs, info.KeyDownMs)
		}
		return nil
	},
}
