package cmd

import (
	"fmt"

	"github.com/audiolibrelab/keycapture/internal/config"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage KeyCapture configuration profiles.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Printf("# profile: %s\n", cfg.Inheritance.Profile)
		fmt.Print(string(out))

		if showInheritance, _ := cmd.Flags().GetBool("inheritance"); showInheritance {
			fmt.Printf("\n# inheritance\n")
			for _, key := range cfg.Inheritance.Keys() {
				fmt.Printf("%s: %s\n", key, getInheritanceIndicator(cfg.Inheritance.Source(key)))
			}
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configuration profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, active, err := config.ListProfiles(cfgFile)
		if err != nil {
			return err
		}
		for _, name := range profiles {
			marker := " "
			if name == active {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use [profile]",
	Short: "Set the active configuration profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UpdateActiveConfig(cfgFile, args[0]); err != nil {
			return err
		}
		fmt.Printf("Active profile: %s\n", args[0])
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate every profile in the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := config.ValidateConfigurationFormat(cfgFile)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d profile(s) valid, active %q\n", cfgFile, len(root.Configs), root.ActiveConfig)
		return nil
	},
}

func init() {
	configShowCmd.Flags().Bool("inheritance", false, "show where each value comes from")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configUseCmd)
	configCmd.AddCommand(configValidateCmd)
}
