package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func validateCmd() *cobra.Command {
	var show bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if show {
				redacted := *cfg
				if redacted.Dialogue.APIKey != "" {
					redacted.Dialogue.APIKey = "(set)"
				}
				if redacted.API.AdminKey != "" {
					redacted.API.AdminKey = "(set)"
				}
				out, err := redacted.Marshal()
				if err != nil {
					return fmt.Errorf("marshal config: %w", err)
				}
				cmd.Print(string(out))
				return nil
			}
			cmd.Println("config ok")
			return nil
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "print the effective configuration")
	return cmd
}
