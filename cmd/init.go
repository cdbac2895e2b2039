package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mail2cal/internal/config"
)

func newInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long: `Write a config file with defaults and placeholder calendar ids and
teacher addresses. Edit it before the first sync; the file is refused
as-is because the placeholders route events nowhere useful.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(configPath); err != nil {
				return err
			}
			fmt.Printf("Wrote %s. Fill in the calendar ids and teacher addresses before running sync.\n", configPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Config file path")
	return cmd
}
