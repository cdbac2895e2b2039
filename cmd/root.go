package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the mail2cal application
var rootCmd = &cobra.Command{
	Use:   "mail2cal",
	Short: "Turns school emails into Google Calendar events",
	Long: `mail2cal scans school emails, extracts the events they announce and
keeps two Google Calendars in sync with them.

Events announced by several teachers are recognized as one event and
merged instead of duplicated. A mapping file remembers which calendar
entries belong to which emails, so repeated runs are safe.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mail2cal version %s\n" .Version}}`)

	// If no subcommand is provided, run the sync command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "sync")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newPreviewCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd())
}
