package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mail2cal/internal/config"
	"mail2cal/internal/gmail"
	"mail2cal/internal/logging"
)

func newPreviewCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show what sync would extract, without touching anything",
		Long: `Scan recent school emails and print the events that would be extracted,
together with the calendars each one would be routed to. No calendar
entry is created and the mapping store is not written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Config file path")
	return cmd
}

func runPreview(ctx context.Context, configPath string) error {
	cfg, logger, loc, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger = logging.WithOperation(logger, "preview")

	gmailClient, err := gmail.NewClient(ctx, cfg.Gmail.UserID)
	if err != nil {
		return err
	}
	aiClient, err := newAIClient(cfg, loc, logger)
	if err != nil {
		return err
	}

	candidates, scanned, err := collectCandidates(ctx, cfg, gmailClient, aiClient, logger)
	if err != nil {
		return err
	}

	resolver := newResolver(cfg, logger)
	fmt.Printf("Scanned %d emails, extracted %d events:\n\n", len(scanned), len(candidates))
	for _, c := range candidates {
		route := resolver.Resolve(c.Sender)
		window := "all day"
		switch {
		case c.Start != nil && c.End != nil:
			window = c.Start.Format("15:04") + "-" + c.End.Format("15:04")
		case c.Start != nil:
			window = c.Start.Format("15:04")
		case !route.AllDay:
			window = fmt.Sprintf("%02d:00-%02d:00 (default)",
				int(route.DefaultStart.Hours()), int(route.DefaultEnd.Hours()))
		}
		date := "NO DATE"
		if !c.Date.IsZero() {
			date = c.Date.Format("2006-01-02")
		}
		fmt.Printf("  %s  %-10s  %s\n", date, window, c.Title)
		fmt.Printf("    calendars: %v  source: %s\n", route.Calendars, c.SourceID)
		if c.Location != "" {
			fmt.Printf("    location: %s\n", c.Location)
		}
	}
	return nil
}
