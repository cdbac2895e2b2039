package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mail2cal/internal/ai"
	"mail2cal/internal/calendar"
	"mail2cal/internal/config"
	"mail2cal/internal/gmail"
	"mail2cal/internal/logging"
	"mail2cal/internal/reconcile"
	"mail2cal/internal/store"
)

func newSyncCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Scan emails and reconcile the calendars",
		Long: `Scan recent school emails, extract the events they announce and apply
them to both calendars: new events are created, events announced again
are merged, and events whose every source email was rescanned without
mentioning them are removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Config file path")
	return cmd
}

func runSync(ctx context.Context, configPath string) error {
	cfg, logger, loc, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger = logging.WithOperation(logger, "sync")

	// The store must load cleanly before anything touches a calendar.
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}

	gmailClient, err := gmail.NewClient(ctx, cfg.Gmail.UserID)
	if err != nil {
		return err
	}
	calClient, err := calendar.NewClient(ctx, cfg.Timezone)
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

	orch := reconcile.NewOrchestrator(
		st,
		reconcile.NewIndex(st, cfg.WindowDays),
		reconcile.NewMatcher(aiClient, cfg.AI.RequestTimeout, logger),
		newResolver(cfg, logger),
		calClient,
		cfg.Workers,
		logger,
	)

	report, err := orch.Reconcile(ctx, candidates, scanned)
	if err != nil {
		return err
	}
	fmt.Print(report.Summary())
	if report.Failures > 0 {
		return fmt.Errorf("%d operations failed; rerun to retry", report.Failures)
	}
	return nil
}

// collectCandidates scans recent emails and extracts event candidates.
// The returned scanned list names every message examined, including those
// that yielded nothing; it drives the conservative deletion pass.
func collectCandidates(ctx context.Context, cfg config.Config, gmailClient *gmail.Client, aiClient *ai.Client, logger *slog.Logger) ([]*reconcile.CandidateEvent, []string, error) {
	days := int(cfg.Gmail.MonthsBack * 30)
	since := time.Now().AddDate(0, 0, -days)
	query := gmail.BuildQuery(since, cfg.Gmail.SenderFilter)
	logger.Info("scanning emails", "query", query)

	emails, errs := gmailClient.FetchMessages(ctx, query)
	for _, err := range errs {
		logger.Warn("message fetch failed", logging.Err(err))
	}
	if emails == nil && len(errs) > 0 {
		return nil, nil, errs[0]
	}

	var candidates []*reconcile.CandidateEvent
	var scanned []string
	for _, e := range emails {
		if gmail.IsIgnoredSubject(e.Subject, cfg.Gmail.IgnoredSubjects) {
			logger.Debug("skipping ignored subject", logging.SourceID(e.ID))
			continue
		}

		msg := ai.Message{ID: e.ID, Sender: e.Sender, Subject: e.Subject, Date: e.Date, Body: e.Body}
		hasEvents, err := aiClient.Classify(ctx, msg)
		if err != nil {
			logger.Warn("classification failed, skipping message",
				logging.SourceID(e.ID), logging.Err(err))
			continue
		}
		scanned = append(scanned, e.ID)
		if !hasEvents {
			continue
		}

		extracted, err := aiClient.Extract(ctx, msg)
		if err != nil {
			// The message stays out of the scanned list so events it
			// contributed earlier are not retired on its account.
			scanned = scanned[:len(scanned)-1]
			logger.Warn("extraction failed, skipping message",
				logging.SourceID(e.ID), logging.Err(err))
			continue
		}
		candidates = append(candidates, extracted...)
	}

	logger.Info("scan complete",
		slog.Int("emails", len(emails)),
		slog.Int("candidates", len(candidates)))
	return candidates, scanned, nil
}

func loadConfig(path string) (config.Config, *slog.Logger, *time.Location, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logger := logging.Setup(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, nil, err
	}
	cfg.WarnPlaceholders(logger)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("loading timezone %s: %w", cfg.Timezone, err)
	}
	return cfg, logger, loc, nil
}

func newAIClient(cfg config.Config, loc *time.Location, logger *slog.Logger) (*ai.Client, error) {
	apiKey := os.Getenv(cfg.AI.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s is not set", cfg.AI.APIKeyEnv)
	}
	return ai.NewClient(apiKey, cfg.AI.Model, int64(cfg.AI.MaxTokens), cfg.AI.RequestTimeout, loc, logger)
}

func newResolver(cfg config.Config, logger *slog.Logger) *reconcile.Resolver {
	return reconcile.NewResolver(reconcile.RoutingConfig{
		Calendar1: cfg.Calendars.Calendar1,
		Calendar2: cfg.Calendars.Calendar2,
		Teacher1:  cfg.Teachers.Teacher1,
		Teacher2:  cfg.Teachers.Teacher2,
		Teacher3:  cfg.Teachers.Teacher3,
		Teacher4:  cfg.Teachers.Teacher4,
	}, logger)
}
