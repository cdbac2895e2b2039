package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"mail2cal/internal/google"
	"mail2cal/internal/logging"
	"mail2cal/internal/store"
)

// Client wraps the Google Calendar events service. All mutations share
// one rate limiter so concurrent writes stay inside API quotas.
type Client struct {
	svc     *calendar.EventsService
	limiter *rate.Limiter
	tz      string
	logger  *slog.Logger
}

// HasToken checks if a valid OAuth token exists.
func HasToken() bool {
	return google.HasToken()
}

// NewClient creates a Calendar client with OAuth2 authentication. tz is
// the IANA timezone applied to timed events.
func NewClient(ctx context.Context, tz string) (*Client, error) {
	httpClient, err := google.GetHTTPClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("no valid Google OAuth token found: %w. Run the auth command first", err)
	}

	svc, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}
	return &Client{
		svc:     svc.Events,
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		tz:      tz,
		logger:  logging.WithService(slog.Default(), "calendar"),
	}, nil
}

// CreateEvent inserts the event on the given calendar and returns the
// native event ID.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, ev *store.TrackedEvent) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	created, err := c.svc.Insert(calendarID, BuildEvent(ev, c.tz)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("creating event on %s: %w", calendarID, err)
	}
	c.logger.Debug("created event",
		logging.Operation("create_event"),
		logging.Calendar(calendarID),
		logging.EventID(ev.ID),
		logging.Status(logging.StatusSuccess))
	return created.Id, nil
}

// UpdateEvent replaces the managed fields of an existing entry.
func (c *Client) UpdateEvent(ctx context.Context, calendarID, nativeID string, ev *store.TrackedEvent) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.svc.Update(calendarID, nativeID, BuildEvent(ev, c.tz)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("updating event %s on %s: %w", nativeID, calendarID, err)
	}
	return nil
}

// DeleteEvent removes an entry. An entry that is already gone counts as
// success so deletions stay idempotent across runs.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, nativeID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	err := c.svc.Delete(calendarID, nativeID).Context(ctx).Do()
	if err != nil {
		if !isGone(err) {
			return fmt.Errorf("deleting event %s on %s: %w", nativeID, calendarID, err)
		}
		c.logger.Debug("entry already gone",
			logging.Operation("delete_event"),
			logging.Calendar(calendarID),
			logging.Status(logging.StatusSkipped))
	}
	return nil
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 404 || apiErr.Code == 410
	}
	return false
}
