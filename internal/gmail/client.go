package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mail2cal/internal/google"
	"mail2cal/internal/logging"
)

// Client wraps the Gmail Users service.
type Client struct {
	svc    *gmail.UsersService
	userID string
	logger *slog.Logger
}

// HasToken checks if a valid OAuth token exists.
func HasToken() bool {
	return google.HasToken()
}

// NewClient creates a Gmail client with OAuth2 authentication.
func NewClient(ctx context.Context, userID string) (*Client, error) {
	httpClient, err := google.GetHTTPClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("no valid Google OAuth token found: %w. Run the auth command first", err)
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}
	if userID == "" {
		userID = "me"
	}
	return &Client{
		svc:    svc.Users,
		userID: userID,
		logger: logging.WithService(slog.Default(), "gmail"),
	}, nil
}

// BuildQuery assembles a Gmail search query for messages received since
// the given time. senderFilter is a raw Gmail search fragment such as
// "from:colegio.cl" and may be empty.
func BuildQuery(since time.Time, senderFilter string) string {
	q := fmt.Sprintf("after:%s", since.Format("2006/01/02"))
	if f := strings.TrimSpace(senderFilter); f != "" {
		q += " " + f
	}
	return q
}

// FetchMessages returns every message matching the query, fully resolved.
// Messages that fail to load individually are skipped with an error list
// so one bad message never hides the rest.
func (c *Client) FetchMessages(ctx context.Context, query string) ([]*Email, []error) {
	var ids []string
	pageToken := ""
	for {
		req := c.svc.Messages.List(c.userID).Q(query).Context(ctx)
		if pageToken != "" {
			req.PageToken(pageToken)
		}
		res, err := req.Do()
		if err != nil {
			return nil, []error{fmt.Errorf("listing messages: %w", err)}
		}
		for _, m := range res.Messages {
			ids = append(ids, m.Id)
		}
		pageToken = res.NextPageToken
		if pageToken == "" {
			break
		}
	}

	var emails []*Email
	var errs []error
	for _, id := range ids {
		msg, err := c.svc.Messages.Get(c.userID, id).Format("full").Context(ctx).Do()
		if err != nil {
			c.logger.Warn("fetching message failed",
				logging.Operation("fetch_messages"),
				logging.SourceID(id),
				logging.Status(logging.StatusError),
				logging.Err(err))
			errs = append(errs, fmt.Errorf("fetching message %s: %w", id, err))
			continue
		}
		emails = append(emails, ParseMessage(msg))
	}
	c.logger.Debug("fetched messages",
		logging.Operation("fetch_messages"),
		logging.Status(logging.StatusSuccess),
		slog.Int("messages", len(emails)))
	return emails, errs
}
