package google

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"
)

// Scopes required by mail2cal: read-only mail access plus full calendar
// access for creating, updating and deleting entries.
var Scopes = []string{
	gmail.GmailReadonlyScope,
	calendar.CalendarScope,
}

// HasToken checks if a valid OAuth token exists
func HasToken() bool {
	_, err := os.ReadFile(tokenFile())
	return err == nil
}

// GetAuthURL returns the OAuth URL for user authorization
func GetAuthURL() string {
	conf := GetOAuthConfig()
	return conf.AuthCodeURL("state", oauth2.AccessTypeOffline)
}

// SaveToken exchanges an authorization code for tokens and saves them
func SaveToken(ctx context.Context, authCode string) error {
	conf := GetOAuthConfig()

	t, err := conf.Exchange(ctx, authCode)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}

	file := tokenFile()
	if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tokenData := t.AccessToken + " " + t.RefreshToken
	if err := os.WriteFile(file, []byte(tokenData), 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

// GetOAuthConfig returns the OAuth2 configuration for the Google services
// mail2cal talks to. Client credentials come from the environment so the
// binary carries no secrets.
func GetOAuthConfig() *oauth2.Config {
	const OOB = "urn:ietf:wg:oauth:2.0:oob"
	return &oauth2.Config{
		ClientID:     os.Getenv("MAIL2CAL_GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("MAIL2CAL_GOOGLE_CLIENT_SECRET"),
		Endpoint:     google.Endpoint,
		RedirectURL:  OOB,
		Scopes:       Scopes,
	}
}

// GetTokenSource returns an OAuth2 token source for the stored token.
// Returns an error if no valid token exists.
func GetTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	conf := GetOAuthConfig()

	slurp, err := os.ReadFile(tokenFile())
	if err != nil {
		return nil, fmt.Errorf("no valid Google OAuth token found; run 'mail2cal auth' first")
	}

	f := strings.Fields(strings.TrimSpace(string(slurp)))
	if len(f) != 2 {
		return nil, fmt.Errorf("invalid token format in %s", tokenFile())
	}

	ts := conf.TokenSource(ctx, &oauth2.Token{
		AccessToken:  f[0],
		TokenType:    "Bearer",
		RefreshToken: f[1],
		Expiry:       time.Unix(1, 0),
	})

	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("cached token is invalid: %w", err)
	}

	return ts, nil
}

// GetHTTPClient returns an HTTP client configured with OAuth2 authentication.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors
// seen with the Google API endpoints.
func GetHTTPClient(ctx context.Context) (*http.Client, error) {
	ts, err := GetTokenSource(ctx)
	if err != nil {
		return nil, err
	}

	client := oauth2.NewClient(ctx, ts)

	transport := client.Transport.(*oauth2.Transport)
	transport.Base = &http.Transport{
		ForceAttemptHTTP2: false,
	}

	return client, nil
}

func tokenFile() string {
	return filepath.Join(userCacheDir(), "mail2cal", "google.token")
}

func userCacheDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Caches")
	case "windows":
		for _, ev := range []string{"TEMP", "TMP"} {
			if v := os.Getenv(ev); v != "" {
				return v
			}
		}
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return xdg
	}
	return filepath.Join(homeDir(), ".cache")
}

func homeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
	}
	return os.Getenv("HOME")
}
