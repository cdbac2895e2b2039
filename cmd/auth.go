package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mail2cal/internal/google"
)

func newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with Google",
		Long: `Run the Google OAuth flow and store the resulting token locally.
Gmail access is readonly; Calendar access is read/write. The token is
reused by every later run until it is revoked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if google.HasToken() {
				fmt.Println("A Google token already exists. Continuing will replace it.")
			}

			if os.Getenv("MAIL2CAL_GOOGLE_CLIENT_ID") == "" || os.Getenv("MAIL2CAL_GOOGLE_CLIENT_SECRET") == "" {
				return fmt.Errorf("MAIL2CAL_GOOGLE_CLIENT_ID and MAIL2CAL_GOOGLE_CLIENT_SECRET must be set")
			}

			url := google.GetAuthURL()
			fmt.Printf("Open this URL in your browser:\n\n  %s\n\nPaste the authorization code: ", url)

			reader := bufio.NewReader(os.Stdin)
			code, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading authorization code: %w", err)
			}
			code = strings.TrimSpace(code)
			if code == "" {
				return fmt.Errorf("no authorization code provided")
			}

			if err := google.SaveToken(cmd.Context(), code); err != nil {
				return err
			}
			fmt.Println("Token saved.")
			return nil
		},
	}
}
