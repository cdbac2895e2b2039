// Package google provides shared OAuth2 authentication for the Gmail and
// Calendar clients.
//
// Tokens are stored on disk under the user cache directory
// (~/.cache/mail2cal/ on Linux) and are shared by every Google-backed
// client in the application. The OAuth client credentials are read from
// the MAIL2CAL_GOOGLE_CLIENT_ID and MAIL2CAL_GOOGLE_CLIENT_SECRET
// environment variables.
package google
