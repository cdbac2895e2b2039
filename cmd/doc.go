// Package cmd implements the command-line interface for mail2cal.
//
// This package provides the following commands:
//   - sync: Scan school emails and reconcile both calendars (the default)
//   - preview: Show what sync would extract without writing anything
//   - auth: Run the Google OAuth flow and store the token
//   - init: Write a starter config file
//   - version: Display version information
//
// The sync command is the default command when no subcommand is specified.
package cmd
