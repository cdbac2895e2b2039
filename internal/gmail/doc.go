// Package gmail fetches school emails and reduces them to plain text
// for event extraction.
//
// The client authenticates through the shared Google OAuth flow in
// internal/google and only requires the readonly Gmail scope. Message
// bodies prefer text/plain parts; HTML-only messages are tag-stripped.
// Attachment contents are never downloaded, only their filenames are
// surfaced so the extractor knows a flyer or circular exists.
package gmail
