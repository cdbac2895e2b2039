package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation = "operation"
	KeyService   = "service"
	KeyCalendar  = "calendar"
	KeyEventID   = "event_id"
	KeySource    = "source_id"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyScore     = "score"
	KeyDecision  = "decision"
)

// Status values for consistent logging.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Setup installs a text handler on stderr at the given level and returns
// the root logger. Level strings follow slog naming (debug, info, warn, error).
func Setup(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(Operation(operation))
}

// WithService returns a logger with the service attribute set.
func WithService(logger *slog.Logger, service string) *slog.Logger {
	return logger.With(Service(service))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Service returns a slog attribute for the service name.
func Service(svc string) slog.Attr {
	return slog.String(KeyService, svc)
}

// Calendar returns a slog attribute for a calendar id.
func Calendar(id string) slog.Attr {
	return slog.String(KeyCalendar, id)
}

// EventID returns a slog attribute for a tracked event id.
func EventID(id string) slog.Attr {
	return slog.String(KeyEventID, id)
}

// SourceID returns a slog attribute for a source document id.
func SourceID(id string) slog.Attr {
	return slog.String(KeySource, id)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Score returns a slog attribute for a similarity score.
func Score(score float64) slog.Attr {
	return slog.Float64(KeyScore, score)
}

// Decision returns a slog attribute for a merge decision.
func Decision(decision string) slog.Attr {
	return slog.String(KeyDecision, decision)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from
// output, so Err(maybeNilErr) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail returns a hashed representation of an email for logging
// purposes. This allows correlation of log entries without exposing PII.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "sender:" + hex.EncodeToString(hash[:8])
}

// Sender returns a slog attribute with the anonymized sender address.
func Sender(email string) slog.Attr {
	return slog.String("sender_hash", AnonymizeEmail(email))
}

// ExtractDomain extracts the domain part from an email address.
// Useful for lower-cardinality logging where the full address would
// create too many unique values.
func ExtractDomain(email string) string {
	if email == "" {
		return ""
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSuffix(parts[1], ">")
}

// Domain returns a slog attribute for the sender domain.
func Domain(email string) slog.Attr {
	return slog.String("sender_domain", ExtractDomain(email))
}
