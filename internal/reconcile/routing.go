package reconcile

import (
	"log/slog"
	"strings"
	"time"

	"mail2cal/internal/logging"
)

// RoutingConfig carries the identities the resolver matches against and
// the two target calendars.
type RoutingConfig struct {
	Calendar1 string
	Calendar2 string

	Teacher1 string
	Teacher2 string
	Teacher3 string
	Teacher4 string
}

// Resolver maps a sender to calendars and a default time window. Matching
// is case-insensitive containment against the full sender header, so
// display names around the address do not matter.
type Resolver struct {
	cfg    RoutingConfig
	logger *slog.Logger
}

// NewResolver builds a resolver. Unconfigured identities simply never
// match.
func NewResolver(cfg RoutingConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cfg: cfg, logger: logger}
}

// Resolve returns the routing decision for a sender. Teacher one and two
// route to their own calendar with a morning default window, the
// afterschool identities route to both calendars with an afternoon
// window, and anything else routes to both calendars as all-day. An
// explicit time on the event always overrides the default window; that
// override happens where the event is built, not here.
func (r *Resolver) Resolve(sender string) RoutingDecision {
	s := strings.ToLower(sender)
	match := func(addr string) bool {
		addr = strings.ToLower(strings.TrimSpace(addr))
		return addr != "" && strings.Contains(s, addr)
	}

	switch {
	case match(r.cfg.Teacher1):
		return RoutingDecision{
			Calendars:    []string{r.cfg.Calendar1},
			Category:     SenderTeacher1,
			DefaultStart: 8 * time.Hour,
			DefaultEnd:   10 * time.Hour,
		}
	case match(r.cfg.Teacher2):
		return RoutingDecision{
			Calendars:    []string{r.cfg.Calendar2},
			Category:     SenderTeacher2,
			DefaultStart: 8 * time.Hour,
			DefaultEnd:   10 * time.Hour,
		}
	case match(r.cfg.Teacher3), match(r.cfg.Teacher4):
		return RoutingDecision{
			Calendars:    []string{r.cfg.Calendar1, r.cfg.Calendar2},
			Category:     SenderAfterschool,
			DefaultStart: 13 * time.Hour,
			DefaultEnd:   15 * time.Hour,
		}
	}

	r.logger.Warn("sender matched no configured identity, routing to both calendars",
		logging.Operation("route"),
		logging.Sender(sender),
		logging.Domain(sender))
	return RoutingDecision{
		Calendars: []string{r.cfg.Calendar1, r.cfg.Calendar2},
		Category:  SenderOther,
		AllDay:    true,
	}
}
