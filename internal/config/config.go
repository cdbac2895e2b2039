package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GmailConfig describes how school emails are fetched.
type GmailConfig struct {
	// UserID is the Gmail account the messages are read from ("me" works
	// for the authenticated account).
	UserID string `yaml:"user_id"`

	// SenderFilter is a Gmail search fragment restricting which senders
	// are scanned, e.g. "from:colegio.cl".
	SenderFilter string `yaml:"sender_filter"`

	// MonthsBack is how far back to scan when no explicit range is given.
	MonthsBack float64 `yaml:"months_back"`

	// IgnoredSubjects lists exact subjects that are skipped entirely.
	IgnoredSubjects []string `yaml:"ignored_subjects"`
}

// TeacherConfig binds a teacher's address to its calendar routing role.
type TeacherConfig struct {
	// Teacher1 routes to calendar 1 only.
	Teacher1 string `yaml:"teacher_1"`
	// Teacher2 routes to calendar 2 only.
	Teacher2 string `yaml:"teacher_2"`
	// Teacher3 and Teacher4 are the afterschool teachers; both route to
	// both calendars with an afternoon default window.
	Teacher3 string `yaml:"teacher_3"`
	Teacher4 string `yaml:"teacher_4"`
}

// CalendarConfig holds the two target Google Calendar ids.
type CalendarConfig struct {
	Calendar1 string `yaml:"calendar_1"`
	Calendar2 string `yaml:"calendar_2"`
}

// AIConfig configures the Anthropic-backed extraction and scoring service.
type AIConfig struct {
	// Model is the Anthropic model id used for extraction and similarity.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// MaxTokens bounds each response.
	MaxTokens int `yaml:"max_tokens"`

	// RequestTimeout bounds each similarity batch call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Config is the top-level application configuration.
type Config struct {
	Gmail     GmailConfig    `yaml:"gmail"`
	Calendars CalendarConfig `yaml:"calendars"`
	Teachers  TeacherConfig  `yaml:"teachers"`
	AI        AIConfig       `yaml:"ai"`

	// StorePath is the mapping store location.
	StorePath string `yaml:"store_path"`

	// WindowDays is the trailing window, in days, used by the fingerprint
	// index when collecting duplicate candidates.
	WindowDays int `yaml:"window_days"`

	// Workers bounds concurrent calendar API calls.
	Workers int `yaml:"workers"`

	// Timezone is the IANA zone used for timed calendar events.
	Timezone string `yaml:"timezone"`

	// LogLevel is the slog level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration defaults. Calendar ids and teacher
// addresses have no sensible defaults and must come from the file.
func Default() Config {
	return Config{
		Gmail: GmailConfig{
			UserID:          "me",
			MonthsBack:      2,
			IgnoredSubjects: []string{"Alerta de Inasistencia a Clases"},
		},
		AI: AIConfig{
			Model:          "claude-sonnet-4-20250514",
			APIKeyEnv:      "ANTHROPIC_API_KEY",
			MaxTokens:      3000,
			RequestTimeout: 30 * time.Second,
		},
		StorePath:  "event_mappings.json",
		WindowDays: 14,
		Workers:    4,
		Timezone:   "America/Santiago",
		LogLevel:   "info",
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mail2cal.yaml"
	}
	return filepath.Join(home, ".config", "mail2cal", "config.yaml")
}

// Load reads the YAML config at path, applying defaults for absent fields.
// A missing file is an error: the calendar ids and teacher addresses cannot
// be invented.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("config file %s not found: %w", path, err)
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Calendars.Calendar1 == "" || c.Calendars.Calendar2 == "" {
		return fmt.Errorf("both calendars.calendar_1 and calendars.calendar_2 must be set")
	}
	if c.Calendars.Calendar1 == c.Calendars.Calendar2 {
		return fmt.Errorf("calendars.calendar_1 and calendars.calendar_2 must differ")
	}
	if c.AI.Model == "" {
		return fmt.Errorf("ai.model must be set")
	}
	if c.AI.MaxTokens <= 0 {
		return fmt.Errorf("ai.max_tokens must be positive (got %d)", c.AI.MaxTokens)
	}
	if c.AI.RequestTimeout <= 0 {
		return fmt.Errorf("ai.request_timeout must be positive (got %v)", c.AI.RequestTimeout)
	}
	if c.WindowDays <= 0 {
		return fmt.Errorf("window_days must be positive (got %d)", c.WindowDays)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive (got %d)", c.Workers)
	}
	if c.StorePath == "" {
		return fmt.Errorf("store_path must be set")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// TeacherAddresses returns the configured teacher addresses in role order.
// Empty entries are omitted.
func (c Config) TeacherAddresses() []string {
	var out []string
	for _, addr := range []string{c.Teachers.Teacher1, c.Teachers.Teacher2, c.Teachers.Teacher3, c.Teachers.Teacher4} {
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// WarnPlaceholders logs any teacher address that looks unconfigured.
// Unconfigured teachers fall through to dual-calendar routing, so this is
// surfaced once at startup rather than once per event.
func (c Config) WarnPlaceholders(logger *slog.Logger) {
	for role, addr := range map[string]string{
		"teacher_1": c.Teachers.Teacher1,
		"teacher_2": c.Teachers.Teacher2,
		"teacher_3": c.Teachers.Teacher3,
		"teacher_4": c.Teachers.Teacher4,
	} {
		if addr == "" {
			logger.Warn("teacher address not configured; events from this teacher will route to both calendars",
				slog.String("role", role))
			continue
		}
		lower := strings.ToLower(addr)
		if strings.Contains(lower, "example.com") || strings.Contains(lower, "teacher") {
			logger.Warn("teacher address looks like a placeholder",
				slog.String("role", role), slog.String("address", addr))
		}
	}
}

// WriteDefault writes a commented starter config to path with 0600
// permissions, creating parent directories as needed. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
