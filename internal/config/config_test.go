package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validConfig = `
calendars:
  calendar_1: classA@group.calendar.google.com
  calendar_2: classB@group.calendar.google.com
teachers:
  teacher_1: ana.perez@colegio.cl
  teacher_2: maria.soto@colegio.cl
  teacher_3: taller1@colegio.cl
  teacher_4: taller2@colegio.cl
gmail:
  sender_filter: "from:colegio.cl"
`

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "me", cfg.Gmail.UserID)
	assert.Equal(t, 14, cfg.WindowDays)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "America/Santiago", cfg.Timezone)
	assert.Equal(t, "event_mappings.json", cfg.StorePath)
	assert.Contains(t, cfg.Gmail.IgnoredSubjects, "Alerta de Inasistencia a Clases")
	assert.Equal(t, "classA@group.calendar.google.com", cfg.Calendars.Calendar1)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MissingCalendars(t *testing.T) {
	path := writeConfig(t, `
calendars:
  calendar_1: only-one@group.calendar.google.com
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "calendar_2")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Default()
		cfg.Calendars.Calendar1 = "a@calendar"
		cfg.Calendars.Calendar2 = "b@calendar"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "identical calendars",
			mutate:  func(c *Config) { c.Calendars.Calendar2 = c.Calendars.Calendar1 },
			wantErr: "must differ",
		},
		{
			name:    "zero window",
			mutate:  func(c *Config) { c.WindowDays = 0 },
			wantErr: "window_days",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Workers = 0 },
			wantErr: "workers",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Timezone = "Mars/Olympus" },
			wantErr: "timezone",
		},
		{
			name:    "empty store path",
			mutate:  func(c *Config) { c.StorePath = "" },
			wantErr: "store_path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestTeacherAddresses(t *testing.T) {
	cfg := Default()
	cfg.Teachers.Teacher1 = "ana@colegio.cl"
	cfg.Teachers.Teacher3 = "taller@colegio.cl"

	addrs := cfg.TeacherAddresses()
	assert.Equal(t, []string{"ana@colegio.cl", "taller@colegio.cl"}, addrs)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	require.NoError(t, WriteDefault(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Refuses to overwrite.
	assert.Error(t, WriteDefault(path))
}
