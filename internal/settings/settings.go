package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/audiolibrelab/audiorec/internal/recording"
)

const (
	settingsKey = "audiorec:settings"
	themeKey    = "audiorec:theme"
)

// KV is the persisted key/value storage the settings live in
type KV interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
}

// NamingConvention decides how new recordings are titled
type NamingConvention string

const (
	NamingTimestamp NamingConvention = "timestamp"
	NamingCustom    NamingConvention = "custom"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeAuto  Theme = "auto"
)

// RecordingSettings is the process-wide recording preference record
type RecordingSettings struct {
	Quality          recording.Quality `json:"quality" yaml:"quality"`
	Format           recording.Format  `json:"format" yaml:"format"`
	AutoDelete       bool              `json:"autoDelete" yaml:"autoDelete"`
	AutoDeleteDays   int               `json:"autoDeleteDays" yaml:"autoDeleteDays"`
	NamingConvention NamingConvention  `json:"namingConvention" yaml:"namingConvention"`
}

// Defaults returns the built-in settings
func Defaults() RecordingSettings {
	return RecordingSettings{
		Quality:          recording.QualityHigh,
		Format:           recording.FormatM4A,
		AutoDelete:       false,
		AutoDeleteDays:   30,
		NamingConvention: NamingTimestamp,
	}
}

// Validate checks every enum and the day count
func (s RecordingSettings) Validate() error {
	if _, err := recording.ParseQuality(string(s.Quality)); err != nil {
		return err
	}
	if _, err := recording.ParseFormat(string(s.Format)); err != nil {
		return err
	}
	if s.AutoDeleteDays <= 0 {
		return fmt.Errorf("%w: autoDeleteDays must be positive, got %d", recording.ErrInvalid, s.AutoDeleteDays)
	}
	switch s.NamingConvention {
	case NamingTimestamp, NamingCustom:
	default:
		return fmt.Errorf("%w: unknown naming convention %q", recording.ErrInvalid, s.NamingConvention)
	}
	return nil
}

// Patch is a partial settings change; nil fields keep their current value
type Patch struct {
	Quality          *recording.Quality `json:"quality,omitempty"`
	Format           *recording.Format  `json:"format,omitempty"`
	AutoDelete       *bool              `json:"autoDelete,omitempty"`
	AutoDeleteDays   *int               `json:"autoDeleteDays,omitempty"`
	NamingConvention *NamingConvention  `json:"namingConvention,omitempty"`
}

func (p Patch) apply(s *RecordingSettings) {
	if p.Quality != nil {
		s.Quality = *p.Quality
	}
	if p.Format != nil {
		s.Format = *p.Format
	}
	if p.AutoDelete != nil {
		s.AutoDelete = *p.AutoDelete
	}
	if p.AutoDeleteDays != nil {
		s.AutoDeleteDays = *p.AutoDeleteDays
	}
	if p.NamingConvention != nil {
		s.NamingConvention = *p.NamingConvention
	}
}

// Store reads and writes settings through a KV
type Store struct {
	kv KV
}

func New(kv KV) *Store {
	return &Store{kv: kv}
}

// Get returns the persisted settings merged over the defaults. Fields
// missing from an older blob keep their default value.
func (s *Store) Get(ctx context.Context) (RecordingSettings, error) {
	current := Defaults()
	raw, found, err := s.kv.GetItem(ctx, settingsKey)
	if err != nil {
		return current, fmt.Errorf("failed to read settings: %w", err)
	}
	if !found {
		return current, nil
	}
	merged := current
	if err := json.Unmarshal([]byte(raw), &merged); err != nil {
		slog.Warn("Ignoring unreadable settings, using defaults", "error", err)
		return current, nil
	}
	if err := merged.Validate(); err != nil {
		slog.Warn("Ignoring invalid settings, using defaults", "error", err)
		return current, nil
	}
	return merged, nil
}

// Save merges patch into the current settings and persists the result
func (s *Store) Save(ctx context.Context, patch Patch) (RecordingSettings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return current, err
	}
	patch.apply(&current)
	if err := current.Validate(); err != nil {
		return current, err
	}
	if err := s.write(ctx, current); err != nil {
		return current, err
	}
	slog.Debug("Settings saved", "settings", current)
	return current, nil
}

// Reset persists the defaults
func (s *Store) Reset(ctx context.Context) (RecordingSettings, error) {
	defaults := Defaults()
	return defaults, s.write(ctx, defaults)
}

func (s *Store) write(ctx context.Context, settings RecordingSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := s.kv.SetItem(ctx, settingsKey, string(data)); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// Theme returns the stored theme preference, auto when unset
func (s *Store) Theme(ctx context.Context) (Theme, error) {
	raw, found, err := s.kv.GetItem(ctx, themeKey)
	if err != nil {
		return ThemeAuto, fmt.Errorf("failed to read theme: %w", err)
	}
	if !found {
		return ThemeAuto, nil
	}
	theme, err := ParseTheme(raw)
	if err != nil {
		return ThemeAuto, nil
	}
	return theme, nil
}

func (s *Store) SaveTheme(ctx context.Context, theme Theme) error {
	if _, err := ParseTheme(string(theme)); err != nil {
		return err
	}
	if err := s.kv.SetItem(ctx, themeKey, string(theme)); err != nil {
		return fmt.Errorf("failed to save theme: %w", err)
	}
	return nil
}

func ParseTheme(s string) (Theme, error) {
	switch t := Theme(s); t {
	case ThemeLight, ThemeDark, ThemeAuto:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown theme %q (must be light, dark or auto)", recording.ErrInvalid, s)
}
