package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/audiolibrelab/audiorec/internal/recording"
)

type memoryKV struct {
	items map[string]string
}

func newMemoryKV() *memoryKV {
	return &memoryKV{items: make(map[string]string)}
}

func (m *memoryKV) GetItem(_ context.Context, key string) (string, bool, error) {
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *memoryKV) SetItem(_ context.Context, key, value string) error {
	m.items[key] = value
	return nil
}

func TestGetReturnsDefaultsWhenUnset(t *testing.T) {
	s := New(newMemoryKV())
	got, err := s.Get(context.Background())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != Defaults() {
		t.Errorf("Expected defaults, got %+v", got)
	}
}

func TestGetMergesOldBlobWithDefaults(t *testing.T) {
	kv := newMemoryKV()
	// a blob written before autoDeleteDays and namingConvention existed
	kv.items[settingsKey] = `{"quality":"low","format":"wav","autoDelete":true}`

	got, err := New(kv).Get(context.Background())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	want := RecordingSettings{
		Quality:          recording.QualityLow,
		Format:           recording.FormatWAV,
		AutoDelete:       true,
		AutoDeleteDays:   30,
		NamingConvention: NamingTimestamp,
	}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestGetIgnoresCorruptBlob(t *testing.T) {
	kv := newMemoryKV()
	kv.items[settingsKey] = `{not json`
	got, err := New(kv).Get(context.Background())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != Defaults() {
		t.Errorf("Expected defaults for corrupt blob, got %+v", got)
	}
}

func TestSavePatchKeepsOtherFields(t *testing.T) {
	s := New(newMemoryKV())
	ctx := context.Background()

	q := recording.QualityMedium
	if _, err := s.Save(ctx, Patch{Quality: &q}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	on := true
	saved, err := s.Save(ctx, Patch{AutoDelete: &on})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if saved.Quality != recording.QualityMedium || !saved.AutoDelete || saved.Format != recording.FormatM4A {
		t.Errorf("Unexpected merged settings: %+v", saved)
	}

	reread, _ := s.Get(ctx)
	if reread != saved {
		t.Errorf("Persisted settings differ: %+v vs %+v", reread, saved)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	s := New(newMemoryKV())
	zero := 0
	if _, err := s.Save(context.Background(), Patch{AutoDeleteDays: &zero}); !errors.Is(err, recording.ErrInvalid) {
		t.Errorf("Expected ErrInvalid for zero days, got: %v", err)
	}
	bad := NamingConvention("random")
	if _, err := s.Save(context.Background(), Patch{NamingConvention: &bad}); err == nil {
		t.Error("Expected error for unknown naming convention")
	}
}

func TestReset(t *testing.T) {
	s := New(newMemoryKV())
	ctx := context.Background()
	q := recording.QualityLow
	s.Save(ctx, Patch{Quality: &q})

	if _, err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	got, _ := s.Get(ctx)
	if got != Defaults() {
		t.Errorf("Expected defaults after reset, got %+v", got)
	}
}

func TestTheme(t *testing.T) {
	s := New(newMemoryKV())
	ctx := context.Background()

	theme, err := s.Theme(ctx)
	if err != nil || theme != ThemeAuto {
		t.Fatalf("Expected auto by default, got %q err=%v", theme, err)
	}

	if err := s.SaveTheme(ctx, ThemeDark); err != nil {
		t.Fatalf("SaveTheme failed: %v", err)
	}
	if theme, _ := s.Theme(ctx); theme != ThemeDark {
		t.Errorf("Expected dark, got %q", theme)
	}

	if err := s.SaveTheme(ctx, Theme("sepia")); err == nil {
		t.Error("Expected error for unknown theme")
	}
}
