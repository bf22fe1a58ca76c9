package config

import (
	"path/filepath"
	"testing"
)

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.yaml")

	s, err := OpenSettings(path)
	if err != nil {
		t.Fatalf("OpenSettings: %v", err)
	}
	if got := s.Get(SectionScheduleCollection, "time", "09:00"); got != "09:00" {
		t.Fatalf("fallback = %q, want 09:00", got)
	}

	if err := s.Set(SectionScheduleCollection, "time", "14:30"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(SectionScheduleCollection, "enabled", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Reopen from disk and verify persistence.
	s2, err := OpenSettings(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := s2.Get(SectionScheduleCollection, "time", ""); got != "14:30" {
		t.Fatalf("time = %q, want 14:30", got)
	}
	if !s2.GetBool(SectionScheduleCollection, "enabled", false) {
		t.Fatal("enabled should persist as true")
	}

	sec := s2.Section(SectionScheduleCollection)
	if len(sec) != 2 {
		t.Fatalf("section size = %d, want 2", len(sec))
	}
}

func TestSettingsMissingSection(t *testing.T) {
	t.Parallel()
	s, err := OpenSettings(filepath.Join(t.TempDir(), "s.yaml"))
	if err != nil {
		t.Fatalf("OpenSettings: %v", err)
	}
	if got := s.Section("nope"); len(got) != 0 {
		t.Fatalf("expected empty section, got %v", got)
	}
	if s.GetBool("nope", "enabled", false) {
		t.Fatal("missing bool should fall back")
	}
}

func TestConfigNormalizeDefaults(t *testing.T) {
	t.Parallel()
	cfg := Default()
	if cfg.CountryCode != "55" {
		t.Fatalf("CountryCode = %q", cfg.CountryCode)
	}
	if cfg.Reconnect.Attempts != 20 {
		t.Fatalf("Reconnect.Attempts = %d", cfg.Reconnect.Attempts)
	}
	if cfg.Pacing.MaxDelay < cfg.Pacing.MinDelay {
		t.Fatal("pacing window inverted")
	}
}
