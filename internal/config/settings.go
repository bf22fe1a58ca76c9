package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

// SettingsStore is a section-keyed string map persisted to its own YAML
// file. It backs the small mutable settings the core writes at runtime
// (currently the schedule_collection section); the store itself is
// agnostic to section names.
//
// Every Set persists immediately, mirroring write-through INI semantics.
type SettingsStore struct {
	path string

	mu       sync.RWMutex
	sections map[string]map[string]string
}

// SectionScheduleCollection holds the recurring collection-reminder
// campaign settings.
const SectionScheduleCollection = "schedule_collection"

func OpenSettings(path string) (*SettingsStore, error) {
	s := &SettingsStore{path: path, sections: map[string]map[string]string{}}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(b, &s.sections); err != nil {
		return nil, err
	}
	if s.sections == nil {
		s.sections = map[string]map[string]string{}
	}
	return s, nil
}

func (s *SettingsStore) Get(section, key, fallback string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sec, ok := s.sections[section]; ok {
		if v, ok := sec[key]; ok {
			return v
		}
	}
	return fallback
}

func (s *SettingsStore) GetBool(section, key string, fallback bool) bool {
	raw := s.Get(section, key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return fallback
	}
	return v
}

// Section returns a copy of all keys in a section; empty map when absent.
func (s *SettingsStore) Section(name string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]string{}
	for k, v := range s.sections[name] {
		out[k] = v
	}
	return out
}

func (s *SettingsStore) Set(section, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[section]
	if !ok {
		sec = map[string]string{}
		s.sections[section] = sec
	}
	sec[key] = value
	return s.saveLocked()
}

// SetAll writes a whole section in one persist.
func (s *SettingsStore) SetAll(section string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[section]
	if !ok {
		sec = map[string]string{}
		s.sections[section] = sec
	}
	for k, v := range values {
		sec[k] = v
	}
	return s.saveLocked()
}

func (s *SettingsStore) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(s.sections)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
