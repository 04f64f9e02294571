package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// Strategy selects how the credential rotator picks its starting key.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyRandom     Strategy = "random"
)

// Style selects the translation register requested from the backend.
type Style string

const (
	StyleNatural  Style = "natural"
	StyleFormal   Style = "formal"
	StyleCasual   Style = "casual"
	StyleLiterary Style = "literary"
)

// Settings is the runtime-tunable translation configuration. It is loaded
// once at startup, mutated through the SettingsStore, and persisted on every
// change.
type Settings struct {
	Credentials        []string          `json:"credentials"`
	Strategy           Strategy          `json:"strategy"`
	Model              string            `json:"model"`
	TargetLanguage     string            `json:"target_language"`
	BatchSize          int               `json:"batch_size"`
	RequestDelayMS     int               `json:"request_delay_ms"`
	MaxRetries         int               `json:"max_retries"`
	Style              Style             `json:"style"`
	Glossary           map[string]string `json:"glossary"`
	StyleGuide         string            `json:"style_guide"`
	ContextWindow      int               `json:"context_window"`
	RotationCursor     int               `json:"rotation_cursor"`
	SkipBadCredentials bool              `json:"skip_bad_credentials"`
}

// DefaultSettings returns the settings used before the user configures
// anything. No credentials are included; the engine prompts for them.
func DefaultSettings() Settings {
	return Settings{
		Credentials:    []string{},
		Strategy:       StrategySequential,
		Model:          "gemini-2.0-flash",
		TargetLanguage: "tr",
		BatchSize:      5,
		RequestDelayMS: 1500,
		MaxRetries:     3,
		Style:          StyleNatural,
		Glossary:       map[string]string{},
		ContextWindow:  2,
	}
}

func (s Settings) Validate() error {
	switch s.Strategy {
	case StrategySequential, StrategyRandom:
	default:
		return fmt.Errorf("invalid strategy: %q", s.Strategy)
	}
	switch s.Style {
	case StyleNatural, StyleFormal, StyleCasual, StyleLiterary:
	default:
		return fmt.Errorf("invalid style: %q", s.Style)
	}
	if s.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1")
	}
	if s.RequestDelayMS < 0 {
		return fmt.Errorf("request_delay_ms must be >= 0")
	}
	if s.ContextWindow < 0 {
		return fmt.Errorf("context_window must be >= 0")
	}
	if strings.TrimSpace(s.Model) == "" {
		return fmt.Errorf("model is required")
	}
	if strings.TrimSpace(s.TargetLanguage) == "" {
		return fmt.Errorf("target_language is required")
	}
	if _, err := language.Parse(s.TargetLanguage); err != nil {
		return fmt.Errorf("invalid target_language: %w", err)
	}
	return nil
}

// SpeedPreset names a fixed batch-size/delay/context configuration. The
// three fields always change together as one atomic settings update.
type SpeedPreset string

const (
	PresetCareful  SpeedPreset = "careful"
	PresetBalanced SpeedPreset = "balanced"
	PresetFast     SpeedPreset = "fast"
)

type presetValues struct {
	BatchSize      int
	RequestDelayMS int
	ContextWindow  int
}

var speedPresets = map[SpeedPreset]presetValues{
	PresetCareful:  {BatchSize: 1, RequestDelayMS: 3000, ContextWindow: 3},
	PresetBalanced: {BatchSize: 5, RequestDelayMS: 1500, ContextWindow: 2},
	PresetFast:     {BatchSize: 10, RequestDelayMS: 500, ContextWindow: 0},
}

// ApplyPreset returns a copy of s with the preset's fields replaced.
func (s Settings) ApplyPreset(preset SpeedPreset) (Settings, error) {
	values, ok := speedPresets[preset]
	if !ok {
		return Settings{}, fmt.Errorf("unknown speed preset: %q", preset)
	}
	next := s
	next.BatchSize = values.BatchSize
	next.RequestDelayMS = values.RequestDelayMS
	next.ContextWindow = values.ContextWindow
	return next, nil
}

// LoadSettingsFile reads settings from disk, returning defaults when the
// file does not exist yet.
func LoadSettingsFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return Settings{}, err
	}
	settings := DefaultSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	if settings.Glossary == nil {
		settings.Glossary = map[string]string{}
	}
	return settings, nil
}

// WriteSettingsFile persists settings with an atomic rename.
func WriteSettingsFile(path string, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// SettingsStore is the read-mostly shared settings owner. Reads return
// snapshots; every update is validated and persisted before it becomes
// visible.
type SettingsStore struct {
	path string

	mu      sync.RWMutex
	current Settings
}

func NewSettingsStore(path string, initial Settings) (*SettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &SettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSettings(s.current)
}

func (s *SettingsStore) Update(next Settings) (Settings, error) {
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	if next.Glossary == nil {
		next.Glossary = map[string]string{}
	}
	if err := WriteSettingsFile(s.path, next); err != nil {
		return Settings{}, err
	}

	s.mu.Lock()
	s.current = cloneSettings(next)
	s.mu.Unlock()
	return next, nil
}

// ApplyPreset mutates the three speed fields as one atomic update.
func (s *SettingsStore) ApplyPreset(preset SpeedPreset) (Settings, error) {
	s.mu.RLock()
	current := cloneSettings(s.current)
	s.mu.RUnlock()

	next, err := current.ApplyPreset(preset)
	if err != nil {
		return Settings{}, err
	}
	return s.Update(next)
}

// SetRotationCursor persists the credential rotation cursor. Only the
// credential rotator calls this.
func (s *SettingsStore) SetRotationCursor(cursor int) {
	s.mu.Lock()
	s.current.RotationCursor = cursor
	snapshot := cloneSettings(s.current)
	s.mu.Unlock()

	// Best effort: the cursor is a fairness hint, losing it is harmless.
	_ = WriteSettingsFile(s.path, snapshot)
}

func cloneSettings(s Settings) Settings {
	ret := s
	ret.Credentials = append([]string(nil), s.Credentials...)
	ret.Glossary = make(map[string]string, len(s.Glossary))
	for k, v := range s.Glossary {
		ret.Glossary[k] = v
	}
	return ret
}
