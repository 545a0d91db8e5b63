package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultScenarioName = "pointer-tracking"
	DefaultOrigin       = "https://app.example"
	DefaultDepth        = 2
	MaxDepth            = 8
)

// Scenario describes a replay: a chain of nested workers that receive a
// mirror of the top realm's global, and the events dispatched on it.
type Scenario struct {
	Name   string      `toml:"name"`
	Origin string      `toml:"origin"`
	Depth  int         `toml:"depth"`
	Events []EventSpec `toml:"events"`
}

type EventSpec struct {
	Type    string `toml:"type"`
	OffsetX int    `toml:"offset_x"`
	OffsetY int    `toml:"offset_y"`
	Repeat  int    `toml:"repeat"`
}

func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err := ParseScenario(data)
	if err != nil {
		return Scenario{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return cfg, nil
}

// ParseScenario decodes, defaults and validates a scenario document.
func ParseScenario(data []byte) (Scenario, error) {
	var cfg Scenario
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Scenario{}, err
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = DefaultScenarioName
	}
	if strings.TrimSpace(cfg.Origin) == "" {
		cfg.Origin = DefaultOrigin
	}
	if cfg.Depth == 0 {
		cfg.Depth = DefaultDepth
	}
	for i := range cfg.Events {
		cfg.Events[i].Type = strings.TrimSpace(cfg.Events[i].Type)
		if cfg.Events[i].Repeat == 0 {
			cfg.Events[i].Repeat = 1
		}
	}
	if err := ValidateScenario(cfg); err != nil {
		return Scenario{}, err
	}
	return cfg, nil
}

func ValidateScenario(cfg Scenario) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("scenario missing name")
	}
	u, err := url.Parse(cfg.Origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("scenario origin %q is not scheme://host", cfg.Origin)
	}
	if cfg.Depth < 1 || cfg.Depth > MaxDepth {
		return fmt.Errorf("scenario depth %d outside 1..%d", cfg.Depth, MaxDepth)
	}
	for i, ev := range cfg.Events {
		if err := ValidateEvent(ev); err != nil {
			return fmt.Errorf("events[%d] invalid: %w", i, err)
		}
	}
	return nil
}

func ValidateEvent(ev EventSpec) error {
	if strings.TrimSpace(ev.Type) == "" {
		return fmt.Errorf("type is required")
	}
	if ev.Repeat < 0 {
		return fmt.Errorf("repeat must not be negative")
	}
	return nil
}

// Dispatches counts the events a scenario fires.
func (s Scenario) Dispatches() int {
	n := 0
	for _, ev := range s.Events {
		n += ev.Repeat
	}
	return n
}
