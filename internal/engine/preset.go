package engine

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/coffersTech/eventscope/internal/model"
)

// Preset is a named, serializable snapshot of filter criteria.
type Preset struct {
	Name          string                 `json:"name"`
	IDInput       string                 `json:"event_ids,omitempty"`
	Levels        [model.LevelCount]bool `json:"levels"`
	Provider      string                 `json:"provider,omitempty"`
	Query         string                 `json:"query,omitempty"`
	CaseSensitive bool                   `json:"case_sensitive,omitempty"`
	UseRegex      bool                   `json:"use_regex,omitempty"`
	TimeFromInput string                 `json:"time_from,omitempty"`
	TimeToInput   string                 `json:"time_to,omitempty"`
}

// NewPreset snapshots criteria under a name.
func NewPreset(name string, c *Criteria) Preset {
	return Preset{
		Name:          name,
		IDInput:       c.IDInput,
		Levels:        c.Levels,
		Provider:      c.Provider,
		Query:         c.Query,
		CaseSensitive: c.CaseSensitive,
		UseRegex:      c.UseRegex,
		TimeFromInput: c.TimeFromInput,
		TimeToInput:   c.TimeToInput,
	}
}

// Apply copies the preset into criteria and runs both derive steps, so
// the result is immediately usable for matching.
func (p Preset) Apply(c *Criteria) {
	c.IDInput = p.IDInput
	c.Levels = p.Levels
	c.Provider = p.Provider
	c.Query = p.Query
	c.CaseSensitive = p.CaseSensitive
	c.UseRegex = p.UseRegex
	c.TimeFromInput = p.TimeFromInput
	c.TimeToInput = p.TimeToInput
	c.RecompileIDs()
	c.RecomputeTimeRange()
}

// LoadPresets reads a preset file. A missing file is an empty list.
func LoadPresets(path string) ([]Preset, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	var presets []Preset
	if err := json.Unmarshal(b, &presets); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	return presets, nil
}

// SavePresets writes the preset list atomically via a temp file rename.
func SavePresets(path string, presets []Preset) error {
	b, err := json.MarshalIndent(presets, "", "  ")
	if err != nil {
		return fmt.Errorf("encode presets: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write presets: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save presets: %w", err)
	}
	return nil
}
