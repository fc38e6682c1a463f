package engine

import (
	"path/filepath"
	"testing"

	"github.com/coffersTech/eventscope/internal/model"
)

func TestPresetRoundTrip(t *testing.T) {
	c := NewCriteria()
	c.IDInput = "7036, !7040"
	c.Levels[model.LevelVerbose] = false
	c.Provider = "kernel"
	c.Query = "disk"
	c.UseRegex = true
	c.RecompileIDs()
	c.RecomputeTimeRange()

	path := filepath.Join(t.TempDir(), "presets.json")
	if err := SavePresets(path, []Preset{NewPreset("disk issues", c)}); err != nil {
		t.Fatalf("SavePresets: %v", err)
	}

	presets, err := LoadPresets(path)
	if err != nil {
		t.Fatalf("LoadPresets: %v", err)
	}
	if len(presets) != 1 || presets[0].Name != "disk issues" {
		t.Fatalf("presets = %+v", presets)
	}

	restored := NewCriteria()
	presets[0].Apply(restored)

	if restored.IDInput != c.IDInput || restored.Query != c.Query ||
		restored.Provider != c.Provider || !restored.UseRegex {
		t.Errorf("restored = %+v", restored)
	}
	// Apply runs the derive steps, so the preset is immediately active.
	diskRecord := func(id uint32) *model.Record {
		return testRecord(func(r *model.Record) {
			r.EventID = id
			r.Message = "disk failure imminent"
		})
	}
	if !restored.Matches(diskRecord(7036)) {
		t.Error("included ID must match after Apply")
	}
	if restored.Matches(diskRecord(7040)) {
		t.Error("excluded ID must not match after Apply")
	}
	if got := restored.ActiveCount(); got != c.ActiveCount() {
		t.Errorf("ActiveCount = %d, want %d", got, c.ActiveCount())
	}
}

func TestLoadPresetsMissingFile(t *testing.T) {
	presets, err := LoadPresets(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("missing file must not error, got %v", err)
	}
	if presets != nil {
		t.Errorf("presets = %v, want none", presets)
	}
}
