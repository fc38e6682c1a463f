package model

import (
	"testing"
	"time"
)

func TestClampLevel(t *testing.T) {
	tests := []struct {
		level uint8
		want  int
	}{
		{0, 0},
		{2, 2},
		{5, 5},
		{6, 5},
		{255, 5},
	}
	for _, tt := range tests {
		if got := ClampLevel(tt.level); got != tt.want {
			t.Errorf("ClampLevel(%d) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestLevelName(t *testing.T) {
	tests := []struct {
		level uint8
		want  string
	}{
		{0, "LogAlways"},
		{1, "Critical"},
		{2, "Error"},
		{3, "Warning"},
		{4, "Information"},
		{5, "Verbose"},
		{99, "Verbose"}, // out-of-range clamps, never panics
	}
	for _, tt := range tests {
		if got := LevelName(tt.level); got != tt.want {
			t.Errorf("LevelName(%d) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestDisplayMessage(t *testing.T) {
	r := &Record{Message: "formatted"}
	if got := r.DisplayMessage(); got != "formatted" {
		t.Errorf("got %q", got)
	}

	r = &Record{EventData: []DataPair{{Name: "ProgramName", Value: "explorer.exe"}}}
	if got := r.DisplayMessage(); got != "explorer.exe" {
		t.Errorf("fallback to first event data value, got %q", got)
	}

	r = &Record{}
	if got := r.DisplayMessage(); got != "(no message)" {
		t.Errorf("empty record placeholder, got %q", got)
	}
}

func TestClone(t *testing.T) {
	r := &Record{
		Channel:   "System",
		EventID:   7036,
		Timestamp: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
		EventData: []DataPair{{Name: "param1", Value: "Spooler"}},
	}
	c := r.Clone()
	c.EventData[0].Value = "changed"
	if r.EventData[0].Value != "Spooler" {
		t.Error("Clone must not share event data with the original")
	}
	if c.EventID != r.EventID || !c.Timestamp.Equal(r.Timestamp) {
		t.Error("Clone must copy scalar fields")
	}
}
