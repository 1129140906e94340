package items

import (
	"strings"
	"testing"
)

func TestNewActionSetRejectsDeleteCombinations(t *testing.T) {
	tests := []struct {
		name   string
		stages []Stage
	}{
		{"delete+upload", []Stage{StageDelete, StageUpload}},
		{"delete+sale", []Stage{StageSale, StageDelete}},
		{"empty", nil},
		{"out of range", []Stage{Stage(9)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewActionSet(tt.stages...); err == nil {
				t.Errorf("NewActionSet(%v) succeeded, want error", tt.stages)
			}
		})
	}
}

func TestActionSetStagesInDispatchOrder(t *testing.T) {
	a := MustActionSet(StageSale, StageUpload)
	got := a.Stages()
	if len(got) != 2 || got[0] != StageUpload || got[1] != StageSale {
		t.Errorf("Stages() = %v, want [upload sale]", got)
	}
	if a.String() != "upload+sale" {
		t.Errorf("String() = %q, want %q", a.String(), "upload+sale")
	}
	if a.Only(StageSale) {
		t.Error("Only(sale) = true for upload+sale")
	}
	if !MustActionSet(StageSale).Only(StageSale) {
		t.Error("Only(sale) = false for sale")
	}
}

func TestParseActionSet(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"upload,sale", "upload+sale"},
		{"sell", "sale"},
		{"upload + list", "upload+sale"},
		{"remove", "delete"},
	}
	for _, tt := range tests {
		a, err := ParseActionSet(tt.in)
		if err != nil {
			t.Fatalf("ParseActionSet(%q) error: %v", tt.in, err)
		}
		if a.String() != tt.want {
			t.Errorf("ParseActionSet(%q) = %q, want %q", tt.in, a.String(), tt.want)
		}
	}

	if _, err := ParseActionSet("mint"); err == nil || !strings.Contains(err.Error(), "unknown stage") {
		t.Errorf("ParseActionSet(mint) error = %v, want unknown stage", err)
	}
}

func TestPresetsAreValid(t *testing.T) {
	if len(Presets) != 4 {
		t.Fatalf("len(Presets) = %d, want 4", len(Presets))
	}
	for _, p := range Presets {
		if p.Actions.IsZero() {
			t.Errorf("preset %q has no stages", p.Label)
		}
	}
}
