// Package items reads the data file that drives a batch and models the
// work items, stages and action sets the execution loop dispatches.
package items

import (
	"fmt"
	"strings"
)

// Stage is one side-effecting operation applied to a work item.
type Stage int

const (
	StageUpload Stage = iota + 1
	StageSale
	StageDelete
)

// dispatchOrder is the fixed order stages run in for a single item.
var dispatchOrder = []Stage{StageUpload, StageSale, StageDelete}

func (s Stage) String() string {
	switch s {
	case StageUpload:
		return "upload"
	case StageSale:
		return "sale"
	case StageDelete:
		return "delete"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// ParseStage accepts the stage names used on the command line and in config.
func ParseStage(s string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upload":
		return StageUpload, nil
	case "sale", "sell", "list":
		return StageSale, nil
	case "delete", "remove":
		return StageDelete, nil
	}
	return 0, fmt.Errorf("unknown stage %q (want upload, sale or delete)", s)
}

// ActionSet is the fixed set of stages selected for a run.
type ActionSet struct {
	bits uint8
}

func bit(s Stage) uint8 { return 1 << uint(s) }

// NewActionSet builds a set from stages. Delete cannot be combined with
// Upload or Sale.
func NewActionSet(stages ...Stage) (ActionSet, error) {
	var a ActionSet
	for _, s := range stages {
		if s < StageUpload || s > StageDelete {
			return ActionSet{}, fmt.Errorf("invalid stage %d", int(s))
		}
		a.bits |= bit(s)
	}
	if a.bits == 0 {
		return ActionSet{}, fmt.Errorf("action set is empty")
	}
	if a.Has(StageDelete) && (a.Has(StageUpload) || a.Has(StageSale)) {
		return ActionSet{}, fmt.Errorf("delete cannot be combined with upload or sale")
	}
	return a, nil
}

// MustActionSet is NewActionSet for package-level presets and tests.
func MustActionSet(stages ...Stage) ActionSet {
	a, err := NewActionSet(stages...)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseActionSet parses "upload,sale", "upload+sale" or a single stage name.
func ParseActionSet(s string) (ActionSet, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '+' || r == ' '
	})
	stages := make([]Stage, 0, len(fields))
	for _, f := range fields {
		st, err := ParseStage(f)
		if err != nil {
			return ActionSet{}, err
		}
		stages = append(stages, st)
	}
	return NewActionSet(stages...)
}

func (a ActionSet) Has(s Stage) bool {
	return a.bits&bit(s) != 0
}

// Only reports whether s is the single stage in the set.
func (a ActionSet) Only(s Stage) bool {
	return a.bits == bit(s)
}

func (a ActionSet) IsZero() bool {
	return a.bits == 0
}

// Stages returns the selected stages in dispatch order.
func (a ActionSet) Stages() []Stage {
	var out []Stage
	for _, s := range dispatchOrder {
		if a.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

func (a ActionSet) String() string {
	names := make([]string, 0, 3)
	for _, s := range a.Stages() {
		names = append(names, s.String())
	}
	return strings.Join(names, "+")
}

// Preset is one entry of the action menu.
type Preset struct {
	Label   string
	Actions ActionSet
}

// Presets lists the action combinations offered to the user.
var Presets = []Preset{
	{Label: "Upload and sell NFTs", Actions: MustActionSet(StageUpload, StageSale)},
	{Label: "Upload NFTs", Actions: MustActionSet(StageUpload)},
	{Label: "Sell NFTs", Actions: MustActionSet(StageSale)},
	{Label: "Delete NFTs", Actions: MustActionSet(StageDelete)},
}
