package schedule

import (
	"encoding/json"
	"fmt"
)

// Week is the raw cell storage of a grid keyed by day, then slot label.
type Week map[Day]map[string]SlotState

func (w Week) clone() Week {
	out := make(Week, len(w))
	for day, slots := range w {
		cp := make(map[string]SlotState, len(slots))
		for label, state := range slots {
			cp[label] = SlotState{Kind: state.Kind, Classes: append([]ClassRef(nil), state.Classes...)}
		}
		out[day] = cp
	}
	return out
}

func (w Week) lookup(day Day, slot string) (SlotState, bool) {
	slots, ok := w[day]
	if !ok {
		return SlotState{}, false
	}
	state, ok := slots[slot]
	return state, ok
}

func (w Week) put(day Day, slot string, state SlotState) {
	slots, ok := w[day]
	if !ok {
		slots = make(map[string]SlotState)
		w[day] = slots
	}
	slots[slot] = state
}

func (w Week) validate() error {
	for day, slots := range w {
		if !day.Valid() {
			return fmt.Errorf("unknown day %q", day)
		}
		for label, state := range slots {
			if err := ValidateSlotLabel(label); err != nil {
				return err
			}
			if err := state.Validate(); err != nil {
				return fmt.Errorf("%s %s: %w", day, label, err)
			}
		}
	}
	return nil
}

func fill(slots []string, state SlotState) Week {
	w := make(Week, len(Weekdays))
	for _, day := range Weekdays {
		cells := make(map[string]SlotState, len(slots))
		for _, slot := range slots {
			cells[slot] = state
		}
		w[day] = cells
	}
	return w
}

// SpecialistGrid is the user-authored weekly grid of a specialist teacher.
// Cells never written read as Free.
type SpecialistGrid struct {
	week Week
}

// NewSpecialistGrid returns a grid with every slot free.
func NewSpecialistGrid(slots []string) *SpecialistGrid {
	return &SpecialistGrid{week: fill(slots, Free())}
}

// At returns the state of one cell.
func (g *SpecialistGrid) At(day Day, slot string) SlotState {
	if g == nil {
		return Free()
	}
	if state, ok := g.week.lookup(day, slot); ok {
		return state.Effective()
	}
	return Free()
}

// Set overwrites one cell.
func (g *SpecialistGrid) Set(day Day, slot string, state SlotState) {
	if g.week == nil {
		g.week = make(Week)
	}
	g.week.put(day, slot, state.Effective())
}

// Clone returns a deep copy.
func (g *SpecialistGrid) Clone() *SpecialistGrid {
	if g == nil {
		return nil
	}
	return &SpecialistGrid{week: g.week.clone()}
}

// Week returns a copy of the stored cells, stale labels included.
func (g *SpecialistGrid) Week() Week {
	if g == nil {
		return Week{}
	}
	return g.week.clone()
}

// MarshalJSON encodes the stored cells.
func (g SpecialistGrid) MarshalJSON() ([]byte, error) {
	if g.week == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(g.week)
}

// UnmarshalJSON decodes and validates stored cells.
func (g *SpecialistGrid) UnmarshalJSON(data []byte) error {
	var w Week
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if err := w.validate(); err != nil {
		return err
	}
	if w == nil {
		w = make(Week)
	}
	g.week = w
	return nil
}

// HomeroomGrid is the derived grid of a homeroom teacher. It has no setters:
// DeriveAll is the only producer of non-pending grids. Cells never derived
// read as Unavailable.
type HomeroomGrid struct {
	week Week
}

// PendingHomeroomGrid returns the all-unavailable grid a homeroom teacher
// holds until the first derivation pass.
func PendingHomeroomGrid(slots []string) *HomeroomGrid {
	return &HomeroomGrid{week: fill(slots, Unavailable())}
}

// At returns the state of one cell.
func (g *HomeroomGrid) At(day Day, slot string) SlotState {
	if g == nil {
		return Unavailable()
	}
	if state, ok := g.week.lookup(day, slot); ok {
		return state.Effective()
	}
	return Unavailable()
}

// Clone returns a deep copy.
func (g *HomeroomGrid) Clone() *HomeroomGrid {
	if g == nil {
		return nil
	}
	return &HomeroomGrid{week: g.week.clone()}
}

// Week returns a copy of the stored cells.
func (g *HomeroomGrid) Week() Week {
	if g == nil {
		return Week{}
	}
	return g.week.clone()
}

// Equal reports whether both grids hold the same cells.
func (g *HomeroomGrid) Equal(other *HomeroomGrid) bool {
	if g == nil || other == nil {
		return g == other
	}
	if countCells(g.week) != countCells(other.week) {
		return false
	}
	for day, slots := range g.week {
		for label, state := range slots {
			theirs, ok := other.week.lookup(day, label)
			if !ok || !state.Equal(theirs) {
				return false
			}
		}
	}
	return true
}

// MarshalJSON encodes the stored cells.
func (g HomeroomGrid) MarshalJSON() ([]byte, error) {
	if g.week == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(g.week)
}

// UnmarshalJSON decodes previously derived cells loaded from storage or a
// snapshot.
func (g *HomeroomGrid) UnmarshalJSON(data []byte) error {
	var w Week
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if err := w.validate(); err != nil {
		return err
	}
	if w == nil {
		w = make(Week)
	}
	g.week = w
	return nil
}

func countCells(w Week) int {
	n := 0
	for _, slots := range w {
		n += len(slots)
	}
	return n
}
