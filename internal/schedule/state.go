package schedule

import (
	"fmt"
)

// SlotKind tags a SlotState.
type SlotKind string

const (
	// KindFree marks a slot where the teacher can substitute.
	KindFree SlotKind = "free"
	// KindTeaching marks a slot spent with one or more classes.
	KindTeaching SlotKind = "teaching"
	// KindUnavailable marks a fixed duty that is neither teaching nor substitutable.
	KindUnavailable SlotKind = "unavailable"
)

// SlotState is the state of one (day, slot) cell.
type SlotState struct {
	Kind    SlotKind   `json:"kind"`
	Classes []ClassRef `json:"classes,omitempty"`
}

// Free returns the free state.
func Free() SlotState { return SlotState{Kind: KindFree} }

// Unavailable returns the unavailable state.
func Unavailable() SlotState { return SlotState{Kind: KindUnavailable} }

// Teaching returns a teaching state over the normalized class set.
func Teaching(classes ...ClassRef) SlotState {
	return SlotState{Kind: KindTeaching, Classes: NormalizeClasses(classes)}
}

// Validate rejects unknown kinds.
func (s SlotState) Validate() error {
	switch s.Kind {
	case KindFree, KindTeaching, KindUnavailable:
		return nil
	}
	return fmt.Errorf("unknown slot state %q", s.Kind)
}

// Effective collapses a teaching state with no classes into Unavailable and
// drops class lists from the other kinds.
func (s SlotState) Effective() SlotState {
	switch s.Kind {
	case KindTeaching:
		classes := NormalizeClasses(s.Classes)
		if len(classes) == 0 {
			return Unavailable()
		}
		return SlotState{Kind: KindTeaching, Classes: classes}
	case KindFree:
		return Free()
	default:
		return Unavailable()
	}
}

// IsFree reports whether the teacher is substitutable in this slot.
func (s SlotState) IsFree() bool {
	return s.Kind == KindFree
}

// TeachingClasses returns the taught classes, or nil when the effective
// state is not teaching.
func (s SlotState) TeachingClasses() []ClassRef {
	eff := s.Effective()
	if eff.Kind != KindTeaching {
		return nil
	}
	return eff.Classes
}

// Covers reports whether the slot is spent teaching class c.
func (s SlotState) Covers(c ClassRef) bool {
	for _, ref := range s.TeachingClasses() {
		if ref == c {
			return true
		}
	}
	return false
}

// Equal compares effective states.
func (s SlotState) Equal(other SlotState) bool {
	a, b := s.Effective(), other.Effective()
	if a.Kind != b.Kind || len(a.Classes) != len(b.Classes) {
		return false
	}
	for i := range a.Classes {
		if a.Classes[i] != b.Classes[i] {
			return false
		}
	}
	return true
}
