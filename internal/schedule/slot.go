package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidSlot is returned for labels that are not strict HH:MM-HH:MM.
	ErrInvalidSlot = errors.New("invalid time slot")
	// ErrNoSlots is returned when a slot list is empty.
	ErrNoSlots = errors.New("time slot list is empty")
	// ErrDuplicateSlot is returned when a slot list repeats a label.
	ErrDuplicateSlot = errors.New("duplicate time slot")
)

var slotPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]-([01][0-9]|2[0-3]):[0-5][0-9]$`)

var defaultSlots = []string{
	"09:00-09:40",
	"09:50-10:30",
	"10:40-11:20",
	"11:30-12:10",
	"12:20-13:00",
	"14:00-14:40",
}

// DefaultSlots returns a copy of the built-in slot sequence.
func DefaultSlots() []string {
	return append([]string(nil), defaultSlots...)
}

// ValidateSlotLabel checks a single label.
func ValidateSlotLabel(label string) error {
	if !slotPattern.MatchString(label) {
		return fmt.Errorf("%w: %q", ErrInvalidSlot, label)
	}
	return nil
}

// ValidateSlots checks an ordered slot list: at least one entry, every label
// well formed and unique.
func ValidateSlots(labels []string) error {
	if len(labels) == 0 {
		return ErrNoSlots
	}
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		if err := ValidateSlotLabel(label); err != nil {
			return err
		}
		if _, ok := seen[label]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateSlot, label)
		}
		seen[label] = struct{}{}
	}
	return nil
}

// NormalizeSlots trims surrounding whitespace from every label.
func NormalizeSlots(labels []string) []string {
	out := make([]string, len(labels))
	for i, label := range labels {
		out[i] = strings.TrimSpace(label)
	}
	return out
}
