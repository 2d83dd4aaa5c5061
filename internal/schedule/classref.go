// Package schedule holds the weekly availability model shared by every
// teacher: class identities, slot labels, slot states, grids and the pure
// functions that derive homeroom availability and search for substitutes.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidClassRef is returned when a class identity cannot be parsed.
var ErrInvalidClassRef = errors.New("invalid class reference")

// ClassRef identifies a single classroom by grade and class number.
type ClassRef struct {
	Grade int
	Class int
}

// String formats the reference in its canonical "grade-class" form.
func (c ClassRef) String() string {
	return fmt.Sprintf("%d-%d", c.Grade, c.Class)
}

// IsZero reports whether the reference is unset.
func (c ClassRef) IsZero() bool {
	return c.Grade == 0 && c.Class == 0
}

// Less orders references by grade, then class number.
func (c ClassRef) Less(other ClassRef) bool {
	if c.Grade != other.Grade {
		return c.Grade < other.Grade
	}
	return c.Class < other.Class
}

// MarshalText implements encoding.TextMarshaler.
func (c ClassRef) MarshalText() ([]byte, error) {
	if c.IsZero() {
		return []byte{}, nil
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ClassRef) UnmarshalText(text []byte) error {
	if len(strings.TrimSpace(string(text))) == 0 {
		*c = ClassRef{}
		return nil
	}
	parsed, err := ParseClassRef(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseClassRef parses "3-2" style labels. Non-digit decorations around each
// part (for example "3학년-2반") are ignored.
func ParseClassRef(raw string) (ClassRef, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 2 {
		return ClassRef{}, fmt.Errorf("%w: %q", ErrInvalidClassRef, raw)
	}
	return ClassRefFromParts(parts[0], parts[1])
}

// ClassRefFromParts builds a reference from separately stored grade and class
// number fields.
func ClassRefFromParts(grade, class string) (ClassRef, error) {
	g, err := positiveNumber(grade)
	if err != nil {
		return ClassRef{}, fmt.Errorf("%w: grade %q", ErrInvalidClassRef, grade)
	}
	n, err := positiveNumber(class)
	if err != nil {
		return ClassRef{}, fmt.Errorf("%w: class number %q", ErrInvalidClassRef, class)
	}
	return ClassRef{Grade: g, Class: n}, nil
}

// ParseClassList parses a comma separated list such as "1-1, 1-2" into a
// sorted set of references. Empty entries are ignored.
func ParseClassList(raw string) ([]ClassRef, error) {
	var refs []ClassRef
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ref, err := ParseClassRef(part)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return NormalizeClasses(refs), nil
}

// NormalizeClasses removes zero and duplicate references and sorts the rest.
func NormalizeClasses(refs []ClassRef) []ClassRef {
	if len(refs) == 0 {
		return nil
	}
	seen := make(map[ClassRef]struct{}, len(refs))
	out := make([]ClassRef, 0, len(refs))
	for _, ref := range refs {
		if ref.IsZero() {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	if len(out) == 0 {
		return nil
	}
	return out
}

// numberPart matches a single digit run with optional decoration around it,
// such as "3학년" or "2반".
var numberPart = regexp.MustCompile(`^\D*(\d+)\D*$`)

func positiveNumber(raw string) (int, error) {
	m := numberPart.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, errors.New("expected exactly one number")
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}
