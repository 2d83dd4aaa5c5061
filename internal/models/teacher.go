package models

import (
	"strings"
	"time"

	"github.com/noah-isme/sma-substitute-api/internal/schedule"
)

// TeacherRole distinguishes homeroom teachers from subject specialists.
type TeacherRole string

const (
	TeacherRoleHomeroom   TeacherRole = "homeroom"
	TeacherRoleSpecialist TeacherRole = "specialist"
)

// Valid reports whether the role is known.
func (r TeacherRole) Valid() bool {
	return r == TeacherRoleHomeroom || r == TeacherRoleSpecialist
}

// Teacher is a staff member tracked for substitution.
type Teacher struct {
	ID          string      `db:"id" json:"id"`
	Name        string      `db:"name" json:"name"`
	Role        TeacherRole `db:"role" json:"role"`
	Grade       string      `db:"grade" json:"grade,omitempty"`
	ClassNumber string      `db:"class_number" json:"classNumber,omitempty"`
	Subject     string      `db:"subject" json:"subject,omitempty"`

	// Exactly one grid is set, matching Role.
	Specialist *schedule.SpecialistGrid `db:"-" json:"specialistSchedule,omitempty"`
	Homeroom   *schedule.HomeroomGrid   `db:"-" json:"homeroomSchedule,omitempty"`

	SubstituteHistory SubstituteHistory `db:"-" json:"substituteHistory"`
	CreatedAt         time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updatedAt"`
}

// ClassRef parses the homeroom class identity.
func (t *Teacher) ClassRef() (schedule.ClassRef, error) {
	return schedule.ClassRefFromParts(t.Grade, t.ClassNumber)
}

// SlotAt returns the teacher's state for one cell regardless of role.
func (t *Teacher) SlotAt(day schedule.Day, slot string) schedule.SlotState {
	if t.Role == TeacherRoleSpecialist {
		return t.Specialist.At(day, slot)
	}
	return t.Homeroom.At(day, slot)
}

// Clone returns a deep copy safe to hand out of a store.
func (t *Teacher) Clone() *Teacher {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Specialist = t.Specialist.Clone()
	cp.Homeroom = t.Homeroom.Clone()
	cp.SubstituteHistory = t.SubstituteHistory.Clone()
	return &cp
}

// MatchesQuery performs a case-insensitive substring match over name, role
// and grade.
func (t *Teacher) MatchesQuery(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Name), q) ||
		strings.Contains(strings.ToLower(string(t.Role)), q) ||
		strings.Contains(strings.ToLower(t.Grade), q)
}

// HistoryEntry summarises one substitution on the teacher record.
type HistoryEntry struct {
	Date     string            `json:"date"`
	Time     string            `json:"time"`
	ClassRef schedule.ClassRef `json:"classRef"`
}

// SubstituteHistory aggregates the substitutions a teacher covered.
type SubstituteHistory struct {
	TotalCount     int            `json:"totalCount"`
	ThisMonthCount int            `json:"thisMonthCount"`
	LastMonthCount int            `json:"lastMonthCount"`
	Entries        []HistoryEntry `json:"entries"`
}

// Clone returns a deep copy.
func (h SubstituteHistory) Clone() SubstituteHistory {
	cp := h
	cp.Entries = append(make([]HistoryEntry, 0, len(h.Entries)), h.Entries...)
	return cp
}

// TeacherStats is the per-teacher statistics row.
type TeacherStats struct {
	TeacherID      string      `json:"teacherId"`
	Name           string      `json:"name"`
	Role           TeacherRole `json:"role"`
	ClassRef       string      `json:"classRef,omitempty"`
	Subject        string      `json:"subject,omitempty"`
	TotalCount     int         `json:"totalCount"`
	ThisMonthCount int         `json:"thisMonthCount"`
	LastMonthCount int         `json:"lastMonthCount"`
}
