package models

import (
	"time"

	"github.com/noah-isme/sma-substitute-api/internal/schedule"
)

// DateLayout is the calendar date format used by substitute records.
const DateLayout = "2006-01-02"

// SubstituteRecord is one substitution actually covered by a teacher.
type SubstituteRecord struct {
	ID        string            `db:"id" json:"id"`
	TeacherID string            `db:"teacher_id" json:"teacherId"`
	Date      string            `db:"date" json:"date"`
	Time      string            `db:"time_slot" json:"time"`
	ClassRef  schedule.ClassRef `db:"class_ref" json:"classRef"`
	Reason    string            `db:"reason" json:"reason"`
	CreatedAt time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time         `db:"updated_at" json:"updatedAt"`
}

// Month returns the YYYY-MM prefix of the record date.
func (r SubstituteRecord) Month() string {
	if len(r.Date) < 7 {
		return ""
	}
	return r.Date[:7]
}

// Entry returns the summary entry the record contributes to a history.
func (r SubstituteRecord) Entry() HistoryEntry {
	return HistoryEntry{Date: r.Date, Time: r.Time, ClassRef: r.ClassRef}
}

// SubstituteFilter narrows ledger listings.
type SubstituteFilter struct {
	TeacherID string
	Month     string
}

// Matches reports whether the record passes the filter.
func (f SubstituteFilter) Matches(r SubstituteRecord) bool {
	if f.TeacherID != "" && r.TeacherID != f.TeacherID {
		return false
	}
	if f.Month != "" && r.Month() != f.Month {
		return false
	}
	return true
}

// LedgerChange describes one atomic ledger mutation: the record rows to write
// or delete and the teachers whose counters moved.
type LedgerChange struct {
	Upsert   *SubstituteRecord
	DeleteID string
	Teachers []*Teacher
}
