package models

import (
	"time"

	"github.com/noah-isme/sma-substitute-api/internal/schedule"
)

// DerivationReport summarises one derivation pass.
type DerivationReport struct {
	Derived   int                         `json:"derived"`
	Changed   int                         `json:"changed"`
	Skipped   []schedule.IntegrityWarning `json:"skipped,omitempty"`
	Slots     int                         `json:"slots"`
	StartedAt time.Time                   `json:"startedAt"`
	Duration  time.Duration               `json:"durationNs"`
}

// Candidate is a teacher eligible to cover the requested slot.
type Candidate struct {
	Teacher *Teacher        `json:"teacher"`
	Reason  schedule.Reason `json:"reason"`
	FreedBy []string        `json:"freedBy,omitempty"`
	// RequestingClassTeacher is set when the candidate owns the class that
	// needs cover.
	RequestingClassTeacher bool `json:"requestingClassTeacher"`
}

// CandidateQuery is a substitute search request.
type CandidateQuery struct {
	Date  string
	Day   schedule.Day
	Time  string
	Class string
	Sort  string
}

// CandidateResult is the search response.
type CandidateResult struct {
	Date       string       `json:"date,omitempty"`
	Day        schedule.Day `json:"day,omitempty"`
	Time       string       `json:"time"`
	Class      string       `json:"class,omitempty"`
	Candidates []Candidate  `json:"candidates"`
}
