package models

import "time"

// StatisticsOverview aggregates directory and ledger totals.
type StatisticsOverview struct {
	TotalTeachers        int       `json:"totalTeachers"`
	HomeroomTeachers     int       `json:"homeroomTeachers"`
	SpecialistTeachers   int       `json:"specialistTeachers"`
	TotalSubstitutes     int       `json:"totalSubstitutes"`
	ThisMonthSubstitutes int       `json:"thisMonthSubstitutes"`
	Month                string    `json:"month"`
	GeneratedAt          time.Time `json:"generatedAt"`
}

// MonthlyCount is the number of substitutions dated in one month.
type MonthlyCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// RankedCount is one entry of a top-N ranking.
type RankedCount struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// PatternAnalysis ranks the busiest teachers, slots and weekdays.
type PatternAnalysis struct {
	TopTeachers  []RankedCount `json:"topTeachers"`
	BusySlots    []RankedCount `json:"busySlots"`
	BusyWeekdays []RankedCount `json:"busyWeekdays"`
}
