package models

import "time"

// Snapshot is the full backup shape. A nil collection is left untouched on
// restore.
type Snapshot struct {
	Teachers          []Teacher          `json:"teachers"`
	SubstituteRecords []SubstituteRecord `json:"substituteRecords"`
	TimeSlots         []string           `json:"timeSlots"`
	ExportedAt        *time.Time         `json:"exportedAt,omitempty"`
}

// RestoreSummary reports what a restore replaced.
type RestoreSummary struct {
	Teachers          *int              `json:"teachers,omitempty"`
	SubstituteRecords *int              `json:"substituteRecords,omitempty"`
	TimeSlots         *int              `json:"timeSlots,omitempty"`
	Reconciled        []string          `json:"reconciledTeachers,omitempty"`
	Derivation        *DerivationReport `json:"derivation,omitempty"`
}
