package models

// RolloverResult reports a monthly counter rollover.
type RolloverResult struct {
	Period         string `json:"period"`
	PreviousPeriod string `json:"previousPeriod,omitempty"`
	Rolled         bool   `json:"rolled"`
	Updated        int    `json:"updatedTeachers"`
}
