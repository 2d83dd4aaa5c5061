package models

import "time"

// Setting keys persisted in the settings table.
const (
	SettingTimeSlots     = "time_slots"
	SettingCounterPeriod = "counter_period"
)

// Setting represents a persisted key/value configuration entry.
type Setting struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
