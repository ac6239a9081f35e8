package model

import "time"

// Keys of the settings store read by the payment flow.
const (
	SettingPremiumPrice        = "premium_price"
	SettingPremiumDurationDays = "premium_duration_days"
)

// Setting is one key/value row of the content settings store.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
