package model

import "time"

// Setting keys read by the poller and the approval workflow
const (
	SettingPollingEnabled            = "polling_enabled"
	SettingHoursLookback             = "hours_lookback"
	SettingAutoApproveHighConfidence = "auto_approve_high_confidence"
	SettingDefaultManagerID          = "default_manager_id"
)

// Setting is an operator-controlled key/value pair
type Setting struct {
	Key       string    `json:"key" gorm:"type:varchar(64);primaryKey"`
	Value     string    `json:"value" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Setting
func (Setting) TableName() string {
	return "settings"
}

// Settings is a typed snapshot of the settings table, taken once per run
type Settings struct {
	PollingEnabled            bool   `json:"polling_enabled"`
	HoursLookback             int    `json:"hours_lookback"`
	AutoApproveHighConfidence bool   `json:"auto_approve_high_confidence"`
	DefaultManagerID          string `json:"default_manager_id"`
}

// DefaultSettings returns the values used when a key is missing or unparsable
func DefaultSettings() Settings {
	return Settings{
		PollingEnabled:            true,
		HoursLookback:             24,
		AutoApproveHighConfidence: false,
		DefaultManagerID:          "",
	}
}

// KnownSettingKeys lists the keys operators may change
func KnownSettingKeys() []string {
	return []string{
		SettingPollingEnabled,
		SettingHoursLookback,
		SettingAutoApproveHighConfidence,
		SettingDefaultManagerID,
	}
}
