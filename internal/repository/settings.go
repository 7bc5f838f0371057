package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"helpdesk-autoreply/internal/model"
)

// GetSetting returns the stored value for key
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var setting model.Setting
	if err := r.db.WithContext(ctx).Where(&model.Setting{Key: key}).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("database error getting setting: %w", err)
	}
	return setting.Value, nil
}

// ValidateSetting checks that key is known and value parses for it
func ValidateSetting(key, value string) error {
	switch key {
	case model.SettingPollingEnabled, model.SettingAutoApproveHighConfidence:
		if _, err := cast.ToBoolE(value); err != nil {
			return fmt.Errorf("%s must be a boolean: %w", key, err)
		}
	case model.SettingHoursLookback:
		hours, err := cast.ToIntE(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		if hours <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	case model.SettingDefaultManagerID:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	return nil
}

// SetSetting validates and upserts a setting
func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	if err := ValidateSetting(key, value); err != nil {
		return err
	}

	setting := model.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&setting).Error
	if err != nil {
		return fmt.Errorf("failed to save setting: %w", err)
	}
	return nil
}

// SeedSettings inserts default values for keys that have never been set
func (r *Repository) SeedSettings(ctx context.Context) error {
	defaults := model.DefaultSettings()
	rows := []model.Setting{
		{Key: model.SettingPollingEnabled, Value: cast.ToString(defaults.PollingEnabled)},
		{Key: model.SettingHoursLookback, Value: cast.ToString(defaults.HoursLookback)},
		{Key: model.SettingAutoApproveHighConfidence, Value: cast.ToString(defaults.AutoApproveHighConfidence)},
		{Key: model.SettingDefaultManagerID, Value: defaults.DefaultManagerID},
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	return nil
}

// ListSettings returns every stored setting
func (r *Repository) ListSettings(ctx context.Context) ([]model.Setting, error) {
	var settings []model.Setting
	if err := r.db.WithContext(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return settings, nil
}

// LoadSettings returns a typed snapshot. Missing or unparsable values fall back to defaults.
func (r *Repository) LoadSettings(ctx context.Context) (model.Settings, error) {
	out := model.DefaultSettings()

	stored, err := r.ListSettings(ctx)
	if err != nil {
		return out, err
	}

	for _, s := range stored {
		if err := ValidateSetting(s.Key, s.Value); err != nil {
			logrus.WithFields(logrus.Fields{
				"key":   s.Key,
				"value": s.Value,
			}).WithError(err).Warn("Ignoring invalid setting")
			continue
		}
		switch s.Key {
		case model.SettingPollingEnabled:
			out.PollingEnabled = cast.ToBool(s.Value)
		case model.SettingHoursLookback:
			out.HoursLookback = cast.ToInt(s.Value)
		case model.SettingAutoApproveHighConfidence:
			out.AutoApproveHighConfidence = cast.ToBool(s.Value)
		case model.SettingDefaultManagerID:
			out.DefaultManagerID = s.Value
		}
	}

	return out, nil
}
