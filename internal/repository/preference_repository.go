package repository

import (
	"context"
	"course_eval_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PreferenceRepository struct {
	DB *gorm.DB
}

func NewPreferenceRepository(db *gorm.DB) *PreferenceRepository {
	return &PreferenceRepository{DB: db}
}

// GetOrCreate 首次访问时写入默认值；并发创建时以已存在的行为准
func (r *PreferenceRepository) GetOrCreate(ctx context.Context, defaults model.NotificationPreference) (*model.NotificationPreference, error) {
	db := r.DB.WithContext(ctx)

	var pref model.NotificationPreference
	err := db.Where("user_id = ?", defaults.UserID).Take(&pref).Error
	if err == nil {
		return &pref, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&defaults).Error; err != nil {
		return nil, err
	}
	if err := db.Where("user_id = ?", defaults.UserID).Take(&pref).Error; err != nil {
		return nil, err
	}
	return &pref, nil
}

func (r *PreferenceRepository) Save(ctx context.Context, pref *model.NotificationPreference) error {
	return r.DB.WithContext(ctx).Model(pref).
		Select("in_app_enabled", "push_enabled", "email_enabled", "quiet_hours_start", "quiet_hours_end", "reminder_frequency", "updated_at").
		Updates(pref).Error
}

// FindByUsers 批量读取已存在的偏好，缺失的由调用方补默认值
func (r *PreferenceRepository) FindByUsers(ctx context.Context, userIDs []uint) (map[uint]model.NotificationPreference, error) {
	var prefs []model.NotificationPreference
	if err := r.DB.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&prefs).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]model.NotificationPreference, len(prefs))
	for _, p := range prefs {
		out[p.UserID] = p
	}
	return out, nil
}
