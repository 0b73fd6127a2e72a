package repository

import (
	"context"
	"course_eval_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeviceRepository struct {
	DB *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{DB: db}
}

// Register 按 token 唯一；重复注册会重新激活并更换归属用户
func (r *DeviceRepository) Register(ctx context.Context, userID uint, token, platform string, now time.Time) (*model.DeviceEndpoint, error) {
	endpoint := &model.DeviceEndpoint{
		UserID:     userID,
		Token:      token,
		Platform:   platform,
		IsActive:   true,
		LastUsedAt: now,
	}
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"user_id":        userID,
			"platform":       platform,
			"is_active":      true,
			"deactivated_at": nil,
			"last_used_at":   now,
			"updated_at":     now,
		}),
	}).Create(endpoint).Error
	if err != nil {
		return nil, err
	}

	var saved model.DeviceEndpoint
	err = r.DB.WithContext(ctx).Where("token = ?", token).Take(&saved).Error
	return &saved, err
}

// Unregister 只停用属于该用户的设备
func (r *DeviceRepository) Unregister(ctx context.Context, userID uint, token string, now time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.DeviceEndpoint{}).
		Where("user_id = ? AND token = ? AND is_active = ?", userID, token, true).
		Updates(map[string]interface{}{"is_active": false, "deactivated_at": now, "updated_at": now})
	return res.RowsAffected > 0, res.Error
}

func (r *DeviceRepository) ActiveTokens(ctx context.Context, userID uint) ([]string, error) {
	var tokens []string
	err := r.DB.WithContext(ctx).Model(&model.DeviceEndpoint{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("id").
		Pluck("token", &tokens).Error
	return tokens, err
}

// Deactivate 渠道报告失效的令牌：停用而不删除
func (r *DeviceRepository) Deactivate(ctx context.Context, tokens []string, now time.Time) error {
	if len(tokens) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Model(&model.DeviceEndpoint{}).
		Where("token IN ?", tokens).
		Updates(map[string]interface{}{"is_active": false, "deactivated_at": now, "updated_at": now}).Error
}

func (r *DeviceRepository) Touch(ctx context.Context, tokens []string, now time.Time) error {
	if len(tokens) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Model(&model.DeviceEndpoint{}).
		Where("token IN ?", tokens).
		Update("last_used_at", now).Error
}

// DeleteStale 清理长期未使用的已停用设备
func (r *DeviceRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("is_active = ? AND last_used_at < ?", false, before).
		Delete(&model.DeviceEndpoint{})
	return res.RowsAffected, res.Error
}

func (r *DeviceRepository) FindByToken(ctx context.Context, token string) (*model.DeviceEndpoint, error) {
	var endpoint model.DeviceEndpoint
	err := r.DB.WithContext(ctx).Where("token = ?", token).Take(&endpoint).Error
	return &endpoint, err
}
