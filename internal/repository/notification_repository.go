package repository

import (
	"context"
	"course_eval_backend/internal/model"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NotificationRepository struct {
	DB *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{DB: db}
}

// FindOrCreateEvent 带 TriggerKey 的事件在重跑时复用已有行
func (r *NotificationRepository) FindOrCreateEvent(ctx context.Context, event *model.NotificationEvent) error {
	db := r.DB.WithContext(ctx)
	if event.TriggerKey == nil {
		return db.Create(event).Error
	}

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(event)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	key := *event.TriggerKey
	*event = model.NotificationEvent{}
	return db.Where("trigger_key = ?", key).Take(event).Error
}

// AddRecipient 已存在的 (event, user) 不重复插入；返回是否新插入
func (r *NotificationRepository) AddRecipient(ctx context.Context, eventID, userID uint) (bool, error) {
	res := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.NotificationRecipient{EventID: eventID, UserID: userID})
	return res.RowsAffected > 0, res.Error
}

func (r *NotificationRepository) CountEvents(ctx context.Context, evaluationID uint, typ model.NotificationType) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.NotificationEvent{}).
		Where("evaluation_id = ? AND type = ?", evaluationID, typ).
		Count(&count).Error
	return count, err
}

func (r *NotificationRepository) ListInbox(ctx context.Context, userID uint, unreadOnly bool, page, limit int) ([]model.NotificationRecipient, int64, error) {
	query := r.DB.WithContext(ctx).Model(&model.NotificationRecipient{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []model.NotificationRecipient
	err := query.Preload("Event").
		Order("created_at DESC, event_id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&rows).Error
	return rows, total, err
}

func (r *NotificationRepository) MarkRead(ctx context.Context, userID, eventID uint, now time.Time) error {
	res := r.DB.WithContext(ctx).Model(&model.NotificationRecipient{}).
		Where("user_id = ? AND event_id = ?", userID, eventID).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.DB.WithContext(ctx).Model(&model.NotificationRecipient{}).
			Where("user_id = ? AND event_id = ?", userID, eventID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
	}
	return nil
}

func (r *NotificationRepository) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.NotificationRecipient{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
