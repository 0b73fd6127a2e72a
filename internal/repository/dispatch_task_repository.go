package repository

import (
	"context"
	"course_eval_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DispatchTaskRepository struct {
	DB *gorm.DB
}

func NewDispatchTaskRepository(db *gorm.DB) *DispatchTaskRepository {
	return &DispatchTaskRepository{DB: db}
}

// Enqueue 相同 dedup_key 的任务只保留第一条
func (r *DispatchTaskRepository) Enqueue(ctx context.Context, task *model.DispatchTask) error {
	if task.Status == "" {
		task.Status = model.TaskPending
	}
	if task.AvailableAt.IsZero() {
		task.AvailableAt = time.Now().UTC()
	}
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedup_key"}}, DoNothing: true}).
		Create(task).Error
}

func (r *DispatchTaskRepository) ListReady(ctx context.Context, now time.Time, limit int) ([]model.DispatchTask, error) {
	var tasks []model.DispatchTask
	err := r.DB.WithContext(ctx).
		Where("status = ? AND available_at <= ?", model.TaskPending, now).
		Order("available_at ASC, id ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

// Claim 乐观抢占：只有一个 worker 能把 PENDING 改成 PROCESSING
func (r *DispatchTaskRepository) Claim(ctx context.Context, id uint, now time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.DispatchTask{}).
		Where("id = ? AND status = ?", id, model.TaskPending).
		Updates(map[string]interface{}{
			"status":     model.TaskProcessing,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *DispatchTaskRepository) MarkDone(ctx context.Context, id uint, now time.Time) error {
	return r.DB.WithContext(ctx).Model(&model.DispatchTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       model.TaskDone,
			"processed_at": now,
			"last_error":   "",
			"updated_at":   now,
		}).Error
}

// MarkRetry 放回队列，availableAt 之后再被领取
func (r *DispatchTaskRepository) MarkRetry(ctx context.Context, id uint, lastErr string, availableAt, now time.Time) error {
	return r.DB.WithContext(ctx).Model(&model.DispatchTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       model.TaskPending,
			"last_error":   lastErr,
			"available_at": availableAt,
			"updated_at":   now,
		}).Error
}

func (r *DispatchTaskRepository) MarkFailed(ctx context.Context, id uint, lastErr string, now time.Time) error {
	return r.DB.WithContext(ctx).Model(&model.DispatchTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       model.TaskFailed,
			"last_error":   lastErr,
			"processed_at": now,
			"updated_at":   now,
		}).Error
}

// RequeueStale 进程崩溃后遗留的 PROCESSING 任务重新放回队列
func (r *DispatchTaskRepository) RequeueStale(ctx context.Context, before, now time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&model.DispatchTask{}).
		Where("status = ? AND updated_at < ?", model.TaskProcessing, before).
		Updates(map[string]interface{}{
			"status":       model.TaskPending,
			"available_at": now,
			"updated_at":   now,
		})
	return res.RowsAffected, res.Error
}

func (r *DispatchTaskRepository) FindByDedupKey(ctx context.Context, key string) (*model.DispatchTask, error) {
	var task model.DispatchTask
	err := r.DB.WithContext(ctx).Where("dedup_key = ?", key).Take(&task).Error
	return &task, err
}

func (r *DispatchTaskRepository) CountByKind(ctx context.Context, kind model.DispatchKind) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.DispatchTask{}).Where("kind = ?", kind).Count(&count).Error
	return count, err
}
