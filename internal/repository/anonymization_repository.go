package repository

import (
	"context"
	"course_eval_backend/internal/model"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AnonymizationRepository struct {
	DB *gorm.DB
}

func NewAnonymizationRepository(db *gorm.DB) *AnonymizationRepository {
	return &AnonymizationRepository{DB: db}
}

// WithTx 绑定到调用方事务
func (r *AnonymizationRepository) WithTx(tx *gorm.DB) *AnonymizationRepository {
	return &AnonymizationRepository{DB: tx}
}

// Find 不存在时返回 (nil, nil)
func (r *AnonymizationRepository) Find(ctx context.Context, studentID, evaluationID uint) (*model.AnonymizationToken, error) {
	return r.find(r.DB.WithContext(ctx), studentID, evaluationID)
}

// FindLocked 锁定读取，读到其他事务已提交的最新行而不是本事务的快照
func (r *AnonymizationRepository) FindLocked(ctx context.Context, studentID, evaluationID uint) (*model.AnonymizationToken, error) {
	return r.find(r.DB.WithContext(ctx).Clauses(clause.Locking{Strength: "SHARE"}), studentID, evaluationID)
}

func (r *AnonymizationRepository) find(db *gorm.DB, studentID, evaluationID uint) (*model.AnonymizationToken, error) {
	var token model.AnonymizationToken
	err := db.Where("student_id = ? AND evaluation_id = ?", studentID, evaluationID).
		Take(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// InsertIfAbsent 唯一约束冲突时不报错并返回 false，由调用方重新读取胜出者的令牌
func (r *AnonymizationRepository) InsertIfAbsent(ctx context.Context, token *model.AnonymizationToken) (bool, error) {
	res := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(token)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *AnonymizationRepository) CountForEvaluation(ctx context.Context, evaluationID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.AnonymizationToken{}).
		Where("evaluation_id = ?", evaluationID).
		Count(&count).Error
	return count, err
}
