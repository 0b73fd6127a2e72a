package repository

import (
	"context"
	"course_eval_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubmissionRepository struct {
	DB *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

func (r *SubmissionRepository) WithTx(tx *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: tx}
}

// Transaction 令牌、会话与答案的写入必须在同一事务中完成
func (r *SubmissionRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.DB.WithContext(ctx).Transaction(fn)
}

// UpsertSession 按 (quiz, token) 查找或创建会话，并对该行加锁以串行化同一学生的并发提交
func (r *SubmissionRepository) UpsertSession(ctx context.Context, quizID uint, token string, final bool, now time.Time) (*model.SubmissionSession, error) {
	db := r.DB.WithContext(ctx)

	status := model.SessionInProgress
	var endedAt *time.Time
	if final {
		status = model.SessionDone
		endedAt = &now
	}
	fresh := &model.SubmissionSession{
		QuizID:    quizID,
		Token:     token,
		Status:    status,
		StartedAt: now,
		EndedAt:   endedAt,
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(fresh)
	if res.Error != nil {
		return nil, res.Error
	}

	var session model.SubmissionSession
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("quiz_id = ? AND token = ?", quizID, token).
		Take(&session).Error; err != nil {
		return nil, err
	}

	if res.RowsAffected == 0 && final && session.Status != model.SessionDone {
		if err := db.Model(&session).Updates(map[string]interface{}{
			"status":   model.SessionDone,
			"ended_at": now,
		}).Error; err != nil {
			return nil, err
		}
		session.Status = model.SessionDone
		session.EndedAt = &now
	}
	return &session, nil
}

// ReplaceAnswers 先删后插，整组替换
func (r *SubmissionRepository) ReplaceAnswers(ctx context.Context, sessionID uint, answers []model.Answer) error {
	db := r.DB.WithContext(ctx)
	if err := db.Where("session_id = ?", sessionID).Delete(&model.Answer{}).Error; err != nil {
		return err
	}
	for i := range answers {
		answers[i].ID = 0
		answers[i].SessionID = sessionID
	}
	if len(answers) == 0 {
		return nil
	}
	return db.Create(&answers).Error
}

func (r *SubmissionRepository) FindSession(ctx context.Context, quizID uint, token string) (*model.SubmissionSession, error) {
	var session model.SubmissionSession
	err := r.DB.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("quiz_id = ? AND token = ?", quizID, token).
		Take(&session).Error
	return &session, err
}
