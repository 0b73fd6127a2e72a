package repository

import (
	"context"
	"course_eval_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EvaluationRepository struct {
	DB *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) *EvaluationRepository {
	return &EvaluationRepository{DB: db}
}

// Create 测评与其唯一的 Quiz 在同一事务内创建
func (r *EvaluationRepository) Create(ctx context.Context, evaluation *model.Evaluation, questions []model.Question) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		classes := evaluation.Classes
		evaluation.Classes = nil
		evaluation.Quiz = nil
		if err := tx.Create(evaluation).Error; err != nil {
			return err
		}
		if len(classes) > 0 {
			if err := tx.Model(evaluation).Association("Classes").Append(classes); err != nil {
				return err
			}
		}
		evaluation.Classes = classes

		quiz := &model.Quiz{EvaluationID: evaluation.ID}
		if err := tx.Create(quiz).Error; err != nil {
			return err
		}
		for i := range questions {
			questions[i].QuizID = quiz.ID
			questions[i].Position = i
		}
		if len(questions) > 0 {
			if err := tx.Create(&questions).Error; err != nil {
				return err
			}
		}
		quiz.Questions = questions
		evaluation.Quiz = quiz
		return nil
	})
}

func (r *EvaluationRepository) FindByID(ctx context.Context, id uint) (*model.Evaluation, error) {
	var evaluation model.Evaluation
	err := r.DB.WithContext(ctx).
		Preload("Classes").
		Preload("Quiz").
		Preload("Quiz.Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		First(&evaluation, id).Error
	return &evaluation, err
}

// FindByIDUnscoped 包含已归档的测评
func (r *EvaluationRepository) FindByIDUnscoped(ctx context.Context, id uint) (*model.Evaluation, error) {
	var evaluation model.Evaluation
	err := r.DB.WithContext(ctx).Unscoped().First(&evaluation, id).Error
	return &evaluation, err
}

func (r *EvaluationRepository) List(ctx context.Context, ownerID uint, status model.EvaluationStatus, page, limit int) ([]model.Evaluation, int64, error) {
	query := r.DB.WithContext(ctx).Model(&model.Evaluation{})
	if ownerID != 0 {
		query = query.Where("owner_id = ?", ownerID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []model.Evaluation
	err := query.Preload("Classes").
		Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&list).Error
	return list, total, err
}

func (r *EvaluationRepository) FindQuiz(ctx context.Context, quizID uint) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		First(&quiz, quizID).Error
	return &quiz, err
}

func (r *EvaluationRepository) CountQuestions(ctx context.Context, quizID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Question{}).Where("quiz_id = ?", quizID).Count(&count).Error
	return count, err
}

// AddQuestion 仅在 DRAFT 状态下追加题目；返回 false 表示状态不满足
func (r *EvaluationRepository) AddQuestion(ctx context.Context, evaluationID uint, question *model.Question) (bool, error) {
	added := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var evaluation model.Evaluation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "status").First(&evaluation, evaluationID).Error; err != nil {
			return err
		}
		if evaluation.Status != model.StatusDraft {
			return nil
		}

		var quiz model.Quiz
		if err := tx.Where("evaluation_id = ?", evaluationID).First(&quiz).Error; err != nil {
			return err
		}
		var maxPos *int
		if err := tx.Model(&model.Question{}).Where("quiz_id = ?", quiz.ID).
			Select("MAX(position)").Scan(&maxPos).Error; err != nil {
			return err
		}
		question.QuizID = quiz.ID
		question.Position = 0
		if maxPos != nil {
			question.Position = *maxPos + 1
		}
		if err := tx.Create(question).Error; err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

// Transition 条件更新状态并在同一事务中写入发件箱任务。
// 返回 false 表示条件不满足（并发或状态已变化），此时不写任务。
func (r *EvaluationRepository) Transition(ctx context.Context, id uint, to model.EvaluationStatus, cond string, condArgs []interface{}, now time.Time, task *model.DispatchTask) (bool, error) {
	changed := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":     to,
			"updated_at": now,
		}
		switch to {
		case model.StatusPublished:
			updates["published_at"] = now
		case model.StatusClosed:
			updates["closed_at"] = now
		}

		res := tx.Model(&model.Evaluation{}).
			Where("id = ?", id).
			Where(cond, condArgs...).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true

		if task != nil {
			if task.AvailableAt.IsZero() {
				task.AvailableAt = now
			}
			return NewDispatchTaskRepository(tx).Enqueue(ctx, task)
		}
		return nil
	})
	return changed, err
}

// ActivateStarted PUBLISHED 且已到开始时间的测评批量转为 ACTIVE
func (r *EvaluationRepository) ActivateStarted(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&model.Evaluation{}).
		Where("status = ? AND start_time <= ?", model.StatusPublished, now).
		Updates(map[string]interface{}{"status": model.StatusActive, "updated_at": now})
	return res.RowsAffected, res.Error
}

// ListOverdue 已过截止时间但尚未关闭的测评
func (r *EvaluationRepository) ListOverdue(ctx context.Context, now time.Time) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).Model(&model.Evaluation{}).
		Where("status IN ? AND end_time < ?", []model.EvaluationStatus{model.StatusActive, model.StatusPublished}, now).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// ListEndingWithin ACTIVE 且截止时间在 (now, now+horizon] 内的测评
func (r *EvaluationRepository) ListEndingWithin(ctx context.Context, now time.Time, horizon time.Duration) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).Model(&model.Evaluation{}).
		Where("status = ? AND end_time > ? AND end_time <= ?", model.StatusActive, now, now.Add(horizon)).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// ReminderTarget 一条待提醒的 (测评, 学生)
type ReminderTarget struct {
	EvaluationID uint
	StudentID    uint
}

// DueForReminder 截止时间在 horizon 内、且尚无 DONE 会话的学生
func (r *EvaluationRepository) DueForReminder(ctx context.Context, now time.Time, horizon time.Duration) ([]ReminderTarget, error) {
	var targets []ReminderTarget
	err := r.DB.WithContext(ctx).
		Table("evaluations e").
		Select("DISTINCT e.id AS evaluation_id, cs.user_id AS student_id").
		Joins("JOIN evaluation_classes ec ON ec.evaluation_id = e.id").
		Joins("JOIN class_students cs ON cs.class_id = ec.class_id").
		Joins("JOIN users u ON u.id = cs.user_id AND u.deleted_at IS NULL AND u.role = ?", model.RoleStudent).
		Where("e.deleted_at IS NULL AND e.status = ? AND e.end_time > ? AND e.end_time <= ?", model.StatusActive, now, now.Add(horizon)).
		Where(`NOT EXISTS (
			SELECT 1 FROM anonymization_tokens t
			JOIN quizzes q ON q.evaluation_id = t.evaluation_id
			JOIN submission_sessions s ON s.quiz_id = q.id AND s.token = t.token
			WHERE t.evaluation_id = e.id AND t.student_id = cs.user_id AND s.status = ?
		)`, model.SessionDone).
		Order("e.id, cs.user_id").
		Scan(&targets).Error
	return targets, err
}

func (r *EvaluationRepository) CountSessions(ctx context.Context, evaluationID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Table("submission_sessions s").
		Joins("JOIN quizzes q ON q.id = s.quiz_id").
		Where("q.evaluation_id = ?", evaluationID).
		Count(&count).Error
	return count, err
}

// HardDelete 删除测评及其 Quiz、题目、班级关联、匿名令牌与未执行的派发任务。
// 仅当测评处于 DRAFT 或没有任何提交会话时执行；返回 false 表示已有提交。
func (r *EvaluationRepository) HardDelete(ctx context.Context, id uint) (bool, error) {
	deleted := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var evaluation model.Evaluation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&evaluation, id).Error; err != nil {
			return err
		}

		var quizIDs []uint
		if err := tx.Model(&model.Quiz{}).Where("evaluation_id = ?", id).Pluck("id", &quizIDs).Error; err != nil {
			return err
		}

		if evaluation.Status != model.StatusDraft && len(quizIDs) > 0 {
			var sessions int64
			if err := tx.Model(&model.SubmissionSession{}).Where("quiz_id IN ?", quizIDs).Count(&sessions).Error; err != nil {
				return err
			}
			if sessions > 0 {
				return nil
			}
		}

		if len(quizIDs) > 0 {
			var sessionIDs []uint
			if err := tx.Model(&model.SubmissionSession{}).Where("quiz_id IN ?", quizIDs).Pluck("id", &sessionIDs).Error; err != nil {
				return err
			}
			if len(sessionIDs) > 0 {
				if err := tx.Where("session_id IN ?", sessionIDs).Delete(&model.Answer{}).Error; err != nil {
					return err
				}
				if err := tx.Where("id IN ?", sessionIDs).Delete(&model.SubmissionSession{}).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("quiz_id IN ?", quizIDs).Delete(&model.Question{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", quizIDs).Delete(&model.Quiz{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("evaluation_id = ?", id).Delete(&model.AnonymizationToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("evaluation_id = ? AND status = ?", id, model.TaskPending).Delete(&model.DispatchTask{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&evaluation).Association("Classes").Clear(); err != nil {
			return err
		}
		if err := tx.Unscoped().Delete(&model.Evaluation{}, id).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// Archive 软删除，提交数据保留
func (r *EvaluationRepository) Archive(ctx context.Context, id uint) (bool, error) {
	res := r.DB.WithContext(ctx).
		Where("id = ? AND status = ?", id, model.StatusClosed).
		Delete(&model.Evaluation{})
	return res.RowsAffected > 0, res.Error
}

// PendingStudentIDs 目标班级中尚未产生 DONE 会话的学生
func (r *EvaluationRepository) PendingStudentIDs(ctx context.Context, evaluationID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).
		Table("class_students cs").
		Joins("JOIN evaluation_classes ec ON ec.class_id = cs.class_id").
		Joins("JOIN users u ON u.id = cs.user_id AND u.deleted_at IS NULL AND u.role = ?", model.RoleStudent).
		Where("ec.evaluation_id = ?", evaluationID).
		Where(`NOT EXISTS (
			SELECT 1 FROM anonymization_tokens t
			JOIN quizzes q ON q.evaluation_id = t.evaluation_id
			JOIN submission_sessions s ON s.quiz_id = q.id AND s.token = t.token
			WHERE t.evaluation_id = ec.evaluation_id AND t.student_id = cs.user_id AND s.status = ?
		)`, model.SessionDone).
		Distinct("cs.user_id").
		Order("cs.user_id").
		Pluck("cs.user_id", &ids).Error
	return ids, err
}
