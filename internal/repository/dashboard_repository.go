package repository

import (
	"context"
	"course_eval_backend/internal/model"

	"gorm.io/gorm"
)

type DashboardRepository struct {
	DB *gorm.DB
}

func NewDashboardRepository(db *gorm.DB) *DashboardRepository {
	return &DashboardRepository{DB: db}
}

// Participation 只含聚合计数，不暴露令牌与学生的对应关系
type Participation struct {
	EvaluationID  uint             `json:"evaluationId"`
	Status        string           `json:"status"`
	Eligible      int64            `json:"eligible"`
	TokensIssued  int64            `json:"tokensIssued"`
	InProgress    int64            `json:"inProgress"`
	Completed     int64            `json:"completed"`
	Notifications map[string]int64 `json:"notifications"`
}

type typeCount struct {
	Type  string
	Count int64
}

func (r *DashboardRepository) Participation(ctx context.Context, evaluation *model.Evaluation) (*Participation, error) {
	db := r.DB.WithContext(ctx)
	p := &Participation{
		EvaluationID:  evaluation.ID,
		Status:        string(evaluation.Status),
		Notifications: make(map[string]int64),
	}

	err := db.Table("class_students cs").
		Joins("JOIN evaluation_classes ec ON ec.class_id = cs.class_id").
		Joins("JOIN users u ON u.id = cs.user_id AND u.deleted_at IS NULL").
		Where("ec.evaluation_id = ? AND u.role = ?", evaluation.ID, model.RoleStudent).
		Distinct("cs.user_id").
		Count(&p.Eligible).Error
	if err != nil {
		return nil, err
	}

	if err := db.Model(&model.AnonymizationToken{}).
		Where("evaluation_id = ?", evaluation.ID).
		Count(&p.TokensIssued).Error; err != nil {
		return nil, err
	}

	var sessions []typeCount
	err = db.Table("submission_sessions s").
		Select("s.status AS type, COUNT(*) AS count").
		Joins("JOIN quizzes q ON q.id = s.quiz_id").
		Where("q.evaluation_id = ?", evaluation.ID).
		Group("s.status").
		Scan(&sessions).Error
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		switch model.SessionStatus(s.Type) {
		case model.SessionInProgress:
			p.InProgress = s.Count
		case model.SessionDone:
			p.Completed = s.Count
		}
	}

	// 每种通知类型的接收人数
	var notifications []typeCount
	err = db.Table("notification_events e").
		Select("e.type AS type, COUNT(nr.user_id) AS count").
		Joins("JOIN notification_recipients nr ON nr.event_id = e.id").
		Where("e.evaluation_id = ?", evaluation.ID).
		Group("e.type").
		Scan(&notifications).Error
	if err != nil {
		return nil, err
	}
	for _, n := range notifications {
		p.Notifications[n.Type] = n.Count
	}
	return p, nil
}
