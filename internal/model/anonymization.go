package model

import "time"

// AnonymizationToken 每个 (学生, 测评) 唯一，创建后不再变更
type AnonymizationToken struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID    uint      `gorm:"not null;uniqueIndex:idx_token_student_evaluation" json:"-"`
	EvaluationID uint      `gorm:"not null;uniqueIndex:idx_token_student_evaluation;index" json:"evaluationId"`
	Token        string    `gorm:"size:64;not null;uniqueIndex" json:"token"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (AnonymizationToken) TableName() string {
	return "anonymization_tokens"
}
