package model

import (
	"time"

	"gorm.io/datatypes"
)

type DispatchKind string

const (
	DispatchEvaluationPublished DispatchKind = "evaluation_published"
	DispatchEvaluationClosed    DispatchKind = "evaluation_closed"
	DispatchEvaluationReminder  DispatchKind = "evaluation_reminder"
	DispatchSubmissionConfirmed DispatchKind = "submission_confirmed"
)

type DispatchTaskStatus string

const (
	TaskPending    DispatchTaskStatus = "PENDING"
	TaskProcessing DispatchTaskStatus = "PROCESSING"
	TaskDone       DispatchTaskStatus = "DONE"
	TaskFailed     DispatchTaskStatus = "FAILED"
)

// DispatchTask 通知发件箱：状态变更提交后由后台 worker 异步消费
type DispatchTask struct {
	ID           uint               `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind         DispatchKind       `gorm:"size:32;not null;index" json:"kind"`
	DedupKey     string             `gorm:"size:128;not null;uniqueIndex" json:"dedupKey"`
	EvaluationID *uint              `gorm:"index" json:"evaluationId,omitempty"`
	RecipientID  *uint              `json:"recipientId,omitempty"`
	Payload      datatypes.JSONMap  `json:"payload,omitempty"`
	Status       DispatchTaskStatus `gorm:"size:16;not null;index" json:"status"`
	Attempts     int                `gorm:"not null" json:"attempts"`
	LastError    string             `gorm:"type:text" json:"lastError,omitempty"`
	AvailableAt  time.Time          `gorm:"not null;index" json:"availableAt"`
	ProcessedAt  *time.Time         `json:"processedAt,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

func (DispatchTask) TableName() string {
	return "dispatch_tasks"
}
