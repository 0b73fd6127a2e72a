package model

import (
	"time"

	"gorm.io/datatypes"
)

type EvaluationStatus string

const (
	StatusDraft     EvaluationStatus = "DRAFT"
	StatusPublished EvaluationStatus = "PUBLISHED"
	StatusActive    EvaluationStatus = "ACTIVE"
	StatusClosed    EvaluationStatus = "CLOSED"
)

// Open 学生可以作答的状态
func (s EvaluationStatus) Open() bool {
	return s == StatusPublished || s == StatusActive
}

// swagger:model Evaluation
type Evaluation struct {
	BaseModel
	Title       string           `gorm:"size:255;not null" json:"title"`
	CourseID    uint             `gorm:"index;not null" json:"courseId"`
	StartTime   time.Time        `gorm:"not null" json:"startTime"`
	EndTime     time.Time        `gorm:"index;not null" json:"endTime"`
	Status      EvaluationStatus `gorm:"size:16;index;not null" json:"status"`
	OwnerID     uint             `gorm:"index;not null" json:"ownerId"`
	PublishedAt *time.Time       `json:"publishedAt,omitempty"`
	ClosedAt    *time.Time       `json:"closedAt,omitempty"`
	Classes     []Class          `gorm:"many2many:evaluation_classes" json:"classes,omitempty"`
	Quiz        *Quiz            `gorm:"foreignKey:EvaluationID" json:"quiz,omitempty"`
}

func (Evaluation) TableName() string {
	return "evaluations"
}

// ClassIDs 目标班级 ID 列表
func (e *Evaluation) ClassIDs() []uint {
	ids := make([]uint, 0, len(e.Classes))
	for _, c := range e.Classes {
		ids = append(ids, c.ID)
	}
	return ids
}

type Quiz struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	EvaluationID uint       `gorm:"uniqueIndex;not null" json:"evaluationId"`
	CreatedAt    time.Time  `json:"createdAt"`
	Questions    []Question `gorm:"foreignKey:QuizID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionOpenText       QuestionType = "OPEN_TEXT"
)

func (t QuestionType) Valid() bool {
	return t == QuestionMultipleChoice || t == QuestionOpenText
}

type Question struct {
	ID        uint                        `gorm:"primaryKey;autoIncrement" json:"id"`
	QuizID    uint                        `gorm:"index;not null" json:"quizId"`
	Enonce    string                      `gorm:"type:text;not null" json:"enonce"`
	Type      QuestionType                `gorm:"size:32;not null" json:"type"`
	Options   datatypes.JSONSlice[string] `json:"options,omitempty"`
	Position  int                         `gorm:"not null;default:0" json:"position"`
	CreatedAt time.Time                   `json:"createdAt"`
}

func (Question) TableName() string {
	return "questions"
}

// HasOption 判断选择题答案是否为合法选项
func (q *Question) HasOption(content string) bool {
	for _, o := range q.Options {
		if o == content {
			return true
		}
	}
	return false
}
