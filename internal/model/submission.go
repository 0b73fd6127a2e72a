package model

import "time"

type SessionStatus string

const (
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionDone       SessionStatus = "DONE"
)

// SubmissionSession 只以匿名令牌关联学生，不保存学生 ID
type SubmissionSession struct {
	ID        uint          `gorm:"primaryKey;autoIncrement" json:"id"`
	QuizID    uint          `gorm:"not null;uniqueIndex:idx_session_quiz_token" json:"quizId"`
	Token     string        `gorm:"size:64;not null;uniqueIndex:idx_session_quiz_token" json:"token"`
	Status    SessionStatus `gorm:"size:16;not null;index" json:"status"`
	StartedAt time.Time     `gorm:"not null" json:"startedAt"`
	EndedAt   *time.Time    `json:"endedAt,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Answers   []Answer      `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"answers,omitempty"`
}

func (SubmissionSession) TableName() string {
	return "submission_sessions"
}

type Answer struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  uint      `gorm:"not null;index" json:"sessionId"`
	QuestionID uint      `gorm:"not null;index" json:"questionId"`
	Content    string    `gorm:"type:text" json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (Answer) TableName() string {
	return "answers"
}
