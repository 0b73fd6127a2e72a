package model

import "time"

type NotificationType string

const (
	NotificationNewEvaluation       NotificationType = "NEW_EVALUATION"
	NotificationReminder            NotificationType = "REMINDER"
	NotificationEvaluationClosed    NotificationType = "EVALUATION_CLOSED"
	NotificationSubmissionConfirmed NotificationType = "SUBMISSION_CONFIRMED"
)

type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
)

var AllChannels = []Channel{ChannelInApp, ChannelPush, ChannelEmail}

// NotificationEvent 一次扇出触发；TriggerKey 保证同一触发重跑时复用同一事件
type NotificationEvent struct {
	ID           uint                    `gorm:"primaryKey;autoIncrement" json:"id"`
	Type         NotificationType        `gorm:"size:32;not null;index" json:"type"`
	Title        string                  `gorm:"size:255;not null" json:"title"`
	Body         string                  `gorm:"type:text" json:"body"`
	EvaluationID *uint                   `gorm:"index" json:"evaluationId,omitempty"`
	TriggerKey   *string                 `gorm:"size:128;uniqueIndex" json:"-"`
	CreatedAt    time.Time               `json:"createdAt"`
	Recipients   []NotificationRecipient `gorm:"foreignKey:EventID" json:"-"`
}

func (NotificationEvent) TableName() string {
	return "notification_events"
}

type NotificationRecipient struct {
	EventID   uint               `gorm:"primaryKey;autoIncrement:false" json:"eventId"`
	UserID    uint               `gorm:"primaryKey;autoIncrement:false;index" json:"userId"`
	IsRead    bool               `gorm:"not null" json:"isRead"`
	ReadAt    *time.Time         `json:"readAt,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	Event     *NotificationEvent `gorm:"foreignKey:EventID" json:"event,omitempty"`
}

func (NotificationRecipient) TableName() string {
	return "notification_recipients"
}

// DeviceEndpoint 推送目标；失效时只停用不删除，清理任务负责过期删除
type DeviceEndpoint struct {
	ID            uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint       `gorm:"not null;index" json:"userId"`
	Token         string     `gorm:"size:255;not null;uniqueIndex" json:"token"`
	Platform      string     `gorm:"size:16;not null" json:"platform"`
	IsActive      bool       `gorm:"not null;index" json:"isActive"`
	LastUsedAt    time.Time  `gorm:"not null" json:"lastUsedAt"`
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (DeviceEndpoint) TableName() string {
	return "device_endpoints"
}

type ReminderFrequency string

const (
	ReminderAll       ReminderFrequency = "ALL"
	ReminderFinalOnly ReminderFrequency = "FINAL_ONLY"
	ReminderNone      ReminderFrequency = "NONE"
)

func (f ReminderFrequency) Valid() bool {
	return f == ReminderAll || f == ReminderFinalOnly || f == ReminderNone
}

// NotificationPreference 首次访问时按默认值懒创建
type NotificationPreference struct {
	ID                uint              `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID            uint              `gorm:"not null;uniqueIndex" json:"userId"`
	InAppEnabled      bool              `gorm:"not null" json:"inAppEnabled"`
	PushEnabled       bool              `gorm:"not null" json:"pushEnabled"`
	EmailEnabled      bool              `gorm:"not null" json:"emailEnabled"`
	QuietHoursStart   string            `gorm:"size:8;not null" json:"quietHoursStart"`
	QuietHoursEnd     string            `gorm:"size:8;not null" json:"quietHoursEnd"`
	ReminderFrequency ReminderFrequency `gorm:"size:16;not null" json:"reminderFrequency"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

func (NotificationPreference) TableName() string {
	return "notification_preferences"
}

func DefaultPreference(userID uint, quietStart, quietEnd string) NotificationPreference {
	return NotificationPreference{
		UserID:            userID,
		InAppEnabled:      true,
		PushEnabled:       true,
		EmailEnabled:      true,
		QuietHoursStart:   quietStart,
		QuietHoursEnd:     quietEnd,
		ReminderFrequency: ReminderAll,
	}
}

// Enabled 按渠道读取开关
func (p *NotificationPreference) Enabled(ch Channel) bool {
	switch ch {
	case ChannelInApp:
		return p.InAppEnabled
	case ChannelPush:
		return p.PushEnabled
	case ChannelEmail:
		return p.EmailEnabled
	}
	return false
}
