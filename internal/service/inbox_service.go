package service

import (
	"context"
	"course_eval_backend/internal/model"
	"course_eval_backend/internal/repository"
	"course_eval_backend/internal/util"
	"time"
)

type InboxService struct {
	Repo *repository.NotificationRepository
	Now  func() time.Time
}

func NewInboxService(repo *repository.NotificationRepository) *InboxService {
	return &InboxService{Repo: repo, Now: utcNow}
}

type InboxItem struct {
	ID           uint                   `json:"id"`
	Type         model.NotificationType `json:"type"`
	Title        string                 `json:"title"`
	Body         string                 `json:"body"`
	EvaluationID *uint                  `json:"evaluationId,omitempty"`
	IsRead       bool                   `json:"isRead"`
	ReadAt       *time.Time             `json:"readAt,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
}

func (s *InboxService) List(ctx context.Context, userID uint, unreadOnly bool, page, limit int) (*util.PageResponse, error) {
	page, limit = util.ClampPage(page, limit)
	rows, total, err := s.Repo.ListInbox(ctx, userID, unreadOnly, page, limit)
	if err != nil {
		return nil, err
	}

	items := make([]InboxItem, 0, len(rows))
	for _, r := range rows {
		item := InboxItem{ID: r.EventID, IsRead: r.IsRead, ReadAt: r.ReadAt, CreatedAt: r.CreatedAt}
		if r.Event != nil {
			item.Type = r.Event.Type
			item.Title = r.Event.Title
			item.Body = r.Event.Body
			item.EvaluationID = r.Event.EvaluationID
		}
		items = append(items, item)
	}
	return &util.PageResponse{List: items, Total: total, Page: page, Limit: limit}, nil
}

func (s *InboxService) MarkRead(ctx context.Context, userID, eventID uint) error {
	err := s.Repo.MarkRead(ctx, userID, eventID, s.Now())
	if repository.IsNotFound(err) {
		return util.ErrNotificationNotFound
	}
	return err
}

func (s *InboxService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.Repo.UnreadCount(ctx, userID)
}
