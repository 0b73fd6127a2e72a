package service

import (
	"context"
	"course_eval_backend/internal/model"
	"course_eval_backend/internal/repository"
	"course_eval_backend/internal/util"
)

type PreferenceService struct {
	Repo         *repository.PreferenceRepository
	defaultStart string
	defaultEnd   string
}

func NewPreferenceService(repo *repository.PreferenceRepository, quietStart, quietEnd string) *PreferenceService {
	if quietStart == "" {
		quietStart = "08:00:00"
	}
	if quietEnd == "" {
		quietEnd = "22:00:00"
	}
	return &PreferenceService{Repo: repo, defaultStart: quietStart, defaultEnd: quietEnd}
}

func (s *PreferenceService) Defaults(userID uint) model.NotificationPreference {
	return model.DefaultPreference(userID, s.defaultStart, s.defaultEnd)
}

// Get 首次访问时按默认值创建
func (s *PreferenceService) Get(ctx context.Context, userID uint) (*model.NotificationPreference, error) {
	return s.Repo.GetOrCreate(ctx, s.Defaults(userID))
}

// ForUsers 批量读取；未创建过偏好的用户返回默认值（不落库）
func (s *PreferenceService) ForUsers(ctx context.Context, userIDs []uint) (map[uint]model.NotificationPreference, error) {
	found, err := s.Repo.FindByUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range userIDs {
		if _, ok := found[id]; !ok {
			found[id] = s.Defaults(id)
		}
	}
	return found, nil
}

type UpdatePreferenceRequest struct {
	InAppEnabled      *bool                    `json:"inAppEnabled"`
	PushEnabled       *bool                    `json:"pushEnabled"`
	EmailEnabled      *bool                    `json:"emailEnabled"`
	QuietHoursStart   *string                  `json:"quietHoursStart" binding:"omitempty,timeofday"`
	QuietHoursEnd     *string                  `json:"quietHoursEnd" binding:"omitempty,timeofday"`
	ReminderFrequency *model.ReminderFrequency `json:"reminderFrequency" binding:"omitempty,oneof=ALL FINAL_ONLY NONE"`
}

func (s *PreferenceService) Update(ctx context.Context, userID uint, req UpdatePreferenceRequest) (*model.NotificationPreference, error) {
	if req.QuietHoursStart != nil {
		if _, err := util.ParseTimeOfDay(*req.QuietHoursStart); err != nil {
			return nil, util.Validation("quietHoursStart must be HH:MM:SS")
		}
	}
	if req.QuietHoursEnd != nil {
		if _, err := util.ParseTimeOfDay(*req.QuietHoursEnd); err != nil {
			return nil, util.Validation("quietHoursEnd must be HH:MM:SS")
		}
	}
	if req.ReminderFrequency != nil && !req.ReminderFrequency.Valid() {
		return nil, util.Validation("reminderFrequency must be one of ALL, FINAL_ONLY, NONE")
	}

	pref, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.InAppEnabled != nil {
		pref.InAppEnabled = *req.InAppEnabled
	}
	if req.PushEnabled != nil {
		pref.PushEnabled = *req.PushEnabled
	}
	if req.EmailEnabled != nil {
		pref.EmailEnabled = *req.EmailEnabled
	}
	if req.QuietHoursStart != nil {
		pref.QuietHoursStart = *req.QuietHoursStart
	}
	if req.QuietHoursEnd != nil {
		pref.QuietHoursEnd = *req.QuietHoursEnd
	}
	if req.ReminderFrequency != nil {
		pref.ReminderFrequency = *req.ReminderFrequency
	}

	if err := s.Repo.Save(ctx, pref); err != nil {
		return nil, err
	}
	return pref, nil
}
