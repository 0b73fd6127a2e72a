package service

import (
	"context"
	"course_eval_backend/internal/model"
	"course_eval_backend/internal/repository"
	"course_eval_backend/internal/util"
	"strings"
	"time"
)

var platforms = map[string]bool{"ios": true, "android": true, "web": true}

type DeviceService struct {
	Repo *repository.DeviceRepository
	Now  func() time.Time
}

func NewDeviceService(repo *repository.DeviceRepository) *DeviceService {
	return &DeviceService{Repo: repo, Now: utcNow}
}

type RegisterDeviceRequest struct {
	Token    string `json:"token" binding:"required,max=255"`
	Platform string `json:"platform" binding:"required"`
}

type UnregisterDeviceRequest struct {
	Token string `json:"token" binding:"required"`
}

func (s *DeviceService) Register(ctx context.Context, userID uint, req RegisterDeviceRequest) (*model.DeviceEndpoint, error) {
	token := strings.TrimSpace(req.Token)
	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	if token == "" {
		return nil, util.Validation("token is required")
	}
	if !platforms[platform] {
		return nil, util.Validation("platform must be one of ios, android, web")
	}
	return s.Repo.Register(ctx, userID, token, platform, s.Now())
}

func (s *DeviceService) Unregister(ctx context.Context, userID uint, token string) error {
	ok, err := s.Repo.Unregister(ctx, userID, strings.TrimSpace(token), s.Now())
	if err != nil {
		return err
	}
	if !ok {
		return util.ErrDeviceNotFound
	}
	return nil
}

// CleanupStale 删除停用且超过保留期未使用的设备
func (s *DeviceService) CleanupStale(ctx context.Context, retention time.Duration) (int64, error) {
	return s.Repo.DeleteStale(ctx, s.Now().Add(-retention))
}
