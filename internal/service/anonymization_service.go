package service

import (
	"context"
	"course_eval_backend/internal/model"
	"course_eval_backend/internal/repository"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"
)

// TokenLength 匿名令牌为 32 字节摘要的十六进制表示
const TokenLength = 64

const maxTokenAttempts = 3

// AnonymizationService 为 (学生, 测评) 发放稳定且不可猜测的匿名令牌
type AnonymizationService struct {
	Repo *repository.AnonymizationRepository
	key  []byte
	Now  func() time.Time
}

func NewAnonymizationService(repo *repository.AnonymizationRepository, secret string) *AnonymizationService {
	return &AnonymizationService{
		Repo: repo,
		key:  deriveKey(secret),
		Now:  utcNow,
	}
}

// blake2b 的 key 最长 64 字节
func deriveKey(secret string) []byte {
	if secret == "" {
		return nil
	}
	if len(secret) <= blake2b.Size {
		return []byte(secret)
	}
	sum := blake2b.Sum512([]byte(secret))
	return sum[:]
}

// WithTx 返回绑定到事务的副本
func (s *AnonymizationService) WithTx(tx *gorm.DB) *AnonymizationService {
	return &AnonymizationService{Repo: s.Repo.WithTx(tx), key: s.key, Now: s.Now}
}

// GetOrCreateToken 已存在则原样返回；并发首次调用时落败方重新读取胜出者的令牌
func (s *AnonymizationService) GetOrCreateToken(ctx context.Context, studentID, evaluationID uint) (string, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		existing, err := s.Repo.Find(ctx, studentID, evaluationID)
		if err != nil {
			return "", err
		}
		if existing != nil {
			return existing.Token, nil
		}

		token, err := s.derive(studentID, evaluationID, s.Now())
		if err != nil {
			return "", err
		}
		inserted, err := s.Repo.InsertIfAbsent(ctx, &model.AnonymizationToken{
			StudentID:    studentID,
			EvaluationID: evaluationID,
			Token:        token,
		})
		if err != nil {
			return "", err
		}
		if inserted {
			return token, nil
		}

		// 冲突后普通读取可能仍停留在事务快照（MySQL REPEATABLE READ），必须锁定读取
		winner, err := s.Repo.FindLocked(ctx, studentID, evaluationID)
		if err != nil {
			return "", err
		}
		if winner != nil {
			return winner.Token, nil
		}
	}
	return "", errors.New("anonymization token could not be persisted")
}

func (s *AnonymizationService) derive(studentID, evaluationID uint, at time.Time) (string, error) {
	h, err := blake2b.New256(s.key)
	if err != nil {
		return "", err
	}
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(studentID))
	binary.BigEndian.PutUint64(buf[8:16], uint64(evaluationID))
	binary.BigEndian.PutUint64(buf[16:24], uint64(at.UnixNano()))
	h.Write(buf[:])

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	h.Write(nonce)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
