package service

import (
	"context"
	"course_eval_backend/internal/model"
	"course_eval_backend/internal/repository"
	"course_eval_backend/internal/util"
	"course_eval_backend/pkg/logger"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SubmissionService struct {
	Repo        *repository.SubmissionRepository
	Evaluations *repository.EvaluationRepository
	Directory   *repository.DirectoryRepository
	Mapper      *AnonymizationService
	Outbox      *Outbox
	Now         func() time.Time
}

func NewSubmissionService(
	repo *repository.SubmissionRepository,
	evaluations *repository.EvaluationRepository,
	directory *repository.DirectoryRepository,
	mapper *AnonymizationService,
	outbox *Outbox,
) *SubmissionService {
	return &SubmissionService{
		Repo:        repo,
		Evaluations: evaluations,
		Directory:   directory,
		Mapper:      mapper,
		Outbox:      outbox,
		Now:         utcNow,
	}
}

type AnswerReq struct {
	QuestionID uint   `json:"questionId" binding:"required"`
	Content    string `json:"content"`
}

type SubmitReq struct {
	Answers []AnswerReq `json:"answers" binding:"required,min=1,dive"`
	IsFinal bool        `json:"isFinal"`
}

type SubmitResult struct {
	Message string              `json:"message"`
	Token   string              `json:"token"`
	Status  model.SessionStatus `json:"status"`
}

// QuizView 学生作答所需的题目信息
type QuizView struct {
	ID           uint             `json:"id"`
	EvaluationID uint             `json:"evaluationId"`
	Title        string           `json:"title"`
	EndTime      time.Time        `json:"endTime"`
	Questions    []model.Question `json:"questions"`
}

func (s *SubmissionService) resolve(ctx context.Context, quizID, studentID uint) (*model.Quiz, *model.Evaluation, error) {
	quiz, err := s.Evaluations.FindQuiz(ctx, quizID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, util.ErrQuizNotFound
		}
		return nil, nil, err
	}
	evaluation, err := s.Evaluations.FindByIDUnscoped(ctx, quiz.EvaluationID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, util.ErrQuizNotFound
		}
		return nil, nil, err
	}
	if evaluation.DeletedAt.Valid || !evaluation.Status.Open() {
		return nil, nil, util.ErrEvaluationNotOpen
	}
	enrolled, err := s.Directory.IsEnrolled(ctx, studentID, evaluation.ID)
	if err != nil {
		return nil, nil, err
	}
	if !enrolled {
		return nil, nil, util.ErrNotEnrolled
	}
	return quiz, evaluation, nil
}

func (s *SubmissionService) GetQuiz(ctx context.Context, quizID, studentID uint) (*QuizView, error) {
	quiz, evaluation, err := s.resolve(ctx, quizID, studentID)
	if err != nil {
		return nil, err
	}
	return &QuizView{
		ID:           quiz.ID,
		EvaluationID: evaluation.ID,
		Title:        evaluation.Title,
		EndTime:      evaluation.EndTime,
		Questions:    quiz.Questions,
	}, nil
}

func validateAnswers(quiz *model.Quiz, answers []AnswerReq) ([]model.Answer, error) {
	if len(answers) == 0 {
		return nil, util.Validation("answers must not be empty")
	}
	questions := make(map[uint]*model.Question, len(quiz.Questions))
	for i := range quiz.Questions {
		questions[quiz.Questions[i].ID] = &quiz.Questions[i]
	}

	seen := make(map[uint]bool, len(answers))
	out := make([]model.Answer, 0, len(answers))
	for _, a := range answers {
		q, ok := questions[a.QuestionID]
		if !ok {
			return nil, util.Validation("question %d does not belong to quiz %d", a.QuestionID, quiz.ID)
		}
		if seen[a.QuestionID] {
			return nil, util.Validation("duplicate answer for question %d", a.QuestionID)
		}
		seen[a.QuestionID] = true

		switch q.Type {
		case model.QuestionMultipleChoice:
			if !q.HasOption(a.Content) {
				return nil, util.Validation("answer to question %d is not one of its options", a.QuestionID)
			}
		case model.QuestionOpenText:
			if strings.TrimSpace(a.Content) == "" {
				return nil, util.Validation("answer to question %d must not be blank", a.QuestionID)
			}
		}
		out = append(out, model.Answer{QuestionID: a.QuestionID, Content: a.Content})
	}
	return out, nil
}

// Submit 令牌获取、会话 upsert、答案替换在同一事务内完成。
// 已完成的会话允许再次提交并整体替换答案。
func (s *SubmissionService) Submit(ctx context.Context, quizID, studentID uint, req SubmitReq) (*SubmitResult, error) {
	quiz, evaluation, err := s.resolve(ctx, quizID, studentID)
	if err != nil {
		return nil, err
	}
	answers, err := validateAnswers(quiz, req.Answers)
	if err != nil {
		return nil, err
	}

	var result SubmitResult
	err = s.Repo.Transaction(ctx, func(tx *gorm.DB) error {
		token, err := s.Mapper.WithTx(tx).GetOrCreateToken(ctx, studentID, evaluation.ID)
		if err != nil {
			return err
		}
		repo := s.Repo.WithTx(tx)
		session, err := repo.UpsertSession(ctx, quiz.ID, token, req.IsFinal, s.Now())
		if err != nil {
			return err
		}
		if err := repo.ReplaceAnswers(ctx, session.ID, answers); err != nil {
			return err
		}
		result = SubmitResult{Token: token, Status: session.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Message = "Answers saved"
	if req.IsFinal {
		result.Message = "Submission completed"
		s.confirm(ctx, evaluation.ID, studentID)
	}
	return &result, nil
}

// confirm 提交已落库，确认通知失败只记录日志
func (s *SubmissionService) confirm(ctx context.Context, evaluationID, studentID uint) {
	if s.Outbox == nil {
		return
	}
	if err := s.Outbox.Enqueue(context.WithoutCancel(ctx), ConfirmationTask(evaluationID, studentID)); err != nil {
		logger.Log.Warn("Failed to enqueue submission confirmation",
			zap.Uint("evaluationId", evaluationID),
			zap.Uint("userId", studentID),
			zap.Error(err))
	}
}
