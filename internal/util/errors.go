package util

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类，决定 HTTP 状态码与日志策略
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindForbidden
	KindExternal
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindForbidden:
		return "FORBIDDEN"
	case KindExternal:
		return "EXTERNAL"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	}
	return "INTERNAL"
}

type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

var (
	ErrEvaluationNotFound   = &AppError{Kind: KindNotFound, Code: "NOT_FOUND", Message: "evaluation not found"}
	ErrQuizNotFound         = &AppError{Kind: KindNotFound, Code: "NOT_FOUND", Message: "quiz not found"}
	ErrQuestionNotFound     = &AppError{Kind: KindNotFound, Code: "NOT_FOUND", Message: "question not found"}
	ErrCourseNotFound       = &AppError{Kind: KindNotFound, Code: "NOT_FOUND", Message: "course not found"}
	ErrClassNotFound        = &AppError{Kind: KindNotFound, Code: "NOT_FOUND", Message: "class not found"}
	ErrNotificationNotFound = &AppError{Kind: KindNotFound, Code: "NOT_FOUND", Message: "notification not found"}
	ErrDeviceNotFound       = &AppError{Kind: KindNotFound, Code: "NOT_FOUND", Message: "device endpoint not found"}

	ErrInvalidStatus     = &AppError{Kind: KindForbidden, Code: "INVALID_STATUS", Message: "evaluation is not in the required status"}
	ErrNoQuestions       = &AppError{Kind: KindForbidden, Code: "NO_QUESTIONS", Message: "evaluation quiz has no questions"}
	ErrEvaluationNotOpen = &AppError{Kind: KindForbidden, Code: "EVALUATION_NOT_OPEN", Message: "evaluation is not open for submissions"}
	ErrNotEnrolled       = &AppError{Kind: KindForbidden, Code: "NOT_ENROLLED", Message: "student is not enrolled in a targeted class"}
	ErrPermissionDenied  = &AppError{Kind: KindForbidden, Code: "FORBIDDEN", Message: "permission denied"}

	ErrAlreadyClosed  = &AppError{Kind: KindConflict, Code: "ALREADY_CLOSED", Message: "evaluation is already closed"}
	ErrHasSubmissions = &AppError{Kind: KindConflict, Code: "HAS_SUBMISSIONS", Message: "evaluation already has submissions"}

	ErrNoRecipients = &AppError{Kind: KindValidation, Code: "VALIDATION", Message: "recipient list is empty"}

	ErrEmailRegistered    = &AppError{Kind: KindConflict, Code: "EMAIL_REGISTERED", Message: "email already registered"}
	ErrInvalidCredentials = &AppError{Kind: KindUnauthorized, Code: "UNAUTHORIZED", Message: "invalid credentials"}
)

// Validation 构造一次性的校验错误
func Validation(format string, args ...interface{}) error {
	return &AppError{Kind: KindValidation, Code: "VALIDATION", Message: fmt.Sprintf(format, args...)}
}

// External 渠道调用失败，只在单个接收人边界内记录
func External(channel string, err error) error {
	return &AppError{Kind: KindExternal, Code: "EXTERNAL", Message: channel + " delivery failed", Err: err}
}

func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "INTERNAL"
}
