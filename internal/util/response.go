package util

import (
	"course_eval_backend/pkg/logger"
	"course_eval_backend/pkg/observability"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse 统一错误结构
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PageResponse 分页响应结构
type PageResponse struct {
	List  interface{} `json:"list"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

func Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Code: code, Message: message})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "FORBIDDEN", "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, "VALIDATION", message)
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "INTERNAL", "Internal server error")
}

// 状态机相关的错误码按约定返回 400
var stateMachineCodes = map[string]bool{
	"NO_QUESTIONS":   true,
	"INVALID_STATUS": true,
	"ALREADY_CLOSED": true,
}

// StatusOf 错误 -> HTTP 状态码
func StatusOf(err error) int {
	code := CodeOf(err)
	if stateMachineCodes[code] {
		return http.StatusBadRequest
	}
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindExternal:
		return http.StatusBadGateway
	case KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// RespondError 业务错误直接透出错误码；未知错误记录日志后返回 500
func RespondError(c *gin.Context, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		LogInternalError(c, err)
		return
	}
	var msg string
	if appErr, ok := err.(*AppError); ok {
		msg = appErr.Message
	} else {
		msg = err.Error()
	}
	Error(c, status, CodeOf(err), msg)
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error",
		zap.Error(err),
		zap.String("path", c.FullPath()),
		zap.String("method", c.Request.Method),
	)
	observability.CaptureErr(err)
	InternalServerError(c)
}
