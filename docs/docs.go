// Package docs 注册 Swagger 文档，供 /swagger 路由读取
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/evaluations": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["测评"],
                "summary": "测评列表",
                "parameters": [
                    {"enum": ["DRAFT", "PUBLISHED", "ACTIVE", "CLOSED"], "type": "string", "description": "状态", "name": "status", "in": "query"},
                    {"type": "integer", "default": 1, "description": "页码", "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "description": "每页数量", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/util.PageResponse"}}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["测评"],
                "summary": "创建测评（草稿）",
                "parameters": [
                    {"description": "测评信息", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.CreateEvaluationReq"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/model.Evaluation"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/util.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/util.ErrorResponse"}}
                }
            }
        },
        "/evaluations/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["测评"],
                "summary": "测评详情（含题目）",
                "parameters": [{"type": "integer", "description": "测评ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Evaluation"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/util.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["测评"],
                "summary": "删除测评",
                "parameters": [{"type": "integer", "description": "测评ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "HAS_SUBMISSIONS", "schema": {"$ref": "#/definitions/util.ErrorResponse"}}
                }
            }
        },
        "/evaluations/{id}/participation": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["测评"],
                "summary": "参与情况（仅计数）",
                "parameters": [{"type": "integer", "description": "测评ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/repository.Participation"}}}
            }
        },
        "/evaluations/{id}/questions": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["测评"],
                "summary": "添加题目（仅草稿）",
                "parameters": [
                    {"type": "integer", "description": "测评ID", "name": "id", "in": "path", "required": true},
                    {"description": "题目", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.QuestionReq"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/model.Question"}}}
            }
        },
        "/evaluations/{id}/publish": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["测评"],
                "summary": "发布测评",
                "parameters": [{"type": "integer", "description": "测评ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Evaluation"}},
                    "400": {"description": "NO_QUESTIONS | INVALID_STATUS", "schema": {"$ref": "#/definitions/util.ErrorResponse"}}
                }
            }
        },
        "/evaluations/{id}/close": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["测评"],
                "summary": "关闭测评",
                "parameters": [{"type": "integer", "description": "测评ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Evaluation"}},
                    "400": {"description": "ALREADY_CLOSED", "schema": {"$ref": "#/definitions/util.ErrorResponse"}}
                }
            }
        },
        "/evaluations/{id}/archive": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["测评"],
                "summary": "归档已关闭的测评",
                "parameters": [{"type": "integer", "description": "测评ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/quizzes/{quizId}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["作答"],
                "summary": "获取测评题目",
                "parameters": [{"type": "integer", "description": "QuizID", "name": "quizId", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/service.QuizView"}}}
            }
        },
        "/quizzes/{quizId}/submit": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "isFinal=false 保存草稿，isFinal=true 完成提交；每次提交整体替换已有答案",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["作答"],
                "summary": "提交答案",
                "parameters": [
                    {"type": "integer", "description": "QuizID", "name": "quizId", "in": "path", "required": true},
                    {"description": "答案", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.SubmitReq"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/service.SubmitResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/util.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/util.ErrorResponse"}}
                }
            }
        },
        "/push-notifications/register": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["通知"],
                "summary": "注册推送设备",
                "parameters": [{"description": "设备", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.RegisterDeviceRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/model.DeviceEndpoint"}}}
            }
        },
        "/push-notifications/unregister": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["通知"],
                "summary": "注销推送设备",
                "parameters": [{"description": "设备", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.UnregisterDeviceRequest"}}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/push-notifications/preferences": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["通知"],
                "summary": "获取通知偏好",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/model.NotificationPreference"}}}
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["通知"],
                "summary": "更新通知偏好",
                "parameters": [{"description": "偏好", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.UpdatePreferenceRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/model.NotificationPreference"}}}
            }
        },
        "/notifications": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["通知"],
                "summary": "站内通知列表",
                "parameters": [
                    {"type": "boolean", "description": "只看未读", "name": "unread", "in": "query"},
                    {"type": "integer", "default": 1, "description": "页码", "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "description": "每页数量", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/util.PageResponse"}}}
            }
        },
        "/notifications/{id}/read": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["通知"],
                "summary": "标记已读",
                "parameters": [{"type": "integer", "description": "通知ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/notifications/unread-count": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["通知"],
                "summary": "未读数量",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/auth/register": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["认证"],
                "summary": "注册新用户",
                "parameters": [{"description": "用户注册信息", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.RegisterRequest"}}],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "邮箱已被注册", "schema": {"$ref": "#/definitions/util.ErrorResponse"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["认证"],
                "summary": "登录并获取 JWT",
                "parameters": [{"description": "登录信息", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.LoginRequest"}}],
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/util.ErrorResponse"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["认证"],
                "summary": "当前登录用户",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/health": {
            "get": {
                "description": "检查数据库、Redis 与定时任务状态",
                "produces": ["application/json"],
                "tags": ["系统"],
                "summary": "健康检查",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "util.ErrorResponse": {
            "type": "object",
            "properties": {"code": {"type": "string"}, "message": {"type": "string"}}
        },
        "util.PageResponse": {
            "type": "object",
            "properties": {"list": {}, "total": {"type": "integer"}, "page": {"type": "integer"}, "limit": {"type": "integer"}}
        },
        "model.Question": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "quizId": {"type": "integer"},
                "enonce": {"type": "string"},
                "type": {"type": "string", "enum": ["MULTIPLE_CHOICE", "OPEN_TEXT"]},
                "options": {"type": "array", "items": {"type": "string"}},
                "position": {"type": "integer"}
            }
        },
        "model.Evaluation": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "title": {"type": "string"},
                "courseId": {"type": "integer"},
                "startTime": {"type": "string"},
                "endTime": {"type": "string"},
                "status": {"type": "string", "enum": ["DRAFT", "PUBLISHED", "ACTIVE", "CLOSED"]},
                "ownerId": {"type": "integer"},
                "publishedAt": {"type": "string"},
                "closedAt": {"type": "string"}
            }
        },
        "model.DeviceEndpoint": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "token": {"type": "string"},
                "platform": {"type": "string"},
                "isActive": {"type": "boolean"},
                "lastUsedAt": {"type": "string"}
            }
        },
        "model.NotificationPreference": {
            "type": "object",
            "properties": {
                "userId": {"type": "integer"},
                "inAppEnabled": {"type": "boolean"},
                "pushEnabled": {"type": "boolean"},
                "emailEnabled": {"type": "boolean"},
                "quietHoursStart": {"type": "string", "example": "08:00:00"},
                "quietHoursEnd": {"type": "string", "example": "22:00:00"},
                "reminderFrequency": {"type": "string", "enum": ["ALL", "FINAL_ONLY", "NONE"]}
            }
        },
        "repository.Participation": {
            "type": "object",
            "properties": {
                "evaluationId": {"type": "integer"},
                "status": {"type": "string"},
                "eligible": {"type": "integer"},
                "tokensIssued": {"type": "integer"},
                "inProgress": {"type": "integer"},
                "completed": {"type": "integer"},
                "notifications": {"type": "object", "additionalProperties": {"type": "integer"}}
            }
        },
        "service.RegisterRequest": {
            "type": "object",
            "required": ["name", "email", "password", "role"],
            "properties": {
                "name": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string"},
                "role": {"type": "string", "enum": ["student", "teacher"]}
            }
        },
        "service.LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {"email": {"type": "string"}, "password": {"type": "string"}}
        },
        "service.QuestionReq": {
            "type": "object",
            "required": ["enonce", "type"],
            "properties": {
                "enonce": {"type": "string"},
                "type": {"type": "string", "enum": ["MULTIPLE_CHOICE", "OPEN_TEXT"]},
                "options": {"type": "array", "items": {"type": "string"}}
            }
        },
        "service.CreateEvaluationReq": {
            "type": "object",
            "required": ["title", "courseId", "classIds", "startTime", "endTime"],
            "properties": {
                "title": {"type": "string"},
                "courseId": {"type": "integer"},
                "classIds": {"type": "array", "items": {"type": "integer"}},
                "startTime": {"type": "string"},
                "endTime": {"type": "string"},
                "questions": {"type": "array", "items": {"$ref": "#/definitions/service.QuestionReq"}}
            }
        },
        "service.AnswerReq": {
            "type": "object",
            "required": ["questionId"],
            "properties": {"questionId": {"type": "integer"}, "content": {"type": "string"}}
        },
        "service.SubmitReq": {
            "type": "object",
            "required": ["answers"],
            "properties": {
                "answers": {"type": "array", "items": {"$ref": "#/definitions/service.AnswerReq"}},
                "isFinal": {"type": "boolean"}
            }
        },
        "service.SubmitResult": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "token": {"type": "string"},
                "status": {"type": "string", "enum": ["IN_PROGRESS", "DONE"]}
            }
        },
        "service.QuizView": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "evaluationId": {"type": "integer"},
                "title": {"type": "string"},
                "endTime": {"type": "string"},
                "questions": {"type": "array", "items": {"$ref": "#/definitions/model.Question"}}
            }
        },
        "service.RegisterDeviceRequest": {
            "type": "object",
            "required": ["token", "platform"],
            "properties": {"token": {"type": "string"}, "platform": {"type": "string", "enum": ["ios", "android", "web"]}}
        },
        "service.UnregisterDeviceRequest": {
            "type": "object",
            "required": ["token"],
            "properties": {"token": {"type": "string"}}
        },
        "service.UpdatePreferenceRequest": {
            "type": "object",
            "properties": {
                "inAppEnabled": {"type": "boolean"},
                "pushEnabled": {"type": "boolean"},
                "emailEnabled": {"type": "boolean"},
                "quietHoursStart": {"type": "string"},
                "quietHoursEnd": {"type": "string"},
                "reminderFrequency": {"type": "string", "enum": ["ALL", "FINAL_ONLY", "NONE"]}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Course Evaluation API",
	Description:      "课程评价：匿名测评、提交会话与多渠道通知。",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
