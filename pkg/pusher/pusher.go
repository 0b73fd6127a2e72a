package pusher

import "context"

// Notification 推送载荷
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// TokenResult 单个设备令牌的投递结果
type TokenResult struct {
	Token string
	// Invalid 表示令牌已失效，调用方应停用该设备
	Invalid bool
	Err     error
}

func (r TokenResult) OK() bool {
	return r.Err == nil && !r.Invalid
}

// Gateway 推送渠道；返回的 error 表示整批失败，单个令牌的错误放在结果中
type Gateway interface {
	Send(ctx context.Context, tokens []string, n Notification) ([]TokenResult, error)
}
