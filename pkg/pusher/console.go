package pusher

import (
	"context"
	"course_eval_backend/pkg/logger"

	"go.uber.org/zap"
)

type consoleGateway struct{}

// NewConsoleGateway 开发环境使用：所有令牌都视为投递成功
func NewConsoleGateway() Gateway {
	return consoleGateway{}
}

func (consoleGateway) Send(ctx context.Context, tokens []string, n Notification) ([]TokenResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger.Log.Info("Push (console)",
		zap.Int("tokens", len(tokens)),
		zap.String("title", n.Title),
	)
	results := make([]TokenResult, len(tokens))
	for i, t := range tokens {
		results[i] = TokenResult{Token: t}
	}
	return results, nil
}
