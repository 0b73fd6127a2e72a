package mailer

import (
	"context"
	"course_eval_backend/pkg/logger"
	"sync"

	"go.uber.org/zap"
)

// ConsoleGateway 开发环境使用，只写日志并记录已发送的邮件
type ConsoleGateway struct {
	mu   sync.Mutex
	Sent []Message
}

var _ Gateway = (*ConsoleGateway)(nil)

func NewConsoleGateway() *ConsoleGateway {
	return &ConsoleGateway{}
}

func (g *ConsoleGateway) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Log.Info("Email (console)",
		zap.String("to", msg.To.String()),
		zap.String("subject", msg.Subject),
	)
	g.mu.Lock()
	g.Sent = append(g.Sent, msg)
	g.mu.Unlock()
	return nil
}

func (g *ConsoleGateway) Messages() []Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Message, len(g.Sent))
	copy(out, g.Sent)
	return out
}
