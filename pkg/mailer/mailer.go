package mailer

import (
	"context"
	"net/mail"
)

// Message 单个收件人的通知邮件
type Message struct {
	To          mail.Address
	Subject     string
	TextContent string
	HTMLContent string
}

// Gateway 邮件渠道；返回 error 表示本次投递失败
type Gateway interface {
	Send(ctx context.Context, msg Message) error
}
