// Package mailer はSMTPリレー経由の通知メール送信を提供する。
//
// 送信は1回限りで、リトライもキューイングも行わない。
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

// Message は送信するプレーンテキストメール。
type Message struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	Body    string
}

// Config はSMTPリレーの接続設定。
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// sender はSMTPクライアントの送信操作。テストで差し替える。
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer はSMTPリレーにメールを送信する。
type Mailer struct {
	client sender
}

// New はMailerを生成する。認証情報が設定されている場合のみSMTP認証を行う。
func New(cfg Config) (*Mailer, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return &Mailer{client: client}, nil
}

// Send はメッセージを1回だけ送信する。
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	mm, err := build(msg)
	if err != nil {
		return err
	}

	if err := m.client.DialAndSendWithContext(ctx, mm); err != nil {
		slog.Error("failed to send mail",
			slog.String("to", msg.To),
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
	}

	slog.Info("mail sent",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

func build(msg Message) (*mail.Msg, error) {
	mm := mail.NewMsg()
	if err := mm.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", msg.From, err)
	}
	if err := mm.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %w", msg.To, err)
	}
	if msg.ReplyTo != "" {
		if err := mm.ReplyTo(msg.ReplyTo); err != nil {
			return nil, fmt.Errorf("invalid reply-to address %q: %w", msg.ReplyTo, err)
		}
	}
	mm.Subject(msg.Subject)
	mm.SetDate()
	mm.SetBodyString(mail.TypeTextPlain, msg.Body)
	return mm, nil
}
