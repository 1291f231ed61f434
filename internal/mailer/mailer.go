// Package mailer はパスワードリセットなどの通知メール送信を提供する。
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// defaultSendTimeout はctxに期限がない場合の送信全体の上限時間。
const defaultSendTimeout = 10 * time.Second

// Mailer はメール送信のインターフェース。
// 送信はctxの期限で打ち切られる。
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer はSMTP経由でメールを送信する。
// 接続・SMTPダイアログの全体にctx由来のデッドラインを設定するため、
// 応答しないSMTPサーバーがハンドラーを塞ぐことはない。
type SMTPMailer struct {
	addr string // host:port
	from string
}

// NewSMTPMailer はSMTPMailerを生成する。
func NewSMTPMailer(addr, from string) *SMTPMailer {
	return &SMTPMailer{addr: addr, from: from}
}

// Send はメールを送信する。
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultSendTimeout)
	}

	conn, err := (&net.Dialer{Deadline: deadline}).DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to smtp server: %w", err)
	}
	// 個々の読み書きもデッドラインで打ち切る
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set smtp deadline: %w", err)
	}

	host, _, err := net.SplitHostPort(m.addr)
	if err != nil {
		conn.Close()
		return fmt.Errorf("invalid smtp address %q: %w", m.addr, err)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open smtp session: %w", err)
	}
	defer client.Close()

	if err := client.Mail(m.from); err != nil {
		return fmt.Errorf("smtp MAIL failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT failed: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err := w.Write([]byte(msg.String())); err != nil {
		return fmt.Errorf("failed to write mail body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish mail body: %w", err)
	}
	return client.Quit()
}

// LogMailer はメールを送信せずログに出力する。
// SMTP未設定の開発環境向け。
type LogMailer struct{}

// NewLogMailer はLogMailerを生成する。
func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

// Send はメール内容をログに出力する。
func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	slog.Info("mail (log only)",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}

var (
	_ Mailer = (*SMTPMailer)(nil)
	_ Mailer = (*LogMailer)(nil)
)
