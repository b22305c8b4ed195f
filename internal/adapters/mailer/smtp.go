package mailer

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"rentwatch/internal/domain"
	"rentwatch/internal/infra/metrics"
)

// Config — параметры SMTP-подключения.
type Config struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	Timeout  time.Duration
}

// SMTP отправляет письма через обычный SMTP-сервер.
type SMTP struct {
	cfg  Config
	addr string
}

var _ domain.Mailer = (*SMTP)(nil)

// New создаёт SMTP-отправитель.
func New(cfg Config) *SMTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTP{cfg: cfg, addr: net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))}
}

// Send отправляет HTML-письмо одному получателю. Контекст ограничивает
// время всей SMTP-сессии.
func (m *SMTP) Send(ctx context.Context, to, subject, htmlBody string) error {
	start := time.Now()
	err := m.send(ctx, to, subject, htmlBody)
	metrics.ObserveNetworkRequest("smtp", "send", m.cfg.Host, start, err)
	metrics.DeliverySendSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DeliverySendErrors.Inc()
	}
	return err
}

func (m *SMTP) send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(m.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn, err := net.DialTimeout("tcp", m.addr, time.Until(deadline))
	if err != nil {
		return fmt.Errorf("подключение к smtp: %w", err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("установка дедлайна: %w", err)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("открытие smtp-сессии: %w", err)
	}
	defer client.Close()

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("аутентификация smtp: %w", err)
			}
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("команда MAIL: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("команда RCPT: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("команда DATA: %w", err)
	}
	if _, err := w.Write(buildMessage(m.cfg.From, to, subject, htmlBody)); err != nil {
		w.Close()
		return fmt.Errorf("запись тела письма: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("завершение тела письма: %w", err)
	}
	return client.Quit()
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")
	return []byte(b.String())
}
