// Package mail delivers transactional email over SMTP with STARTTLS.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// ErrNotConfigured is returned when SMTP credentials are missing.
var ErrNotConfigured = errors.New("smtp credentials not configured")

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppURL   string
}

// Sender is the surface services depend on.
type Sender interface {
	SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error
	SendWelcome(ctx context.Context, to, name string) error
}

// Mailer sends HTML mail through an SMTP relay.
type Mailer struct {
	cfg  Config
	send func(ctx context.Context, to string, msg []byte) error
}

// NewMailer builds a mailer that dials the configured relay.
func NewMailer(cfg Config) *Mailer {
	m := &Mailer{cfg: cfg}
	m.send = m.deliver
	return m
}

// IsConfigured reports whether credentials are present.
func (m *Mailer) IsConfigured() bool {
	return m.cfg.Username != "" && m.cfg.Password != ""
}

// SendVerificationCode mails the 6-digit registration code.
func (m *Mailer) SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error {
	body, err := render(verificationTemplate, map[string]any{
		"Code":    code,
		"Minutes": int(ttl.Minutes()),
	})
	if err != nil {
		return err
	}
	return m.Send(ctx, to, "PeerLearn - Email Verification", body)
}

// SendWelcome mails the post-verification greeting.
func (m *Mailer) SendWelcome(ctx context.Context, to, name string) error {
	body, err := render(welcomeTemplate, map[string]any{
		"Name":   name,
		"AppURL": m.cfg.AppURL,
	})
	if err != nil {
		return err
	}
	return m.Send(ctx, to, "Welcome to PeerLearn!", body)
}

// Send delivers one HTML message.
func (m *Mailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if !m.IsConfigured() {
		return ErrNotConfigured
	}
	return m.send(ctx, to, buildMessage(m.from(), to, subject, htmlBody))
}

func (m *Mailer) from() string {
	if m.cfg.From != "" {
		return m.cfg.From
	}
	return m.cfg.Username
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	headers := [][2]string{
		{"From", fmt.Sprintf("PeerLearn <%s>", from)},
		{"To", to},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}
	for _, h := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h[0], h[1])
	}
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}

func (m *Mailer) deliver(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprintf("%d", m.cfg.Port))
	dialer := &net.Dialer{Timeout: 15 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect smtp server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close() //nolint:errcheck

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("start tls: %w", err)
		}
	}
	if err := client.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(m.from()); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("open data writer: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data writer: %w", err)
	}
	return client.Quit()
}

func render(tpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", tpl.Name(), err)
	}
	return buf.String(), nil
}

var verificationTemplate = template.Must(template.New("verification").Parse(`<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); padding: 30px; border-radius: 10px; text-align: center;">
    <h1 style="color: white; margin: 0;">PeerLearn</h1>
    <p style="color: white; margin: 10px 0 0 0;">Your Study Companion</p>
  </div>
  <div style="background: #f8f9fa; padding: 30px; border-radius: 10px; text-align: center;">
    <h2 style="color: #333;">Verify Your Email Address</h2>
    <p style="color: #666;">Welcome to PeerLearn! To complete your registration, please use the verification code below:</p>
    <div style="background: white; border: 2px solid #667eea; border-radius: 8px; padding: 20px;">
      <h1 style="color: #667eea; font-size: 36px; letter-spacing: 8px; margin: 0; font-family: 'Courier New', monospace;">{{.Code}}</h1>
    </div>
    <p style="color: #666; font-size: 14px;">This code will expire in {{.Minutes}} minutes. If you didn't request this verification, please ignore this email.</p>
  </div>
</body>
</html>`))

var welcomeTemplate = template.Must(template.New("welcome").Parse(`<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); padding: 30px; border-radius: 10px; text-align: center;">
    <h1 style="color: white; margin: 0;">PeerLearn</h1>
  </div>
  <div style="background: #f8f9fa; padding: 30px; border-radius: 10px;">
    <h2 style="color: #333;">Welcome, {{.Name}}!</h2>
    <p style="color: #666;">Your account has been successfully created and verified. You're now ready to start your learning journey with PeerLearn!</p>
    <ul style="color: #666;">
      <li>Create or join study classrooms</li>
      <li>Connect with classmates and friends</li>
      <li>Collaborate in real-time chat rooms</li>
      <li>Track your learning streaks</li>
    </ul>
    {{if .AppURL}}<p style="text-align: center;"><a href="{{.AppURL}}">Start Learning Now</a></p>{{end}}
  </div>
</body>
</html>`))
