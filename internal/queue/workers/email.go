package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"
	"text/template"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/tenantauth/internal/config"
	"github.com/nikhilbhutani/tenantauth/internal/queue"
)

// Sender delivers a rendered email. Satisfied by SMTPSender in production
// and by fakes in tests.
type Sender interface {
	Send(to, subject, body string) error
}

type SMTPSender struct {
	cfg config.SMTPConfig
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	msg := bytes.Buffer{}
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(body)

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg.Bytes()); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

type emailTemplate struct {
	subject string
	body    *template.Template
}

var emailTemplates = map[string]map[string]emailTemplate{
	queue.TypeEmailSignupVerification: {
		"en": {
			subject: "Your signup verification code",
			body:    template.Must(template.New("signup_en").Parse("Hi,\n\nYour signup verification code is {{.Code}}. It expires shortly.\n")),
		},
		"zh": {
			subject: "您的注册验证码",
			body:    template.Must(template.New("signup_zh").Parse("您好，\n\n您的注册验证码是 {{.Code}}，请尽快使用。\n")),
		},
	},
	queue.TypeEmailActivateAccount: {
		"en": {
			subject: "Activate your account",
			body:    template.Must(template.New("activate_en").Parse("Hi,\n\nYour account activation code is {{.Code}}. It expires shortly.\n")),
		},
		"zh": {
			subject: "激活您的账号",
			body:    template.Must(template.New("activate_zh").Parse("您好，\n\n您的账号激活验证码是 {{.Code}}，请尽快使用。\n")),
		},
	},
	queue.TypeEmailResetPassword: {
		"en": {
			subject: "Reset your password",
			body:    template.Must(template.New("reset_en").Parse("Hi,\n\nYour password reset code is {{.Code}}. If you did not request this, ignore this email.\n")),
		},
		"zh": {
			subject: "重置您的密码",
			body:    template.Must(template.New("reset_zh").Parse("您好，\n\n您的密码重置验证码是 {{.Code}}。如果这不是您本人的操作，请忽略本邮件。\n")),
		},
	},
}

// EmailWorker consumes verification-email tasks from the mail queue,
// renders the per-language template and hands the result to the Sender.
type EmailWorker struct {
	sender Sender
}

func NewEmailWorker(sender Sender) *EmailWorker {
	return &EmailWorker{sender: sender}
}

func (w *EmailWorker) ProcessTask(_ context.Context, t *asynq.Task) error {
	var payload queue.EmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal email payload: %w", err)
	}

	tmpl, err := lookupTemplate(t.Type(), payload.Language)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	if err := tmpl.body.Execute(&body, payload); err != nil {
		return fmt.Errorf("render email template: %w", err)
	}

	start := time.Now()
	if err := w.sender.Send(payload.To, tmpl.subject, body.String()); err != nil {
		slog.Error("email delivery failed", "type", t.Type(), "to", payload.To, "error", err)
		return err
	}

	slog.Info("email delivered", "type", t.Type(), "to", payload.To, "latency", time.Since(start))
	return nil
}

// lookupTemplate picks the template for the task type, falling back to
// English for unknown languages.
func lookupTemplate(taskType, language string) (emailTemplate, error) {
	byLang, ok := emailTemplates[taskType]
	if !ok {
		return emailTemplate{}, fmt.Errorf("no templates for task type %q", taskType)
	}
	if tmpl, ok := byLang[language]; ok {
		return tmpl, nil
	}
	return byLang["en"], nil
}
