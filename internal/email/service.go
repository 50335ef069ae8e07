// Package email sends transactional mail over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"

	"moai/api/internal/util"
)

var ErrNotConfigured = errors.New("email not configured")

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	// Inbox receives contact form notices.
	Inbox string
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   SendFunc
}

func NewService(config Config) *Service {
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   smtp.PlainAuth("", config.Username, config.Password, config.Host),
		send:   smtp.SendMail,
	}
}

// WithSender replaces the SMTP transport.
func (s *Service) WithSender(send SendFunc) *Service {
	s.send = send
	return s
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// Envelope is one outgoing message. HTML is optional; when set the message
// is sent as multipart/alternative with Text as the fallback part.
type Envelope struct {
	To      []string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
}

// Send delivers env and returns the Message-ID it was stamped with.
func (s *Service) Send(env Envelope) (string, error) {
	if !s.IsConfigured() {
		return "", ErrNotConfigured
	}
	if len(env.To) == 0 {
		return "", fmt.Errorf("send email: no recipients")
	}

	domain := "localhost"
	if at := strings.LastIndex(s.config.From, "@"); at >= 0 {
		domain = s.config.From[at+1:]
	}
	messageID := fmt.Sprintf("<%s@%s>", util.NewID(""), domain)

	msg := s.compose(env, messageID)
	if err := s.send(s.server, s.auth, s.config.From, env.To, msg); err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	return messageID, nil
}

func (s *Service) compose(env Envelope, messageID string) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(env.To, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	if env.ReplyTo != "" {
		fmt.Fprintf(&msg, "Reply-To: %s\r\n", env.ReplyTo)
	}
	fmt.Fprintf(&msg, "Subject: %s\r\n", sanitizeHeader(env.Subject))
	fmt.Fprintf(&msg, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")

	if env.HTML == "" {
		fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n", env.Text)
		return msg.Bytes()
	}

	boundary := "boundary-" + util.NewID("")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)
	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n\r\n", boundary, env.Text)
	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n\r\n", boundary, env.HTML)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

// sanitizeHeader keeps user text from injecting extra headers.
func sanitizeHeader(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}

type ContactData struct {
	AppName string
	Name    string
	Email   string
	Subject string
	Message string
}

// SendContact delivers a contact form submission: a notice to the site
// inbox and a confirmation copy to the sender. It returns both message ids
// in that order.
func (s *Service) SendContact(data ContactData) ([]string, error) {
	if !s.IsConfigured() || s.config.Inbox == "" {
		return nil, ErrNotConfigured
	}
	data.AppName = "MOAI"

	notice, err := renderTemplate(contactNoticeTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("render contact notice: %w", err)
	}
	confirmation, err := renderTemplate(contactConfirmationTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("render contact confirmation: %w", err)
	}

	noticeID, err := s.Send(Envelope{
		To:      []string{s.config.Inbox},
		ReplyTo: data.Email,
		Subject: "Contact form: " + data.Subject,
		Text:    fmt.Sprintf("From: %s <%s>\n\n%s", data.Name, data.Email, data.Message),
		HTML:    notice,
	})
	if err != nil {
		return nil, err
	}
	confirmationID, err := s.Send(Envelope{
		To:      []string{data.Email},
		Subject: "We received your message",
		Text:    "Thanks for reaching out. We will reply soon.\n\n" + data.Message,
		HTML:    confirmation,
	})
	if err != nil {
		return []string{noticeID}, err
	}
	return []string{noticeID, confirmationID}, nil
}

type VerificationData struct {
	AppName         string
	UserName        string
	VerificationURL string
}

type PasswordResetData struct {
	AppName  string
	UserName string
	ResetURL string
}

func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	html, err := renderTemplate(verificationEmailTemplate, VerificationData{AppName: "MOAI", UserName: userName, VerificationURL: verificationURL})
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}
	_, err = s.Send(Envelope{
		To:      []string{to},
		Subject: "Verify your MOAI account",
		Text:    "Verify your email address: " + verificationURL,
		HTML:    html,
	})
	return err
}

func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	html, err := renderTemplate(passwordResetEmailTemplate, PasswordResetData{AppName: "MOAI", UserName: userName, ResetURL: resetURL})
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	_, err = s.Send(Envelope{
		To:      []string{to},
		Subject: "Reset your MOAI password",
		Text:    "Reset your password: " + resetURL,
		HTML:    html,
	})
	return err
}

func renderTemplate(tmpl string, data any) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const layoutStyle = `body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #222; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #d9480f; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #d9480f; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .quote { white-space: pre-wrap; background: #f8f9fa; padding: 12px; border-radius: 4px; }`

const contactNoticeTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><style>` + layoutStyle + `</style></head>
<body>
    <div class="header"><h1>{{.AppName}} contact form</h1></div>
    <p><strong>{{.Name}}</strong> &lt;{{.Email}}&gt; wrote:</p>
    <p><strong>{{.Subject}}</strong></p>
    <div class="quote">{{.Message}}</div>
</body>
</html>`

const contactConfirmationTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><style>` + layoutStyle + `</style></head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <p>Hi {{.Name}},</p>
    <p>Thanks for getting in touch. We received your message and will reply soon.</p>
    <div class="quote">{{.Message}}</div>
    <div class="footer"><p>You are receiving this because this address was entered in the {{.AppName}} contact form.</p></div>
</body>
</html>`

const verificationEmailTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Verify your {{.AppName}} account</title><style>` + layoutStyle + `</style></head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <h2>Welcome, {{.UserName}}!</h2>
    <p>Please verify your email address to activate your account.</p>
    <p><a href="{{.VerificationURL}}" class="button">Verify Email Address</a></p>
    <p>This verification link will expire in 24 hours.</p>
    <div class="footer"><p>If you didn't create an account with {{.AppName}}, you can ignore this email.</p></div>
</body>
</html>`

const passwordResetEmailTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Reset your {{.AppName}} password</title><style>` + layoutStyle + `</style></head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <p>Hi {{.UserName}},</p>
    <p>We received a request to reset your password.</p>
    <p><a href="{{.ResetURL}}" class="button">Reset Password</a></p>
    <p><strong>Important:</strong> This reset link will expire in 1 hour.</p>
    <div class="footer"><p>If you didn't request a password reset, your password will remain unchanged.</p></div>
</body>
</html>`
