// Package email sends the transactional mails of the auth flows. Send
// results are reported as a plain bool; a failed send is logged by the
// sender and must never fail the calling flow.
package email

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type Sender interface {
	SendVerification(to, token, name string) bool
	SendPasswordReset(to, token, name string) bool
	SendWelcome(to, name string) bool
	SendNewUserCredentials(to, password, name string) bool
}

// SMTPSender delivers over SMTP with implicit TLS. Constructed once at
// bootstrap and passed to the handlers that need it.
type SMTPSender struct {
	host        string
	port        int
	username    string
	password    string
	from        string
	frontendURL string
	lg          *zap.SugaredLogger
}

func NewSMTPSender(lg *zap.SugaredLogger) *SMTPSender {
	port := 465
	if p, err := strconv.Atoi(os.Getenv("MAIL_PORT")); err == nil {
		port = p
	}
	frontendURL := os.Getenv("FRONTEND_URL")
	if frontendURL == "" {
		frontendURL = "http://localhost:8080"
	}
	return &SMTPSender{
		host:        os.Getenv("MAIL_HOST"),
		port:        port,
		username:    os.Getenv("MAIL_USERNAME"),
		password:    os.Getenv("MAIL_PASSWORD"),
		from:        os.Getenv("MAIL_FROM"),
		frontendURL: frontendURL,
		lg:          lg,
	}
}

func greeting(name string) string {
	if name != "" {
		return fmt.Sprintf("Hello, %s!", name)
	}
	return "Hello!"
}

func (s *SMTPSender) send(to, subject, body string) bool {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(s.host, s.port, s.username, s.password)
	d.SSL = s.port == 465
	if err := d.DialAndSend(m); err != nil {
		s.lg.Errorw("email send failed", "to", to, "subject", subject, "error", err)
		return false
	}
	s.lg.Infow("email sent", "to", to, "subject", subject)
	return true
}

func (s *SMTPSender) SendVerification(to, token, name string) bool {
	link := s.frontendURL + "/verify-email?token=" + token
	body := fmt.Sprintf(`<p>%s</p>
<p>Please confirm your registration by following the link below:</p>
<p><a href="%s">Confirm email</a></p>
<p>The link is valid for 24 hours.</p>`, greeting(name), link)
	return s.send(to, "Confirm your registration", body)
}

func (s *SMTPSender) SendPasswordReset(to, token, name string) bool {
	link := s.frontendURL + "/reset-password?token=" + token
	body := fmt.Sprintf(`<p>%s</p>
<p>A password reset was requested for your account. Follow the link to set
a new password:</p>
<p><a href="%s">Reset password</a></p>
<p>The link is valid for 1 hour. If you did not request this, ignore this
message.</p>`, greeting(name), link)
	return s.send(to, "Password reset", body)
}

func (s *SMTPSender) SendWelcome(to, name string) bool {
	body := fmt.Sprintf(`<p>%s</p>
<p>Your email is confirmed and your account is ready.</p>
<p><a href="%s">Open the application</a></p>`, greeting(name), s.frontendURL)
	return s.send(to, "Welcome!", body)
}

func (s *SMTPSender) SendNewUserCredentials(to, password, name string) bool {
	link := s.frontendURL + "/login"
	body := fmt.Sprintf(`<p>%s</p>
<p>An account has been created for you.</p>
<p>Login: %s<br>Password: %s</p>
<p><a href="%s">Sign in</a></p>
<p>Please change the password after your first login.</p>`, greeting(name), to, password, link)
	return s.send(to, "Your account has been created", body)
}
