package mail

import (
	"fmt"

	"go.uber.org/zap"
	gomail "gopkg.in/gomail.v2"

	"github.com/linkupchat/linkup/config"
)

// Mailer sends transactional email over SMTP. When no SMTP host is
// configured it logs and discards, which keeps dev and test setups mail-free.
type Mailer struct {
	cfg    config.MailConfig
	logger *zap.Logger
}

func New(cfg config.MailConfig, logger *zap.Logger) *Mailer {
	return &Mailer{cfg: cfg, logger: logger}
}

// Enabled reports whether a real SMTP backend is configured.
func (m *Mailer) Enabled() bool {
	return m.cfg.SMTPHost != ""
}

// SendPasswordReset mails a reset link built from the configured base URL.
func (m *Mailer) SendPasswordReset(to, token string) error {
	link := fmt.Sprintf("%s?token=%s", m.cfg.ResetURLBase, token)
	body := fmt.Sprintf(
		"Someone requested a password reset for this address.\r\n\r\n"+
			"Open the link below to choose a new password:\r\n%s\r\n\r\n"+
			"If this wasn't you, ignore this message.\r\n", link)
	return m.send(to, "Password reset", body)
}

func (m *Mailer) send(to, subject, body string) error {
	if !m.Enabled() {
		m.logger.Info("mail disabled, dropping message",
			zap.String("to", to), zap.String("subject", subject))
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	d := gomail.NewDialer(m.cfg.SMTPHost, m.cfg.SMTPPort, m.cfg.SMTPUser, m.cfg.SMTPPass)
	if err := d.DialAndSend(msg); err != nil {
		m.logger.Error("send mail failed", zap.String("to", to), zap.Error(err))
		return err
	}
	return nil
}
