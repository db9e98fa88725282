package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mail "github.com/xhit/go-simple-mail/v2"
)

// SMTPConfig is the relay the sender connects to.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type smtpEmailSender struct {
	server *mail.SMTPServer
	from   string
	log    *slog.Logger
}

// NewSMTPEmailSender creates a sender for a fixed SMTP relay. cfg.From is used
// when a message carries no sender of its own.
func NewSMTPEmailSender(cfg SMTPConfig, log *slog.Logger) EmailSender {
	server := mail.NewSMTPClient()
	server.Host = cfg.Host
	server.Port = cfg.Port
	server.Username = cfg.Username
	server.Password = cfg.Password
	server.Encryption = mail.EncryptionSTARTTLS
	if cfg.Port == 465 {
		server.Encryption = mail.EncryptionSSLTLS
	}
	server.KeepAlive = false
	server.ConnectTimeout = 10 * time.Second
	server.SendTimeout = 10 * time.Second

	return &smtpEmailSender{server: server, from: cfg.From, log: log}
}

func (s *smtpEmailSender) Send(ctx context.Context, msg Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := s.server.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	email := mail.NewMSG()
	email.SetFrom(formatAddress(msg.From, s.from)).AddTo(msg.To).SetSubject(msg.Subject)
	if msg.From.ReplyTo != "" {
		email.SetReplyTo(msg.From.ReplyTo)
	}
	email.SetBody(mail.TextHTML, msg.HTML)
	if msg.Text != "" {
		email.AddAlternative(mail.TextPlain, msg.Text)
	}
	if email.Error != nil {
		return fmt.Errorf("failed to build email: %w", email.Error)
	}

	if err := email.Send(client); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.log.Info("email sent via smtp", "to", msg.To)
	return nil
}

func formatAddress(from Sender, fallback string) string {
	addr := from.Email
	if addr == "" {
		addr = fallback
	}
	if from.Name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", from.Name, addr)
}
