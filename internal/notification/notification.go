package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/delordemm1/siteauth/internal/notification/templates"
	"golang.org/x/sync/errgroup"
)

type Channel string

const (
	ChannelEmail Channel = "email"
)

// Sender is who the message claims to come from; per site branding fills it in.
type Sender struct {
	Email   string
	Name    string
	ReplyTo string
}

// Content holds the rendered message for each channel.
type Content struct {
	EmailSubject  string
	EmailHTMLBody string
	EmailTextBody string
}

// Notification is the universal object used to send any notification.
type Notification struct {
	Recipient string
	From      Sender
	Channels  []Channel
	Content   Content
}

// Email is one outgoing message as handed to an EmailSender.
type Email struct {
	From    Sender
	To      string
	Subject string
	HTML    string
	Text    string
}

// EmailSender delivers a single email.
type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}

// Service sends notifications and renders the templates they are built from.
type Service interface {
	Send(ctx context.Context, n Notification) error
	Render(ctx context.Context, id string, data any) (templates.Rendered, error)
}

type service struct {
	log         *slog.Logger
	renderer    templates.Renderer
	emailSender EmailSender
}

func NewService(log *slog.Logger, renderer templates.Renderer, emailSender EmailSender) Service {
	return &service{
		log:         log,
		renderer:    renderer,
		emailSender: emailSender,
	}
}

var ErrUnsupportedChannel = errors.New("unsupported notification channel")

// Send dispatches every channel concurrently and waits for all of them. The
// first failure is returned so callers can treat delivery as a gating step.
func (s *service) Send(ctx context.Context, n Notification) error {
	if len(n.Channels) == 0 {
		return errors.New("notification has no channels")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range n.Channels {
		g.Go(func() error {
			var err error
			switch ch {
			case ChannelEmail:
				s.log.Info("dispatching email notification", "recipient", n.Recipient)
				err = s.emailSender.Send(gctx, Email{
					From:    n.From,
					To:      n.Recipient,
					Subject: n.Content.EmailSubject,
					HTML:    n.Content.EmailHTMLBody,
					Text:    n.Content.EmailTextBody,
				})
			default:
				err = fmt.Errorf("%w: %s", ErrUnsupportedChannel, ch)
			}
			if err != nil {
				s.log.Error("failed to send notification", "channel", ch, "recipient", n.Recipient, "error", err)
				return fmt.Errorf("%s: %w", ch, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *service) Render(ctx context.Context, id string, data any) (templates.Rendered, error) {
	return s.renderer.RenderAny(ctx, id, data)
}

// SendTemplate renders a typed template and sends it by email.
func SendTemplate[T any](ctx context.Context, svc Service, h templates.Handle[T], to string, from Sender, data T) error {
	r, err := svc.Render(ctx, h.ID(), data)
	if err != nil {
		return fmt.Errorf("render %s: %w", h.ID(), err)
	}
	return svc.Send(ctx, Notification{
		Recipient: to,
		From:      from,
		Channels:  []Channel{ChannelEmail},
		Content: Content{
			EmailSubject:  r.Subject,
			EmailHTMLBody: r.EmailHTML,
			EmailTextBody: r.EmailText,
		},
	})
}
