package notification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/delordemm1/siteauth/internal/notification/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []Email
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg Email) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newTestService(sender EmailSender) Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(log, templates.NewEngine(templates.Config{}, log), sender)
}

func TestSendTemplateDeliversRenderedEmail(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestService(sender)

	err := SendTemplate(context.Background(), svc, templates.ConfirmSignup, "ada@x.test",
		Sender{Email: "hello@acme.test", Name: "Acme"},
		templates.OTPData{Code: "123456", ExpiresInMinutes: 15, Brand: templates.Brand{SiteName: "Acme"}})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "ada@x.test", msg.To)
	assert.Equal(t, "Acme", msg.From.Name)
	assert.Contains(t, msg.Subject, "123456")
	assert.Contains(t, msg.HTML, "123456")
	assert.NotEmpty(t, msg.Text)
}

func TestSendReturnsDeliveryFailure(t *testing.T) {
	boom := errors.New("connection refused")
	svc := newTestService(&fakeSender{err: boom})

	err := svc.Send(context.Background(), Notification{Recipient: "a@x.test", Channels: []Channel{ChannelEmail}})
	assert.ErrorIs(t, err, boom)
}

func TestSendRejectsUnknownChannel(t *testing.T) {
	svc := newTestService(&fakeSender{})
	err := svc.Send(context.Background(), Notification{Recipient: "a@x.test", Channels: []Channel{"pigeon"}})
	assert.ErrorIs(t, err, ErrUnsupportedChannel)
}

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "noreply@x.test", formatAddress(Sender{}, "noreply@x.test"))
	assert.Equal(t, "Acme <hi@acme.test>", formatAddress(Sender{Email: "hi@acme.test", Name: "Acme"}, "noreply@x.test"))
}
