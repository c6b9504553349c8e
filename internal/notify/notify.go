package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/loykin/minermon/internal/metrics"
)

// SubjectPrefix starts every notification subject.
const SubjectPrefix = "MinerMon"

// Reasons a notification was not sent. None of them are failures of the watchdog.
var (
	ErrCanceled     = errors.New("notification canceled")
	ErrDevMode      = errors.New("dev mode, email not sent")
	ErrNoServer     = errors.New("SMTP server not defined, email not sent")
	ErrNoRecipients = errors.New("email recipients not defined, email not sent")
	ErrNoSender     = errors.New("email sender not defined, email not sent")
)

// Notifier delivers state-change events to the operator. Notify never fails.
type Notifier interface {
	Notify(ctx context.Context, event string)
}

// Message is one outgoing email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Sender transmits a Message. It must honour ctx cancellation.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// EmailNotifier builds state-change emails and hands them to a Sender.
type EmailNotifier struct {
	MonitorName string
	Server      string
	From        string
	Recipients  []string
	DevMode     bool
	Sender      Sender
	Now         func() time.Time
}

// Subject returns the subject line for event.
func (n *EmailNotifier) Subject(event string) string {
	return fmt.Sprintf("%s - %s - %s", SubjectPrefix, n.MonitorName, event)
}

// Notify sends event best-effort; every outcome other than success is logged and swallowed.
func (n *EmailNotifier) Notify(ctx context.Context, event string) {
	err := n.Deliver(ctx, event)
	switch {
	case err == nil:
		metrics.IncNotification("sent")
	case errors.Is(err, ErrCanceled):
		metrics.IncNotification("skipped")
	case errors.Is(err, ErrDevMode), errors.Is(err, ErrNoServer), errors.Is(err, ErrNoRecipients), errors.Is(err, ErrNoSender):
		slog.Info("Email not sent", "subject", n.Subject(event), "reason", err)
		metrics.IncNotification("skipped")
	default:
		slog.Warn("Email sending failed", "subject", n.Subject(event), "error", err)
		metrics.IncNotification("failed")
	}
}

// Deliver sends event and reports why it did not, if it did not.
func (n *EmailNotifier) Deliver(ctx context.Context, event string) error {
	if ctx.Err() != nil {
		return ErrCanceled
	}
	subject := n.Subject(event)
	if n.DevMode {
		return ErrDevMode
	}
	slog.Info("Sending email", "subject", subject)
	if strings.TrimSpace(n.Server) == "" {
		return ErrNoServer
	}
	if len(n.Recipients) == 0 {
		return ErrNoRecipients
	}
	if strings.TrimSpace(n.From) == "" {
		return ErrNoSender
	}
	if n.Sender == nil {
		return errors.New("no mail sender configured")
	}
	err := n.Sender.Send(ctx, Message{
		From:    n.From,
		To:      n.Recipients,
		Subject: subject,
		Body:    n.body(event),
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return ErrCanceled
		}
		return err
	}
	return nil
}

func (n *EmailNotifier) body(event string) string {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	host, _ := os.Hostname()
	var b strings.Builder
	fmt.Fprintf(&b, "Monitor: %s\n", n.MonitorName)
	if host != "" {
		fmt.Fprintf(&b, "Host: %s\n", host)
	}
	fmt.Fprintf(&b, "Time: %s\n", now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Event: %s\n", event)
	return b.String()
}
