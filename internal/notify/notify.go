package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/credguard/internal/dispatch"
	"go.uber.org/zap"
)

// Kind classifies outbound messages.
type Kind string

const (
	KindWelcome           Kind = "welcome"
	KindLockout           Kind = "lockout"
	KindPasswordReset     Kind = "password_reset"
	KindPasswordChanged   Kind = "password_changed"
	KindEmailChangeVerify Kind = "email_change_verify"
	KindEmailChanged      Kind = "email_changed"
)

// Outcome is the delivery result reported to the observer.
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeFailed
	OutcomeThrottled
)

// Message is one outbound email.
type Message struct {
	Kind    Kind
	To      string
	Subject string
	Body    string
}

// Sender delivers a single email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Config controls composition and delivery.
type Config struct {
	Dispatch    dispatch.Config
	SendTimeout time.Duration
	ProductName string
	// LinkBaseURL prefixes tokens in emails; empty means the raw token is sent.
	LinkBaseURL string
}

// Notifier queues messages for background delivery.
type Notifier struct {
	cfg     Config
	sender  Sender
	allow   func(ctx context.Context, to string) error
	observe func(Kind, Outcome)
	logger  *zap.Logger
	queue   *dispatch.Dispatcher[Message]
}

// New starts a notifier. allow gates each recipient and may be nil, as may
// observe and logger.
func New(cfg Config, sender Sender, allow func(context.Context, string) error, observe func(Kind, Outcome), logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observe == nil {
		observe = func(Kind, Outcome) {}
	}
	if cfg.ProductName == "" {
		cfg.ProductName = "your account"
	}

	n := &Notifier{
		cfg:     cfg,
		sender:  sender,
		allow:   allow,
		observe: observe,
		logger:  logger,
	}
	n.queue = dispatch.New(cfg.Dispatch, n.deliver, func(err error) {
		logger.Error("email handler panic", zap.Error(err))
	})
	return n
}

// Enqueue schedules msg for delivery.
func (n *Notifier) Enqueue(ctx context.Context, msg Message) {
	if n == nil || n.sender == nil || msg.To == "" {
		return
	}
	n.queue.Submit(ctx, msg)
}

func (n *Notifier) deliver(ctx context.Context, msg Message) {
	if n.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.cfg.SendTimeout)
		defer cancel()
	}

	if n.allow != nil {
		if err := n.allow(ctx, msg.To); err != nil {
			n.logger.Warn("outbound email suppressed",
				zap.String("kind", string(msg.Kind)),
				zap.String("to", msg.To),
				zap.Error(err),
			)
			n.observe(msg.Kind, OutcomeThrottled)
			return
		}
	}

	if err := n.sender.Send(ctx, msg.To, msg.Subject, msg.Body); err != nil {
		n.logger.Warn("outbound email failed",
			zap.String("kind", string(msg.Kind)),
			zap.String("to", msg.To),
			zap.Error(err),
		)
		n.observe(msg.Kind, OutcomeFailed)
		return
	}
	n.observe(msg.Kind, OutcomeSent)
}

// Close drains queued messages.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.queue.Close()
}

// Dropped returns messages discarded due to backpressure.
func (n *Notifier) Dropped() uint64 {
	if n == nil {
		return 0
	}
	return n.queue.Dropped()
}

func (n *Notifier) link(token string) string {
	if n.cfg.LinkBaseURL == "" {
		return token
	}
	return n.cfg.LinkBaseURL + token
}

// Welcome greets a newly registered address.
func (n *Notifier) Welcome(to string) Message {
	return Message{
		Kind:    KindWelcome,
		To:      to,
		Subject: "Welcome to " + n.cfg.ProductName,
		Body:    fmt.Sprintf("Your account for %s was created.\n", to),
	}
}

// Lockout warns the owner of an identity about repeated failed logins.
func (n *Notifier) Lockout(to, ip string, lockout time.Duration) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "We blocked sign-in to %s for %s after repeated failed attempts.\n", n.cfg.ProductName, lockout.Round(time.Second))
	if ip != "" {
		fmt.Fprintf(&b, "The last attempt came from %s.\n", ip)
	}
	b.WriteString("If this was not you, consider resetting your password.\n")
	return Message{Kind: KindLockout, To: to, Subject: "Sign-in temporarily blocked", Body: b.String()}
}

// PasswordReset carries a reset token.
func (n *Notifier) PasswordReset(to, token string, ttl time.Duration) Message {
	return Message{
		Kind:    KindPasswordReset,
		To:      to,
		Subject: "Reset your password",
		Body: fmt.Sprintf("Use the link below to choose a new password. It expires in %s.\n\n%s\n",
			ttl.Round(time.Minute), n.link(token)),
	}
}

// PasswordChanged confirms a completed reset.
func (n *Notifier) PasswordChanged(to string) Message {
	return Message{
		Kind:    KindPasswordChanged,
		To:      to,
		Subject: "Your password was changed",
		Body:    "The password for " + n.cfg.ProductName + " was just changed. If this was not you, contact support.\n",
	}
}

// EmailChangeVerify asks the new address to confirm ownership.
func (n *Notifier) EmailChangeVerify(to, token string, ttl time.Duration) Message {
	return Message{
		Kind:    KindEmailChangeVerify,
		To:      to,
		Subject: "Confirm your new email address",
		Body: fmt.Sprintf("Confirm this address within %s using the link below.\n\n%s\n",
			ttl.Round(time.Minute), n.link(token)),
	}
}

// EmailChanged tells the previous address about the change.
func (n *Notifier) EmailChanged(to, newEmail string) Message {
	return Message{
		Kind:    KindEmailChanged,
		To:      to,
		Subject: "Your email address was changed",
		Body:    fmt.Sprintf("The email address for %s was changed to %s.\n", n.cfg.ProductName, maskEmail(newEmail)),
	}
}

func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 1 {
		return email
	}
	return email[:1] + strings.Repeat("*", at-1) + email[at:]
}
