package smtp

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/mailfleet/mailfleet/pkg/config"
	"github.com/mailfleet/mailfleet/pkg/email"
	"github.com/mailfleet/mailfleet/pkg/metrics"
)

// Transport submits one built message to the outbound SMTP server.
// *gomail.Dialer satisfies it directly.
type Transport interface {
	DialAndSend(m ...*gomail.Message) error
}

// Dispatcher performs one logical delivery, owning the bounded-retry
// policy: up to maxAttempts attempts with a fixed delay between them.
// It has no side effects beyond the outbound network call.
type Dispatcher struct {
	transport     Transport
	host          string
	defaultSender string
	defaultName   string
	maxAttempts   int
	retryDelay    time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
	sink          metrics.Sink
	log           *zap.SugaredLogger
}

// Option overrides dispatcher internals, mainly for tests.
type Option func(*Dispatcher)

// WithTransport replaces the SMTP transport.
func WithTransport(t Transport) Option {
	return func(d *Dispatcher) { d.transport = t }
}

// WithSleep replaces the inter-attempt delay function.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = fn }
}

// NewDispatcher creates a dispatcher from SMTP configuration.
func NewDispatcher(cfg config.SMTP, sink metrics.Sink, log *zap.SugaredLogger, opts ...Option) *Dispatcher {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.InsecureSkipVerify {
		log.Warnw("InsecureSkipVerify is enabled for the SMTP TLS connection", "host", cfg.Host)
		dialer.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit operator opt-in
	}

	maxAttempts := cfg.MaxRetryAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	retryDelay := time.Duration(cfg.RetryDelayMilliseconds) * time.Millisecond
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	if sink == nil {
		sink = metrics.Nop{}
	}

	d := &Dispatcher{
		transport:     dialer,
		host:          cfg.Host,
		defaultSender: cfg.DefaultSenderEmail,
		defaultName:   cfg.DefaultSenderName,
		maxAttempts:   maxAttempts,
		retryDelay:    retryDelay,
		sleep:         sleepCtx,
		sink:          sink,
		log:           log.Named("smtp"),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.log.Infow("SMTP dispatcher initialized",
		"host", cfg.Host,
		"port", cfg.Port,
		"maxAttempts", d.maxAttempts,
		"retryDelay", d.retryDelay)
	return d
}

// attempt is one delivery try. Ephemeral; only the outcome of all attempts
// is visible to callers.
type attempt struct {
	number int
	err    error
}

// Deliver executes the retry loop for a single message. It returns nil on
// the first successful attempt, or a *email.SendError after the final
// failed one. A missing sender address that cannot be resolved from
// configuration fails immediately without any attempt. Cancellation is
// observed between attempts.
func (d *Dispatcher) Deliver(ctx context.Context, sender email.Sender, recipients []string, subject, body string, isHTML bool, attachments []email.Attachment) error {
	from := sender.Email
	if from == "" {
		from = d.defaultSender
	}
	if from == "" {
		return &email.SendError{Message: "sender address required"}
	}

	fromName := sender.Name
	if fromName == "" {
		fromName = d.defaultName
	}
	if fromName == "" {
		fromName = from
	}

	var last attempt
	for n := 1; n <= d.maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("delivery cancelled before attempt %d: %w", n, err)
		}

		// Fresh message per attempt: gomail messages are not reusable
		// across a failed dial.
		msg, err := d.buildMessage(from, fromName, recipients, subject, body, isHTML, attachments)
		if err != nil {
			return err
		}

		err = d.transport.DialAndSend(msg)
		if err == nil {
			d.sink.DeliveryAttempt(d.host, true)
			d.log.Infow("Email delivered",
				"recipients", len(recipients),
				"attempt", n)
			return nil
		}

		last = attempt{number: n, err: err}
		d.sink.DeliveryAttempt(d.host, false)
		d.log.Warnw("Delivery attempt failed",
			"attempt", n,
			"maxAttempts", d.maxAttempts,
			"error", err)

		if n < d.maxAttempts {
			if err := d.sleep(ctx, d.retryDelay); err != nil {
				return fmt.Errorf("delivery cancelled after attempt %d: %w", n, err)
			}
		}
	}

	d.log.Errorw("Email delivery failed after all attempts",
		"attempts", last.number,
		"recipients", len(recipients),
		"error", last.err)
	return &email.SendError{
		Message: fmt.Sprintf("failed to send email after %d attempts", d.maxAttempts),
		Err:     last.err,
	}
}

func (d *Dispatcher) buildMessage(from, fromName string, recipients []string, subject, body string, isHTML bool, attachments []email.Attachment) (*gomail.Message, error) {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", from, fromName)
	msg.SetHeader("To", recipients...)
	msg.SetHeader("Subject", subject)
	if isHTML {
		msg.SetBody("text/html", body)
	} else {
		msg.SetBody("text/plain", body)
	}

	for _, att := range attachments {
		data, err := base64.StdEncoding.DecodeString(att.ContentBase64)
		if err != nil {
			return nil, &email.SendError{
				Message: fmt.Sprintf("decoding attachment %q", att.FileName),
				Err:     err,
			}
		}
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		msg.Attach(att.FileName,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {contentType}}),
		)
	}
	return msg, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
