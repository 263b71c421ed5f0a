package smtp

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/mailfleet/mailfleet/pkg/config"
	"github.com/mailfleet/mailfleet/pkg/email"
)

type fakeTransport struct {
	calls    int
	failures int
	err      error
	messages []*gomail.Message
}

func (f *fakeTransport) DialAndSend(m ...*gomail.Message) error {
	f.calls++
	f.messages = append(f.messages, m...)
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func noSleep(sleeps *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
}

func newTestDispatcher(t *testing.T, transport Transport, cfg config.SMTP, sleeps *[]time.Duration) *Dispatcher {
	t.Helper()
	return NewDispatcher(cfg, nil, zap.NewNop().Sugar(),
		WithTransport(transport),
		WithSleep(noSleep(sleeps)))
}

func testConfig() config.SMTP {
	return config.SMTP{
		Host:                   "smtp.example.com",
		Port:                   587,
		MaxRetryAttempts:       3,
		RetryDelayMilliseconds: 1000,
	}
}

func TestDeliverSucceedsFirstAttempt(t *testing.T) {
	transport := &fakeTransport{}
	var sleeps []time.Duration
	d := newTestDispatcher(t, transport, testConfig(), &sleeps)

	err := d.Deliver(context.Background(), email.Sender{Email: "from@example.com"},
		[]string{"to@example.com"}, "subject", "body", false, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, transport.calls)
	assert.Empty(t, sleeps)
}

func TestDeliverExhaustsConfiguredAttempts(t *testing.T) {
	transport := &fakeTransport{failures: 99, err: errors.New("connection refused")}
	var sleeps []time.Duration
	d := newTestDispatcher(t, transport, testConfig(), &sleeps)

	err := d.Deliver(context.Background(), email.Sender{Email: "from@example.com"},
		[]string{"to@example.com"}, "subject", "body", false, nil)

	require.Error(t, err)
	var se *email.SendError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.Contains(t, err.Error(), "connection refused")

	assert.Equal(t, 3, transport.calls)
	// Fixed delay between attempts, none after the last.
	assert.Equal(t, []time.Duration{time.Second, time.Second}, sleeps)
}

func TestDeliverRecoversOnSecondAttempt(t *testing.T) {
	transport := &fakeTransport{failures: 1, err: errors.New("transient failure")}
	var sleeps []time.Duration
	d := newTestDispatcher(t, transport, testConfig(), &sleeps)

	err := d.Deliver(context.Background(), email.Sender{Email: "from@example.com"},
		[]string{"to@example.com"}, "subject", "body", false, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, transport.calls)
	assert.Len(t, sleeps, 1)
}

func TestDeliverSenderFallback(t *testing.T) {
	tests := []struct {
		name      string
		sender    email.Sender
		cfg       config.SMTP
		wantErr   bool
		wantCalls int
	}{
		{
			name:      "request sender used as-is",
			sender:    email.Sender{Name: "Req", Email: "req@example.com"},
			cfg:       testConfig(),
			wantCalls: 1,
		},
		{
			name:   "falls back to configured default sender",
			sender: email.Sender{},
			cfg: func() config.SMTP {
				c := testConfig()
				c.DefaultSenderEmail = "default@example.com"
				c.DefaultSenderName = "Default"
				return c
			}(),
			wantCalls: 1,
		},
		{
			name:      "no sender anywhere fails without an attempt",
			sender:    email.Sender{},
			cfg:       testConfig(),
			wantErr:   true,
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{}
			var sleeps []time.Duration
			d := newTestDispatcher(t, transport, tt.cfg, &sleeps)

			err := d.Deliver(context.Background(), tt.sender,
				[]string{"to@example.com"}, "subject", "body", false, nil)

			if tt.wantErr {
				var se *email.SendError
				require.ErrorAs(t, err, &se)
				assert.Contains(t, err.Error(), "sender address required")
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, transport.calls)
		})
	}
}

func TestDeliverObservesCancellation(t *testing.T) {
	transport := &fakeTransport{failures: 99, err: errors.New("transient failure")}
	ctx, cancel := context.WithCancel(context.Background())

	d := NewDispatcher(testConfig(), nil, zap.NewNop().Sugar(),
		WithTransport(transport),
		WithSleep(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}))

	err := d.Deliver(ctx, email.Sender{Email: "from@example.com"},
		[]string{"to@example.com"}, "subject", "body", false, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// Cancellation during the delay stops the loop before the next attempt.
	assert.Equal(t, 1, transport.calls)
}

func TestDeliverAlreadyCancelled(t *testing.T) {
	transport := &fakeTransport{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sleeps []time.Duration
	d := newTestDispatcher(t, transport, testConfig(), &sleeps)

	err := d.Deliver(ctx, email.Sender{Email: "from@example.com"},
		[]string{"to@example.com"}, "subject", "body", false, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, transport.calls)
}

func TestDeliverRejectsUndecodableAttachment(t *testing.T) {
	transport := &fakeTransport{}
	var sleeps []time.Duration
	d := newTestDispatcher(t, transport, testConfig(), &sleeps)

	atts := []email.Attachment{{FileName: "report.pdf", ContentBase64: "not base64!!!"}}
	err := d.Deliver(context.Background(), email.Sender{Email: "from@example.com"},
		[]string{"to@example.com"}, "subject", "body", false, atts)

	require.Error(t, err)
	var se *email.SendError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, err.Error(), "report.pdf")
	assert.Zero(t, transport.calls)
}

func TestDeliverWithValidAttachment(t *testing.T) {
	transport := &fakeTransport{}
	var sleeps []time.Duration
	d := newTestDispatcher(t, transport, testConfig(), &sleeps)

	content := base64.StdEncoding.EncodeToString([]byte("hello"))
	atts := []email.Attachment{{FileName: "note.txt", ContentBase64: content, ContentType: "text/plain"}}

	err := d.Deliver(context.Background(), email.Sender{Email: "from@example.com"},
		[]string{"to@example.com"}, "subject", "body", true, atts)

	require.NoError(t, err)
	require.Len(t, transport.messages, 1)
}

func TestNewDispatcherDefaults(t *testing.T) {
	d := NewDispatcher(config.SMTP{Host: "smtp.example.com"}, nil, zap.NewNop().Sugar())

	assert.Equal(t, 3, d.maxAttempts)
	assert.Equal(t, time.Second, d.retryDelay)
}
