package email

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mailfleet/mailfleet/pkg/metrics"
)

// plainTemplateLabel is the metrics label used for non-templated sends.
const plainTemplateLabel = "plain"

// Dispatcher executes one logical delivery (all retry attempts) against an
// SMTP transport.
type Dispatcher interface {
	Deliver(ctx context.Context, sender Sender, recipients []string, subject, body string, isHTML bool, attachments []Attachment) error
}

// Renderer produces HTML from a named template and a property map. A
// missing template unwraps to ErrTemplateNotFound.
type Renderer interface {
	Render(ctx context.Context, name string, properties map[string]any) (string, error)
}

// Service is the dispatch pipeline: it turns a validated send request into
// a persisted, delivered (or failed) message. It is the single point of
// entry for both the HTTP layer and the queue consumer.
type Service struct {
	repo       Repository
	dispatcher Dispatcher
	renderer   Renderer
	sink       metrics.Sink
	log        *zap.SugaredLogger
}

// NewService creates the dispatch pipeline.
func NewService(repo Repository, dispatcher Dispatcher, renderer Renderer, sink metrics.Sink, log *zap.SugaredLogger) *Service {
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		renderer:   renderer,
		sink:       sink,
		log:        log.Named("email-service"),
	}
}

// SendDirect validates, persists and delivers a plain email. Validation
// failures are returned before anything is persisted. A delivery failure
// leaves the persisted message in Failed state as an audit trail and
// returns a *SendError; retries happen only inside the dispatcher.
func (s *Service) SendDirect(ctx context.Context, req SendRequest, attachments []Attachment) (*Message, error) {
	if err := ValidateSendRequest(req); err != nil {
		return nil, err
	}

	msg := newMessage(req.Sender, req.Recipients, req.Subject, req.Body, "")
	return s.dispatch(ctx, msg, req.Sender, false, attachments, plainTemplateLabel)
}

// SendTemplated validates the request, renders the named template and
// delivers the result as HTML. A missing template fails fast without
// persisting anything.
func (s *Service) SendTemplated(ctx context.Context, req SendTemplatedRequest, attachments []Attachment) (*Message, error) {
	if err := ValidateSendTemplatedRequest(req); err != nil {
		return nil, err
	}

	body, err := s.renderer.Render(ctx, req.TemplateName, req.TemplateProperties)
	if err != nil {
		return nil, err
	}

	// The Subject property wins whenever it is present and non-nil, even
	// when empty; only an absent or nil property falls back to the
	// template name.
	subject := req.TemplateName
	if v, ok := req.TemplateProperties["Subject"]; ok && v != nil {
		subject = fmt.Sprint(v)
	}

	msg := newMessage(req.Sender, req.Recipients, subject, body, req.TemplateName)
	return s.dispatch(ctx, msg, req.Sender, true, attachments, req.TemplateName)
}

// dispatch runs the persisted state machine around one delivery:
// Pending -> Sending -> Sent or Failed, each transition written before the
// next step so a crash mid-delivery leaves an inspectable record.
func (s *Service) dispatch(ctx context.Context, msg *Message, sender Sender, isHTML bool, attachments []Attachment, templateLabel string) (*Message, error) {
	start := time.Now()

	if err := s.repo.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persisting message: %w", err)
	}

	if err := s.persistStatus(ctx, msg, StatusSending); err != nil {
		return nil, fmt.Errorf("persisting sending status: %w", err)
	}

	recipients := make([]string, len(msg.Recipients))
	for i, r := range msg.Recipients {
		recipients[i] = r.Email
	}

	if err := s.dispatcher.Deliver(ctx, sender, recipients, msg.Subject, msg.Body, isHTML, attachments); err != nil {
		s.sink.EmailFailed(templateLabel)
		s.log.Errorw("Failed to send email",
			"id", msg.ID,
			"recipients", len(recipients),
			"template", msg.TemplateName,
			"error", err)

		if perr := s.persistStatus(ctx, msg, StatusFailed); perr != nil {
			s.log.Errorw("Failed to persist terminal Failed status", "id", msg.ID, "error", perr)
		}
		return msg, &SendError{Message: "failed to send email", Err: err}
	}

	msg.SentDate = time.Now().UTC()
	if err := s.persistStatus(ctx, msg, StatusSent); err != nil {
		return nil, fmt.Errorf("persisting sent status: %w", err)
	}

	s.sink.EmailSent(templateLabel, time.Since(start))
	s.log.Infow("Email sent successfully",
		"id", msg.ID,
		"recipients", len(recipients),
		"template", msg.TemplateName)

	return msg, nil
}

// persistStatus transitions a message and writes the new state. Terminal
// states are final: any further transition is refused before touching the
// repository.
func (s *Service) persistStatus(ctx context.Context, msg *Message, next Status) error {
	if msg.Status.Terminal() {
		return fmt.Errorf("message %d already in terminal status %s", msg.ID, msg.Status)
	}
	msg.Status = next
	return s.repo.UpdateMessageStatus(ctx, msg)
}

func newMessage(sender Sender, recipients []string, subject, body, templateName string) *Message {
	name := sender.Name
	if name == "" {
		name = sender.Email
	}

	rs := make([]Recipient, len(recipients))
	for i, r := range recipients {
		rs[i] = Recipient{Email: r}
	}

	return &Message{
		Subject:      subject,
		Body:         body,
		SenderName:   name,
		SenderEmail:  sender.Email,
		TemplateName: templateName,
		Status:       StatusPending,
		SentDate:     time.Now().UTC(),
		Recipients:   rs,
	}
}
