package email

import "time"

// Status tracks a message through the dispatch pipeline.
// Transitions are monotonic: Pending -> Sending -> Sent or Failed.
// Sent and Failed are terminal.
type Status string

const (
	StatusPending Status = "Pending"
	StatusSending Status = "Sending"
	StatusSent    Status = "Sent"
	StatusFailed  Status = "Failed"
)

// Terminal reports whether no further status transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Sender identifies the originator of a message. Name is optional and
// falls back to the address when empty.
type Sender struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Recipient is owned by its Message and exists only as part of it.
type Recipient struct {
	ID    int64  `json:"id" db:"id"`
	Email string `json:"email" db:"email"`
}

// Message is one logical outbound email and its lifecycle state.
type Message struct {
	ID           int64       `json:"id" db:"id"`
	Subject      string      `json:"subject" db:"subject"`
	Body         string      `json:"body" db:"body"`
	SenderName   string      `json:"senderName" db:"sender_name"`
	SenderEmail  string      `json:"senderEmail" db:"sender_email"`
	TemplateName string      `json:"templateName,omitempty" db:"template_name"`
	Status       Status      `json:"status" db:"status"`
	SentDate     time.Time   `json:"sentDate" db:"sent_date"`
	Recipients   []Recipient `json:"recipients"`
}

// Attachment carries file content in its base64 transport encoding.
// It is attached to exactly one delivery and never persisted.
type Attachment struct {
	FileName      string `json:"fileName"`
	ContentBase64 string `json:"contentBase64"`
	ContentType   string `json:"contentType,omitempty"`
}

// SendRequest is a plain email send request.
type SendRequest struct {
	Sender     Sender   `json:"sender"`
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

// SendPayload wraps a plain send request with optional attachments. It is
// the body shape shared by the HTTP layer and the queue envelopes.
type SendPayload struct {
	Email       SendRequest  `json:"email"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// SendTemplatedPayload wraps a templated send request with optional
// attachments.
type SendTemplatedPayload struct {
	Email       SendTemplatedRequest `json:"email"`
	Attachments []Attachment         `json:"attachments,omitempty"`
}

// SendTemplatedRequest is a templated email send request. The subject is
// taken from a "Subject" template property when present, otherwise the
// template name is used.
type SendTemplatedRequest struct {
	Sender             Sender         `json:"sender"`
	Recipients         []string       `json:"recipients"`
	TemplateName       string         `json:"templateName"`
	TemplateProperties map[string]any `json:"templateProperties"`
}
