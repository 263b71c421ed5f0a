// Package mailctl implements the admin CLI that talks to a running
// mailfleet instance over its HTTP API.
package mailctl

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/mailfleet/mailfleet/pkg/email"
	"github.com/mailfleet/mailfleet/pkg/template"
)

// Client is a thin resty wrapper over the mailfleet HTTP API.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the given base URL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().SetBaseURL(baseURL).SetHeader("Content-Type", "application/json"),
	}
}

type apiError struct {
	Error  string             `json:"error"`
	Fields []email.FieldError `json:"fields,omitempty"`
}

func (e apiError) String() string {
	msg := e.Error
	for _, f := range e.Fields {
		msg += fmt.Sprintf("\n  %s: %s", f.Field, f.Message)
	}
	return msg
}

// Send submits a plain email send request.
func (c *Client) Send(ctx context.Context, payload email.SendPayload) (*email.Message, error) {
	var msg email.Message
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&msg).
		SetError(&apiErr).
		Post("/api/email/send")
	if err != nil {
		return nil, fmt.Errorf("calling send endpoint: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("send failed (%s): %s", resp.Status(), apiErr)
	}
	return &msg, nil
}

// SendTemplated submits a templated email send request.
func (c *Client) SendTemplated(ctx context.Context, payload email.SendTemplatedPayload) (*email.Message, error) {
	var msg email.Message
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&msg).
		SetError(&apiErr).
		Post("/api/email/send-templated")
	if err != nil {
		return nil, fmt.Errorf("calling send-templated endpoint: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("send failed (%s): %s", resp.Status(), apiErr)
	}
	return &msg, nil
}

// ListTemplates fetches all stored templates.
func (c *Client) ListTemplates(ctx context.Context) ([]template.Template, error) {
	var templates []template.Template
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&templates).
		SetError(&apiErr).
		Get("/api/templates")
	if err != nil {
		return nil, fmt.Errorf("calling templates endpoint: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("listing templates failed (%s): %s", resp.Status(), apiErr)
	}
	return templates, nil
}

// GetMessage fetches one message record by id.
func (c *Client) GetMessage(ctx context.Context, id int64) (*email.Message, error) {
	var msg email.Message
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&msg).
		SetError(&apiErr).
		Get(fmt.Sprintf("/api/email/%d", id))
	if err != nil {
		return nil, fmt.Errorf("calling message endpoint: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetching message failed (%s): %s", resp.Status(), apiErr)
	}
	return &msg, nil
}

func prettyJSON(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(out)
}
