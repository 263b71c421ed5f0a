package email

import (
	"fmt"
	"regexp"
	"strings"
)

// addressPattern matches a basic local@domain shape. No internationalization
// rules beyond local/domain separation.
var addressPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidAddress reports whether addr has a syntactically valid local@domain
// shape.
func ValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}

// ValidateSendRequest checks a plain send request and returns every
// violation at once, or nil when the request is valid.
func ValidateSendRequest(req SendRequest) error {
	ve := &ValidationError{}
	validateCommon(ve, req.Sender, req.Recipients)

	if strings.TrimSpace(req.Subject) == "" {
		ve.Add("Subject", "subject is required")
	}
	if strings.TrimSpace(req.Body) == "" {
		ve.Add("Body", "body is required")
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}

// ValidateSendTemplatedRequest checks a templated send request and returns
// every violation at once, or nil when the request is valid.
func ValidateSendTemplatedRequest(req SendTemplatedRequest) error {
	ve := &ValidationError{}
	validateCommon(ve, req.Sender, req.Recipients)

	if strings.TrimSpace(req.TemplateName) == "" {
		ve.Add("TemplateName", "template name is required")
	}
	if req.TemplateProperties == nil {
		ve.Add("TemplateProperties", "template properties are required")
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateCommon(ve *ValidationError, sender Sender, recipients []string) {
	if strings.TrimSpace(sender.Email) == "" {
		ve.Add("Sender.Email", "sender email is required")
	} else if !ValidAddress(sender.Email) {
		ve.Add("Sender.Email", "sender email is not valid")
	}

	if len(recipients) == 0 {
		ve.Add("Recipients", "at least one recipient is required")
		return
	}
	for i, r := range recipients {
		field := fmt.Sprintf("Recipients[%d]", i)
		if strings.TrimSpace(r) == "" {
			ve.Add(field, "recipient email cannot be empty")
		} else if !ValidAddress(r) {
			ve.Add(field, fmt.Sprintf("recipient email %q is not valid", r))
		}
	}
}
