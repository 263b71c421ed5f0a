// Package email contains the dispatch pipeline core: the message data
// model and its lifecycle state machine, request validation, and the
// service that orchestrates validation, persistence, rendering and SMTP
// dispatch for both direct and templated sends.
package email
