package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mailfleet/mailfleet/pkg/email"
)

// SaveMessage inserts a message and its recipients in one transaction and
// assigns their ids.
func (d *DB) SaveMessage(ctx context.Context, msg *email.Message) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`insert into messages (subject, body, sender_name, sender_email, template_name, status, sent_date)
		 values (?, ?, ?, ?, ?, ?, ?)`,
		msg.Subject, msg.Body, msg.SenderName, msg.SenderEmail, msg.TemplateName, msg.Status, msg.SentDate)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading message id: %w", err)
	}
	msg.ID = id

	for i := range msg.Recipients {
		res, err := tx.ExecContext(ctx,
			`insert into recipients (message_id, email) values (?, ?)`,
			id, msg.Recipients[i].Email)
		if err != nil {
			return fmt.Errorf("inserting recipient: %w", err)
		}
		rid, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading recipient id: %w", err)
		}
		msg.Recipients[i].ID = rid
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}
	return nil
}

// UpdateMessageStatus writes the current status and sent date.
func (d *DB) UpdateMessageStatus(ctx context.Context, msg *email.Message) error {
	_, err := d.db.ExecContext(ctx,
		`update messages set status = ?, sent_date = ? where id = ?`,
		msg.Status, msg.SentDate, msg.ID)
	if err != nil {
		return fmt.Errorf("updating message status: %w", err)
	}
	return nil
}

// GetMessage fetches a message with its recipients, or nil when absent.
func (d *DB) GetMessage(ctx context.Context, id int64) (*email.Message, error) {
	var msg email.Message
	err := d.db.GetContext(ctx, &msg,
		`select id, subject, body, sender_name, sender_email, template_name, status, sent_date
		 from messages where id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching message: %w", err)
	}

	err = d.db.SelectContext(ctx, &msg.Recipients,
		`select id, email from recipients where message_id = ? order by id`, id)
	if err != nil {
		return nil, fmt.Errorf("fetching recipients: %w", err)
	}
	return &msg, nil
}
