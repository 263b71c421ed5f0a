package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mailfleet/mailfleet/pkg/template"
)

// SaveTemplate inserts a template row and assigns its id.
func (d *DB) SaveTemplate(ctx context.Context, t *template.Template) error {
	res, err := d.db.ExecContext(ctx,
		`insert into templates (name, path, size) values (?, ?, ?)`,
		t.Name, t.Path, t.Size)
	if err != nil {
		return fmt.Errorf("inserting template: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading template id: %w", err)
	}
	t.ID = id
	return nil
}

// GetTemplateByName returns the named template row, or nil when absent.
func (d *DB) GetTemplateByName(ctx context.Context, name string) (*template.Template, error) {
	var t template.Template
	err := d.db.GetContext(ctx, &t,
		`select id, name, path, size from templates where name = ?`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching template by name: %w", err)
	}
	return &t, nil
}

// GetTemplate returns the template row by id, or nil when absent.
func (d *DB) GetTemplate(ctx context.Context, id int64) (*template.Template, error) {
	var t template.Template
	err := d.db.GetContext(ctx, &t,
		`select id, name, path, size from templates where id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching template: %w", err)
	}
	return &t, nil
}

// DeleteTemplate removes the template row.
func (d *DB) DeleteTemplate(ctx context.Context, id int64) error {
	if _, err := d.db.ExecContext(ctx, `delete from templates where id = ?`, id); err != nil {
		return fmt.Errorf("deleting template: %w", err)
	}
	return nil
}

// ListTemplates returns all template rows ordered by name.
func (d *DB) ListTemplates(ctx context.Context) ([]template.Template, error) {
	templates := []template.Template{}
	err := d.db.SelectContext(ctx, &templates,
		`select id, name, path, size from templates order by name`)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	return templates, nil
}
