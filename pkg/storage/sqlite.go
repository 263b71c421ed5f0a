// Package storage implements the message and template repositories on
// SQLite via sqlx.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
create table if not exists messages (
	id            integer primary key autoincrement,
	subject       text not null,
	body          text not null,
	sender_name   text not null,
	sender_email  text not null,
	template_name text not null default '',
	status        text not null,
	sent_date     datetime not null
);

create table if not exists recipients (
	id         integer primary key autoincrement,
	message_id integer not null references messages(id) on delete cascade,
	email      text not null
);

create table if not exists templates (
	id   integer primary key autoincrement,
	name text not null unique,
	path text not null,
	size integer not null
);
`

// DB wraps the sqlx handle and implements email.Repository and
// template.Repository.
type DB struct {
	db *sqlx.DB
}

// Open connects to the SQLite database at path, creating the file and the
// schema when missing.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", "file:"+path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
