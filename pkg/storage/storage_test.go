package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailfleet/mailfleet/pkg/email"
	"github.com/mailfleet/mailfleet/pkg/template"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "mailfleet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testMessage() *email.Message {
	return &email.Message{
		Subject:     "Hello",
		Body:        "World",
		SenderName:  "Sender",
		SenderEmail: "sender@example.com",
		Status:      email.StatusPending,
		SentDate:    time.Now().UTC().Truncate(time.Second),
		Recipients: []email.Recipient{
			{Email: "a@example.com"},
			{Email: "b@example.com"},
		},
	}
}

func TestSaveAndGetMessage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	msg := testMessage()
	require.NoError(t, db.SaveMessage(ctx, msg))
	assert.NotZero(t, msg.ID)
	assert.NotZero(t, msg.Recipients[0].ID)
	assert.NotZero(t, msg.Recipients[1].ID)

	got, err := db.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, msg.Subject, got.Subject)
	assert.Equal(t, msg.Body, got.Body)
	assert.Equal(t, msg.SenderEmail, got.SenderEmail)
	assert.Equal(t, email.StatusPending, got.Status)
	require.Len(t, got.Recipients, 2)
	assert.Equal(t, "a@example.com", got.Recipients[0].Email)
	assert.Equal(t, "b@example.com", got.Recipients[1].Email)
}

func TestGetMessageAbsent(t *testing.T) {
	db := openTestDB(t)

	got, err := db.GetMessage(context.Background(), 9999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateMessageStatus(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	msg := testMessage()
	require.NoError(t, db.SaveMessage(ctx, msg))

	msg.Status = email.StatusSent
	msg.SentDate = time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.UpdateMessageStatus(ctx, msg))

	got, err := db.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, email.StatusSent, got.Status)
}

func TestIdenticalMessagesGetDistinctRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := testMessage()
	second := testMessage()
	require.NoError(t, db.SaveMessage(ctx, first))
	require.NoError(t, db.SaveMessage(ctx, second))

	assert.NotEqual(t, first.ID, second.ID)
}

func TestTemplateRepository(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	row := &template.Template{Name: "welcome", Path: "templates/welcome.html", Size: 42}
	require.NoError(t, db.SaveTemplate(ctx, row))
	assert.NotZero(t, row.ID)

	t.Run("get by name", func(t *testing.T) {
		got, err := db.GetTemplateByName(ctx, "welcome")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, row.ID, got.ID)
		assert.Equal(t, "templates/welcome.html", got.Path)
	})

	t.Run("get by name absent", func(t *testing.T) {
		got, err := db.GetTemplateByName(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("get by id", func(t *testing.T) {
		got, err := db.GetTemplate(ctx, row.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "welcome", got.Name)
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		err := db.SaveTemplate(ctx, &template.Template{Name: "welcome", Path: "x", Size: 1})
		assert.Error(t, err)
	})

	t.Run("list", func(t *testing.T) {
		require.NoError(t, db.SaveTemplate(ctx, &template.Template{Name: "goodbye", Path: "templates/goodbye.html", Size: 7}))

		rows, err := db.ListTemplates(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "goodbye", rows[0].Name)
		assert.Equal(t, "welcome", rows[1].Name)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, db.DeleteTemplate(ctx, row.ID))
		got, err := db.GetTemplateByName(ctx, "welcome")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
