package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const sampleConfig = `
server:
  listenAddress: ":9090"
smtp:
  host: smtp.example.com
  port: 2525
  username: mailer
  defaultSenderEmail: noreply@example.com
  maxRetryAttempts: 5
  retryDelayMilliseconds: 250
broker:
  brokers:
    - kafka-1:9092
    - kafka-2:9092
  groupID: mailfleet-test
database:
  path: /var/lib/mailfleet/mail.db
`

func TestLoad(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddress)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.Equal(t, "mailer", cfg.SMTP.Username)
	assert.Equal(t, "noreply@example.com", cfg.SMTP.DefaultSenderEmail)
	assert.Equal(t, 5, cfg.SMTP.MaxRetryAttempts)
	assert.Equal(t, 250, cfg.SMTP.RetryDelayMilliseconds)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Broker.Brokers)
	assert.Equal(t, "mailfleet-test", cfg.Broker.GroupID)
	assert.Equal(t, "/var/lib/mailfleet/mail.db", cfg.Database.Path)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "smtp:\n  host: smtp.example.com\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddress)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, 3, cfg.SMTP.MaxRetryAttempts)
	assert.Equal(t, 1000, cfg.SMTP.RetryDelayMilliseconds)
	assert.Equal(t, "mailfleet", cfg.Broker.GroupID)
	assert.Equal(t, "email-queue", cfg.Broker.EmailQueue)
	assert.Equal(t, "templated-email-queue", cfg.Broker.TemplatedQueue)
	assert.Equal(t, "templates", cfg.Storage.TemplatesBucket)
	assert.Equal(t, "attachments", cfg.Storage.AttachmentsBucket)
	assert.Equal(t, "./data/mailfleet.db", cfg.Database.Path)
}

func TestLoadEnvironmentOverridesSecrets(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	t.Setenv("SMTP_PASSWORD", "hunter2")
	t.Setenv("BROKER_SASL_USERNAME", "kafka-user")
	t.Setenv("BROKER_SASL_PASSWORD", "kafka-pass")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hunter2", cfg.SMTP.Password)
	assert.Equal(t, "kafka-user", cfg.Broker.SASLUsername)
	assert.Equal(t, "kafka-pass", cfg.Broker.SASLPassword)
}

func TestLoadConfigPathFromEnvironment(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("MAILFLEET_CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "smtp: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}
