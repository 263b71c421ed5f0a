package config

import (
	"context"
	"fmt"
	"os"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v2"
)

type Server struct {
	ListenAddress  string   `yaml:"listenAddress"`
	TLSCertFile    string   `yaml:"tlsCertFile"`
	TLSKeyFile     string   `yaml:"tlsKeyFile"`
	TrustedProxies []string `yaml:"trustedProxies"`
}

// SMTP configures the outbound transport and the dispatcher retry policy.
type SMTP struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username" env:"SMTP_USERNAME"`
	Password           string `yaml:"password" env:"SMTP_PASSWORD"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
	DefaultSenderEmail string `yaml:"defaultSenderEmail"`
	DefaultSenderName  string `yaml:"defaultSenderName"`
	// MaxRetryAttempts bounds delivery attempts per message. Default 3.
	MaxRetryAttempts int `yaml:"maxRetryAttempts"`
	// RetryDelayMilliseconds is the fixed delay between attempts. Default 1000.
	RetryDelayMilliseconds int `yaml:"retryDelayMilliseconds"`
}

// Broker configures the Kafka connection and the two consumer queues.
// SASLMechanism is "plain" (default), "scram-sha-256" or "scram-sha-512".
type Broker struct {
	Brokers            []string `yaml:"brokers"`
	GroupID            string   `yaml:"groupID"`
	EmailQueue         string   `yaml:"emailQueue"`
	TemplatedQueue     string   `yaml:"templatedQueue"`
	SASLMechanism      string   `yaml:"saslMechanism"`
	SASLUsername       string   `yaml:"saslUsername" env:"BROKER_SASL_USERNAME"`
	SASLPassword       string   `yaml:"saslPassword" env:"BROKER_SASL_PASSWORD"`
	TLSEnabled         bool     `yaml:"tlsEnabled"`
	InsecureSkipVerify bool     `yaml:"insecureSkipVerify"`
}

// Storage configures the file store holding template and attachment bytes.
type Storage struct {
	BaseDir           string `yaml:"baseDir"`
	TemplatesBucket   string `yaml:"templatesBucket"`
	AttachmentsBucket string `yaml:"attachmentsBucket"`
}

type Database struct {
	Path string `yaml:"path" env:"DATABASE_PATH"`
}

type Config struct {
	Server   Server   `yaml:"server"`
	SMTP     SMTP     `yaml:"smtp"`
	Broker   Broker   `yaml:"broker"`
	Storage  Storage  `yaml:"storage"`
	Database Database `yaml:"database"`
}

// Load reads the mailfleet configuration from a YAML file, applies
// environment overrides for secrets, and fills defaults. If configPath is
// empty, "./config.yaml" is used; MAILFLEET_CONFIG_PATH overrides both.
func Load(configPath ...string) (Config, error) {
	path := "./config.yaml"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}
	if env := os.Getenv("MAILFLEET_CONFIG_PATH"); env != "" {
		path = env
	}

	var config Config

	content, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("reading mailfleet config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(content, &config); err != nil {
		return config, fmt.Errorf("unmarshaling YAML %s: %w", path, err)
	}

	// Secrets may come from the environment instead of the file.
	if err := envconfig.Process(context.Background(), &config); err != nil {
		return config, fmt.Errorf("applying environment overrides: %w", err)
	}

	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":8080"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.MaxRetryAttempts == 0 {
		c.SMTP.MaxRetryAttempts = 3
	}
	if c.SMTP.RetryDelayMilliseconds == 0 {
		c.SMTP.RetryDelayMilliseconds = 1000
	}
	if c.Broker.GroupID == "" {
		c.Broker.GroupID = "mailfleet"
	}
	if c.Broker.EmailQueue == "" {
		c.Broker.EmailQueue = "email-queue"
	}
	if c.Broker.TemplatedQueue == "" {
		c.Broker.TemplatedQueue = "templated-email-queue"
	}
	if c.Storage.BaseDir == "" {
		c.Storage.BaseDir = "./data"
	}
	if c.Storage.TemplatesBucket == "" {
		c.Storage.TemplatesBucket = "templates"
	}
	if c.Storage.AttachmentsBucket == "" {
		c.Storage.AttachmentsBucket = "attachments"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/mailfleet.db"
	}
}
