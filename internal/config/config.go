package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

const (
	DefaultThreshold = 48

	// Classifier modes
	ModeKeyword    = "keyword"
	ModeGenerative = "generative"

	// Send policies
	PolicyFlaggedOnly = "flagged-only"
	PolicyAll         = "all"
)

func checkFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %04o; should be 0600", path, perm)
	}
	return nil
}

type Config struct {
	Email   EmailConfig   `yaml:"email"`
	LLM     LLMConfig     `yaml:"llm,omitempty"`
	Inbox   InboxConfig   `yaml:"inbox,omitempty"`
	Tracker TrackerConfig `yaml:"tracker"`
}

type EmailConfig struct {
	Provider       string     `yaml:"provider"` // "smtp", "sendgrid", "resend"
	From           string     `yaml:"from"`
	SMTP           SMTPConfig `yaml:"smtp,omitempty"`
	SendGridAPIKey string     `yaml:"sendgrid_api_key,omitempty"`
	ResendAPIKey   string     `yaml:"resend_api_key,omitempty"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	StartTLS bool   `yaml:"starttls"` // STARTTLS upgrade on a plain connection (port 587)
	UseTLS   bool   `yaml:"use_tls"`  // implicit TLS (port 465)
}

// LLMConfig holds settings for the text-generation service used in
// generative mode.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "anthropic" or "openai" (any OpenAI-compatible endpoint)
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key,omitempty"` // falls back to ANTHROPIC_API_KEY / OPENAI_API_KEY
	BaseURL  string `yaml:"base_url,omitempty"`
}

// ResolveAPIKey returns the configured key, falling back to the
// provider's conventional environment variable.
func (l LLMConfig) ResolveAPIKey() string {
	if l.APIKey != "" {
		return l.APIKey
	}
	switch l.Provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

// InboxConfig holds IMAP settings for bounce scanning
type InboxConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Server   string `yaml:"server"` // e.g. "imap.gmail.com"
	Port     int    `yaml:"port"`   // e.g. 993
	Email    string `yaml:"email"`
	Password string `yaml:"password"` // app password, not the main password
	Folder   string `yaml:"folder"`   // default "INBOX"
}

// TrackerConfig holds the work-hour processing settings
type TrackerConfig struct {
	Threshold      float64 `yaml:"threshold"`       // weekly hours below this are flagged
	ClassifierMode string  `yaml:"classifier_mode"` // "keyword" or "generative"
	SendPolicy     string  `yaml:"send_policy"`     // "flagged-only" or "all"
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".hourwatch", "config.yaml")
}

func Load(path string) (*Config, error) {
	if err := checkFilePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Tracker.Threshold == 0 {
		c.Tracker.Threshold = DefaultThreshold
	}
	if c.Tracker.ClassifierMode == "" {
		c.Tracker.ClassifierMode = ModeKeyword
	}
	if c.Tracker.SendPolicy == "" {
		c.Tracker.SendPolicy = PolicyFlaggedOnly
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.Inbox.Folder == "" {
		c.Inbox.Folder = "INBOX"
	}
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) Validate() error {
	if c.Email.From == "" {
		return fmt.Errorf("email: from address is required")
	}

	switch c.Email.Provider {
	case "", "smtp":
		if c.Email.SMTP.Host == "" {
			return fmt.Errorf("email.smtp: host is required")
		}
		if c.Email.SMTP.Port == 0 {
			return fmt.Errorf("email.smtp: port is required")
		}
	case "sendgrid":
		if c.Email.SendGridAPIKey == "" {
			return fmt.Errorf("email: sendgrid_api_key is required")
		}
	case "resend":
		if c.Email.ResendAPIKey == "" {
			return fmt.Errorf("email: resend_api_key is required")
		}
	default:
		return fmt.Errorf("email: unknown provider %q (smtp, sendgrid or resend)", c.Email.Provider)
	}

	switch c.Tracker.ClassifierMode {
	case ModeKeyword:
	case ModeGenerative:
		if c.LLM.Model == "" {
			return fmt.Errorf("llm: model is required in generative mode")
		}
		if c.LLM.ResolveAPIKey() == "" {
			return fmt.Errorf("llm: api_key is required in generative mode")
		}
	default:
		return fmt.Errorf("tracker: unknown classifier_mode %q (keyword or generative)", c.Tracker.ClassifierMode)
	}

	switch c.Tracker.SendPolicy {
	case PolicyFlaggedOnly, PolicyAll:
	default:
		return fmt.Errorf("tracker: unknown send_policy %q (flagged-only or all)", c.Tracker.SendPolicy)
	}

	if c.Tracker.Threshold <= 0 {
		return fmt.Errorf("tracker: threshold must be positive")
	}

	return nil
}

// ValidateInbox validates inbox configuration (only called for bounce scanning)
func (c *Config) ValidateInbox() error {
	if !c.Inbox.Enabled {
		return fmt.Errorf("inbox: bounce scanning is not enabled in config")
	}
	if c.Inbox.Email == "" {
		return fmt.Errorf("inbox: email address is required")
	}
	if c.Inbox.Password == "" {
		return fmt.Errorf("inbox: password (app password) is required")
	}
	if c.Inbox.Server == "" {
		return fmt.Errorf("inbox: IMAP server is required")
	}
	if c.Inbox.Port == 0 {
		return fmt.Errorf("inbox: IMAP port is required")
	}
	return nil
}
