// Package config loads and validates the bookbuilder configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	DataDir string        `yaml:"data_dir"`
	Journal JournalConfig `yaml:"journal"`
	Binder  BinderConfig  `yaml:"binder"`
	Build   BuildConfig   `yaml:"build"`
	Forge   ForgeConfig   `yaml:"forge"`
	Archive ArchiveConfig `yaml:"archive"`
	Notify  NotifyConfig  `yaml:"notify"`
	Server  ServerConfig  `yaml:"server"`
	Worker  WorkerConfig  `yaml:"worker"`
	Janitor JanitorConfig `yaml:"janitor"`
}

// JournalConfig identifies the journal the archival records belong to.
type JournalConfig struct {
	Name      string `yaml:"name"`       // e.g. "OpenPreprints"
	DOIPrefix string `yaml:"doi_prefix"` // e.g. "10.12345"
	PapersURL string `yaml:"papers_url"` // base URL for citable preprint pages
}

// BinderConfig locates the remote build service.
type BinderConfig struct {
	Name   string `yaml:"name"`   // subdomain of the BinderHub deployment
	Domain string `yaml:"domain"` // parent domain
	// ProductionURL is written into forked book configurations during
	// provisioning; it may differ from the preview deployment above.
	ProductionURL string `yaml:"production_url"`
}

// Host returns the fully qualified build service host.
func (b BinderConfig) Host() string {
	return fmt.Sprintf("https://%s.%s", b.Name, b.Domain)
}

// BuildConfig carries build admission and stream relay settings.
type BuildConfig struct {
	RateLimitMinutes int           `yaml:"rate_limit_minutes"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
	ArtifactsBaseURL string        `yaml:"artifacts_base_url"` // public URL serving built books
}

// RateLimit returns the admission rate limit as a duration.
func (b BuildConfig) RateLimit() time.Duration {
	return time.Duration(b.RateLimitMinutes) * time.Minute
}

// ForgeConfig configures the code-hosting integration (issue comments, forks).
type ForgeConfig struct {
	APIBaseURL       string `yaml:"api_base_url"`
	Token            string `yaml:"token"`
	ReviewRepository string `yaml:"review_repository"` // "org/reviews-repo"
	Organization     string `yaml:"organization"`      // fork target for production builds
}

// ArchiveConfig configures the archival deposit provider.
type ArchiveConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Token          string        `yaml:"token"`
	PacingDelay    time.Duration `yaml:"pacing_delay"`
	RollbackPacing time.Duration `yaml:"rollback_pacing"`
}

// NotifyConfig configures the notification sinks.
type NotifyConfig struct {
	Timezone string     `yaml:"timezone"`
	Mail     MailConfig `yaml:"mail"`
	NATS     NATSConfig `yaml:"nats"`
}

// MailConfig configures the SMTP sink.
type MailConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	From       string   `yaml:"from"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	Recipients []string `yaml:"recipients"`
}

// NATSConfig configures the machine-readable event sink.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Stream  string `yaml:"stream"`
}

// ServerConfig configures the HTTP front door.
type ServerConfig struct {
	APIPort   int               `yaml:"api_port"`
	AdminPort int               `yaml:"admin_port"`
	BasicAuth map[string]string `yaml:"basic_auth"` // user -> password
}

// WorkerConfig sizes the background job pool.
type WorkerConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// JanitorConfig configures periodic maintenance sweeps.
type JanitorConfig struct {
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	TranscriptMaxAge time.Duration `yaml:"transcript_max_age"`
}

// Load reads the configuration file, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	// Secrets come from the environment; a .env file is optional.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Binder.Name == "" || c.Binder.Domain == "" {
		return fmt.Errorf("binder.name and binder.domain are required")
	}
	if c.Build.RateLimitMinutes <= 0 {
		return fmt.Errorf("build.rate_limit_minutes must be > 0")
	}
	if c.Build.ProgressInterval <= 0 {
		return fmt.Errorf("build.progress_interval must be > 0")
	}
	if c.Archive.BaseURL == "" {
		return fmt.Errorf("archive.base_url is required")
	}
	if c.Archive.PacingDelay < 0 || c.Archive.RollbackPacing < 0 {
		return fmt.Errorf("archive pacing delays must not be negative")
	}
	if c.Notify.Mail.Enabled && c.Notify.Mail.Host == "" {
		return fmt.Errorf("notify.mail.host is required when mail is enabled")
	}
	if c.Notify.NATS.Enabled && c.Notify.NATS.URL == "" {
		return fmt.Errorf("notify.nats.url is required when nats is enabled")
	}
	return nil
}
