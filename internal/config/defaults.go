package config

import (
	"os"
	"time"
)

// Default returns a configuration with every tunable set to its default.
// Secrets (tokens, passwords) have no defaults and must come from the
// environment or the config file.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		Journal: JournalConfig{
			Name:      "OpenPreprints",
			DOIPrefix: "10.12345",
			PapersURL: "https://openpreprints.example.org/papers",
		},
		Binder: BinderConfig{
			Name:   "binder",
			Domain: "example.org",
		},
		Build: BuildConfig{
			RateLimitMinutes: 30,
			ProgressInterval: 2 * time.Minute,
		},
		Forge: ForgeConfig{
			APIBaseURL: "https://api.github.com",
		},
		Archive: ArchiveConfig{
			BaseURL:        "https://zenodo.org/api",
			PacingDelay:    2 * time.Second,
			RollbackPacing: time.Second,
		},
		Notify: NotifyConfig{
			Timezone: "UTC",
			Mail:     MailConfig{Port: 587},
			NATS: NATSConfig{
				Subject: "bookbuilder.events",
				Stream:  "BOOKBUILDER",
			},
		},
		Server: ServerConfig{
			APIPort:   8080,
			AdminPort: 9090,
		},
		Worker: WorkerConfig{
			Workers:   4,
			QueueSize: 64,
		},
		Janitor: JanitorConfig{
			SweepInterval:    10 * time.Minute,
			TranscriptMaxAge: 30 * 24 * time.Hour,
		},
	}
}

// applyDefaults fills zero values left after unmarshalling a partial file.
func (c *Config) applyDefaults() {
	d := Default()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Build.RateLimitMinutes == 0 {
		c.Build.RateLimitMinutes = d.Build.RateLimitMinutes
	}
	if c.Build.ProgressInterval == 0 {
		c.Build.ProgressInterval = d.Build.ProgressInterval
	}
	if c.Forge.APIBaseURL == "" {
		c.Forge.APIBaseURL = d.Forge.APIBaseURL
	}
	if c.Archive.BaseURL == "" {
		c.Archive.BaseURL = d.Archive.BaseURL
	}
	if c.Archive.PacingDelay == 0 {
		c.Archive.PacingDelay = d.Archive.PacingDelay
	}
	if c.Archive.RollbackPacing == 0 {
		c.Archive.RollbackPacing = d.Archive.RollbackPacing
	}
	if c.Notify.Timezone == "" {
		c.Notify.Timezone = d.Notify.Timezone
	}
	if c.Notify.Mail.Port == 0 {
		c.Notify.Mail.Port = d.Notify.Mail.Port
	}
	if c.Notify.NATS.Subject == "" {
		c.Notify.NATS.Subject = d.Notify.NATS.Subject
	}
	if c.Notify.NATS.Stream == "" {
		c.Notify.NATS.Stream = d.Notify.NATS.Stream
	}
	if c.Server.APIPort == 0 {
		c.Server.APIPort = d.Server.APIPort
	}
	if c.Server.AdminPort == 0 {
		c.Server.AdminPort = d.Server.AdminPort
	}
	if c.Worker.Workers == 0 {
		c.Worker.Workers = d.Worker.Workers
	}
	if c.Worker.QueueSize == 0 {
		c.Worker.QueueSize = d.Worker.QueueSize
	}
	if c.Janitor.SweepInterval == 0 {
		c.Janitor.SweepInterval = d.Janitor.SweepInterval
	}
	if c.Janitor.TranscriptMaxAge == 0 {
		c.Janitor.TranscriptMaxAge = d.Janitor.TranscriptMaxAge
	}
}

// applyEnvOverrides lets deployment environments inject secrets without
// writing them into the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BOOKBUILDER_FORGE_TOKEN"); v != "" {
		c.Forge.Token = v
	}
	if v := os.Getenv("BOOKBUILDER_ARCHIVE_TOKEN"); v != "" {
		c.Archive.Token = v
	}
	if v := os.Getenv("BOOKBUILDER_SMTP_PASSWORD"); v != "" {
		c.Notify.Mail.Password = v
	}
	if v := os.Getenv("BOOKBUILDER_NATS_URL"); v != "" {
		c.Notify.NATS.URL = v
	}
}
