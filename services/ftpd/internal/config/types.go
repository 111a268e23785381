package config

import "time"

type Config struct {
	FTP     FTPConfig
	Web     WebConfig
	Ingest  IngestConfig
	Archive ArchiveConfig
	Events  EventsConfig
	Verbose bool
}

type FTPConfig struct {
	Host            string
	Port            int
	PassivePorts    string
	User            string
	CredentialsPath string
	AllowAnonymous  bool
}

type WebConfig struct {
	Enabled bool
	Mode    string
	Address string
	Command string
	// HealthAddress serves /healthz, /readyz and /metrics when an external
	// command owns Address.
	HealthAddress string
}

type IngestConfig struct {
	RootDir string
	Subdir  string
}

type ArchiveConfig struct {
	Bucket     string
	PresignTTL time.Duration
}

type EventsConfig struct {
	NATSURL string
	Subject string
}

const (
	WebModeEmbedded = "embedded"
	WebModeCommand  = "command"
)
