package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	appDirName      = "BellePoule"
	credentialsFile = "ftpd.user"
	defaultUser     = "bellepoule"
)

func Load() (Config, error) {
	cfg := Config{}

	cfg.Verbose = getEnvBool("FTPD_VERBOSE", false)

	cfg.FTP.Host = getEnv("FTPD_HOST", "127.0.0.1")
	if ip := net.ParseIP(cfg.FTP.Host); ip == nil {
		return Config{}, fmt.Errorf("invalid FTPD_HOST: %q", cfg.FTP.Host)
	}
	cfg.FTP.Port = getEnvInt("FTPD_PORT", 1026)
	if cfg.FTP.Port <= 0 || cfg.FTP.Port > 65535 {
		return Config{}, fmt.Errorf("invalid FTPD_PORT: %d", cfg.FTP.Port)
	}
	if passive := os.Getenv("FTPD_PASSIVE_PORTS"); passive != "" {
		if _, _, err := parsePortRange(passive); err != nil {
			return Config{}, fmt.Errorf("invalid FTPD_PASSIVE_PORTS: %w", err)
		}
		cfg.FTP.PassivePorts = passive
	}
	cfg.FTP.User = getEnv("FTPD_USER", defaultUser)
	cfg.FTP.AllowAnonymous = getEnvBool("FTPD_ALLOW_ANONYMOUS", true)

	credentials := os.Getenv("FTPD_CREDENTIALS")
	if credentials == "" {
		configHome, err := configHome()
		if err != nil {
			return Config{}, fmt.Errorf("resolve config directory: %w", err)
		}
		credentials = filepath.Join(configHome, appDirName, credentialsFile)
	}
	cfg.FTP.CredentialsPath = credentials

	root := os.Getenv("FTPD_ROOT")
	if root == "" {
		dataHome, err := dataHome()
		if err != nil {
			return Config{}, fmt.Errorf("resolve data directory: %w", err)
		}
		root = filepath.Join(dataHome, appDirName, "www")
	}
	cfg.Ingest.RootDir = root
	cfg.Ingest.Subdir = getEnv("FTPD_ROUTE_SUBDIR", "cotcot")
	if strings.Contains(cfg.Ingest.Subdir, "..") || filepath.IsAbs(cfg.Ingest.Subdir) {
		return Config{}, fmt.Errorf("invalid FTPD_ROUTE_SUBDIR: %q", cfg.Ingest.Subdir)
	}

	cfg.Web.Enabled = getEnvBool("FTPD_WEB_ENABLED", true)
	cfg.Web.Mode = strings.ToLower(getEnv("FTPD_WEB_MODE", WebModeEmbedded))
	cfg.Web.Address = getEnv("FTPD_WEB_ADDRESS", "0.0.0.0:8000")
	cfg.Web.Command = os.Getenv("FTPD_WEB_COMMAND")
	cfg.Web.HealthAddress = getEnv("FTPD_HEALTH_ADDRESS", "127.0.0.1:8001")
	switch cfg.Web.Mode {
	case WebModeEmbedded:
	case WebModeCommand:
		if cfg.Web.Command == "" {
			cfg.Web.Command = "php --server " + cfg.Web.Address + " --docroot {root}"
		}
	default:
		return Config{}, fmt.Errorf("invalid FTPD_WEB_MODE: %q", cfg.Web.Mode)
	}

	cfg.Archive.Bucket = strings.TrimSpace(os.Getenv("FTPD_ARCHIVE_BUCKET"))
	cfg.Archive.PresignTTL = time.Duration(getEnvInt("FTPD_ARCHIVE_PRESIGN_TTL", 300)) * time.Second

	cfg.Events.NATSURL = os.Getenv("NATS_URL")
	cfg.Events.Subject = getEnv("FTPD_EVENTS_SUBJECT", "bptools.artifacts.filed")

	return cfg, nil
}

// configHome mirrors the XDG base directory lookup used by the desktop application.
func configHome() (string, error) {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v, nil
	}
	return os.UserConfigDir()
}

func dataHome() (string, error) {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share"), nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func parsePortRange(value string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%q is not a start-end range", value)
	}
	bounds := make([]int, 0, 2)
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		port, err := strconv.Atoi(trimmed)
		if err != nil {
			return 0, 0, fmt.Errorf("%q is not a valid integer", trimmed)
		}
		if port <= 0 || port > 65535 {
			return 0, 0, fmt.Errorf("port %d is outside the valid range 1-65535", port)
		}
		bounds = append(bounds, port)
	}
	if bounds[0] > bounds[1] {
		return 0, 0, fmt.Errorf("range start %d is after end %d", bounds[0], bounds[1])
	}
	return bounds[0], bounds[1], nil
}
