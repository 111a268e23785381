package ffe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

const credentialsSection = "FFE"

// Credentials log into the federation extranet.
type Credentials struct {
	User     string
	Password string
}

// DefaultCredentialsPath returns ~/.ffe.
func DefaultCredentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ffe"), nil
}

// LoadCredentials reads the [FFE] section of an INI file:
//
//	[FFE]
//	user = 123456
//	password = secret
func LoadCredentials(path string) (Credentials, error) {
	file, err := ini.Load(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("load %s: %w", path, err)
	}
	section, err := file.GetSection(credentialsSection)
	if err != nil {
		return Credentials{}, fmt.Errorf("%s: %w", path, err)
	}

	creds := Credentials{
		User:     strings.TrimSpace(section.Key("user").String()),
		Password: section.Key("password").String(),
	}
	if creds.User == "" || creds.Password == "" {
		return Credentials{}, errors.New(path + ": [FFE] user and password are required")
	}
	return creds, nil
}
