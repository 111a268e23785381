package credentials

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// ErrNotFound is returned by Load when no credential file exists yet.
var ErrNotFound = errors.New("credentials not found")

// Hash is the hex encoded digest stored in the credential file.
type Hash string

// Store persists the single account's password hash in a file readable only by its owner.
type Store struct {
	Path string
}

// NewStore returns a Store backed by path.
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("credentials path is required")
	}
	return &Store{Path: path}, nil
}

// HashPassword encodes password as ISO-8859-1 and returns its unsalted MD5 hex digest,
// the format the desktop application writes.
func HashPassword(password string) (Hash, error) {
	encoded, err := charmap.ISO8859_1.NewEncoder().String(password)
	if err != nil {
		return "", fmt.Errorf("encode password as latin1: %w", err)
	}
	sum := md5.Sum([]byte(encoded))
	return Hash(hex.EncodeToString(sum[:])), nil
}

// Exists reports whether the credential file is present.
func (s *Store) Exists() bool {
	if s == nil {
		return false
	}
	info, err := os.Stat(s.Path)
	return err == nil && info.Mode().IsRegular()
}

// Save hashes password and replaces the stored hash.
func (s *Store) Save(password string) (Hash, error) {
	if s == nil {
		return "", errors.New("nil store")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return "", fmt.Errorf("create credentials dir: %w", err)
	}
	if err := os.WriteFile(s.Path, []byte(hash), 0o600); err != nil {
		return "", fmt.Errorf("write credentials: %w", err)
	}
	// WriteFile keeps the mode of a pre-existing file.
	if err := os.Chmod(s.Path, 0o600); err != nil {
		return "", fmt.Errorf("restrict credentials: %w", err)
	}
	return hash, nil
}

// Load reads the stored hash and tightens the file mode to owner read/write.
func (s *Store) Load() (Hash, error) {
	if s == nil {
		return "", errors.New("nil store")
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read credentials: %w", err)
	}
	if err := os.Chmod(s.Path, 0o600); err != nil {
		return "", fmt.Errorf("restrict credentials: %w", err)
	}
	hash := strings.TrimSpace(string(data))
	if hash == "" {
		return "", fmt.Errorf("credentials file %s is empty", s.Path)
	}
	return Hash(hash), nil
}
