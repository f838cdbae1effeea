package services

import (
	"bufio"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github/itish2003/docbot/logging"
)

const (
	CredentialModeSHA256    = "sha256"
	CredentialModePlaintext = "plaintext"
)

// CredentialStore is a flat allow-list of API keys read from a text file.
// In sha256 mode each line holds the hex digest of a key (or a bcrypt hash);
// plaintext mode compares raw keys and exists for older key files.
type CredentialStore struct {
	path string
	mode string
	log  *logrus.Entry

	mu      sync.RWMutex
	entries []string
}

// NewCredentialStore loads the allow-list at path. A file that cannot be read
// leaves the store empty, so every check fails closed.
func NewCredentialStore(path, mode string) *CredentialStore {
	if mode == "" {
		mode = CredentialModeSHA256
	}
	s := &CredentialStore{path: path, mode: mode, log: logging.For("auth")}
	_ = s.Reload()
	return s
}

// Path returns the allow-list file location.
func (s *CredentialStore) Path() string { return s.path }

// Reload re-reads the allow-list file. On error the store is emptied and
// every check fails until a later Reload succeeds.
func (s *CredentialStore) Reload() error {
	entries, err := readCredentialFile(s.path)
	if err != nil {
		s.log.WithError(err).WithField("path", s.path).Error("could not load api keys, rejecting all requests")
		entries = nil
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("load api keys: %w", err)
	}
	s.log.WithField("keys", len(entries)).Debug("api keys loaded")
	return nil
}

// IsValid reports whether candidate, or its hash, is present in the allow-list.
func (s *CredentialStore) IsValid(candidate string) bool {
	if candidate == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.mode == CredentialModePlaintext {
		for _, entry := range s.entries {
			if subtle.ConstantTimeCompare([]byte(entry), []byte(candidate)) == 1 {
				return true
			}
		}
		return false
	}

	digest := HashKey(candidate)
	for _, entry := range s.entries {
		if isBcryptHash(entry) {
			if bcrypt.CompareHashAndPassword([]byte(entry), []byte(candidate)) == nil {
				return true
			}
			continue
		}
		if subtle.ConstantTimeCompare([]byte(strings.ToLower(entry)), []byte(digest)) == 1 {
			return true
		}
	}
	return false
}

// HashKey returns the hex sha256 digest stored in the allow-list for key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// BcryptKey returns a bcrypt allow-list entry for key.
func BcryptKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ExtractAPIKey strips an optional "Bearer " prefix from an Authorization header.
func ExtractAPIKey(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

func isBcryptHash(entry string) bool {
	return strings.HasPrefix(entry, "$2a$") || strings.HasPrefix(entry, "$2b$") || strings.HasPrefix(entry, "$2y$")
}

func readCredentialFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
