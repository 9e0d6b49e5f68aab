// ABOUTME: Starter configuration written by `fitportal init`
// ABOUTME: Generates a random JWT secret and refuses to overwrite existing files

package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const starterTemplate = `# fitportal configuration
database:
  driver: sqlite            # sqlite | postgres | memory
  path: %q
  # url: "${FITPORTAL_DATABASE_URL}"

auth:
  jwt_secret: %q
  bcrypt_cost: 10
  min_password_length: 6
  session_ttl: "168h"
  session_file: %q

store:
  transact_max_attempts: 25
  transact_backoff: "2ms"

bootstrap:
  enabled: false
  max_attempts: 3
  backoff: "1s"
  accounts:
    - email: "admin@example.com"
      password: "${FITPORTAL_ADMIN_PASSWORD}"
      role: admin

analytics:
  dedupe_window: "30m"

checkout:
  base_url: "https://example.com/checkout"

logging:
  level: info
  format: text

metrics:
  enabled: false
  addr: "127.0.0.1:9090"
  path: /metrics
`

// Starter renders a starter YAML config with a fresh random secret.
func Starter() (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	dir := DataDir()
	return fmt.Sprintf(starterTemplate,
		filepath.Join(dir, "portal.db"),
		hex.EncodeToString(secret),
		filepath.Join(dir, "session.jwt"),
	), nil
}

// WriteStarter writes a starter config to path. It fails if path exists.
func WriteStarter(path string) error {
	content, err := Starter()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	return f.Close()
}
