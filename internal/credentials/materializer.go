// Package credentials turns in-memory certificate and key material into files
// that live exactly as long as one authority interaction.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	certFileName = "cert.crt"
	keyFileName  = "key.key"

	dirMode  os.FileMode = 0o700
	fileMode os.FileMode = 0o600
)

// ErrMissingMaterial is returned when either the certificate or the key is empty.
var ErrMissingMaterial = errors.New("certificate and private key are required")

// Credentials is the PEM material supplied with one request.
type Credentials struct {
	AccountID   string
	Certificate string
	PrivateKey  string
}

// String hides the key material from logs and fmt verbs.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{AccountID:%s}", c.AccountID)
}

// Files points at the materialized certificate and key. The paths are only
// valid inside the callback passed to WithMaterialized.
type Files struct {
	CertPath string
	KeyPath  string
}

// Materializer writes credentials into private scratch directories.
type Materializer struct {
	dir    string
	logger zerolog.Logger
}

// NewMaterializer constructs a materializer rooted at dir, or the system temp
// directory when dir is empty.
func NewMaterializer(dir string, logger zerolog.Logger) *Materializer {
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	return &Materializer{dir: dir, logger: logger.With().Str("component", "credentials").Logger()}
}

// Dir returns the root under which scratch directories are created.
func (m *Materializer) Dir() string {
	return m.dir
}

// WithMaterialized writes creds to a fresh directory, calls fn with the file
// paths and removes the directory before returning, on success, error or panic.
func WithMaterialized[T any](ctx context.Context, m *Materializer, creds Credentials, fn func(Files) (T, error)) (result T, err error) {
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if strings.TrimSpace(creds.Certificate) == "" || strings.TrimSpace(creds.PrivateKey) == "" {
		return result, ErrMissingMaterial
	}

	dir, err := os.MkdirTemp(m.dir, "facturia-"+uuid.NewString()+"-*")
	if err != nil {
		return result, fmt.Errorf("create credentials dir: %w", err)
	}
	defer m.cleanup(dir)

	if err := os.Chmod(dir, dirMode); err != nil {
		return result, fmt.Errorf("restrict credentials dir: %w", err)
	}

	files := Files{
		CertPath: filepath.Join(dir, certFileName),
		KeyPath:  filepath.Join(dir, keyFileName),
	}
	if err := os.WriteFile(files.CertPath, []byte(creds.Certificate), fileMode); err != nil {
		return result, fmt.Errorf("write certificate: %w", err)
	}
	if err := os.WriteFile(files.KeyPath, []byte(creds.PrivateKey), fileMode); err != nil {
		return result, fmt.Errorf("write private key: %w", err)
	}
	m.logger.Debug().Str("dir", filepath.Base(dir)).Msg("credentials materialized")

	return fn(files)
}

func (m *Materializer) cleanup(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Error().Err(err).Str("dir", filepath.Base(dir)).Msg("remove credentials dir")
		return
	}
	m.logger.Debug().Str("dir", filepath.Base(dir)).Msg("credentials removed")
}
