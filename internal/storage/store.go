// Package storage provides the named line streams that recordings are kept
// in. A stream is opened either for reading or for truncating write; at the
// device level only one stream is ever open at a time.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/keycapture/internal/config"
	"github.com/spf13/afero"
)

// Mode selects how a stream is opened.
type Mode int

const (
	// ModeRead opens an existing stream from its first line.
	ModeRead Mode = iota
	// ModeWrite creates the stream or truncates an existing one.
	ModeWrite
)

var (
	ErrNotFound       = errors.New("stream not found")
	ErrNotInitialized = errors.New("store not initialized")
	// ErrPartialLine is returned by ReadLine for a final line that has no
	// terminator, as left by a write interrupted mid-line.
	ErrPartialLine = errors.New("partial final line")
	ErrReadOnly    = errors.New("stream is open for reading")
	ErrWriteOnly   = errors.New("stream is open for writing")
	ErrInvalidName = errors.New("invalid stream name")
)

// Store opens named streams.
type Store interface {
	// Init brings the backing medium up. Open fails until Init succeeds.
	Init() error
	Open(name string, mode Mode) (Stream, error)
	Exists(name string) (bool, error)
	Close() error
}

// Stream is one open named stream.
type Stream interface {
	// ReadLine returns the next line without its terminator, io.EOF at the
	// end, or ErrPartialLine with the remainder when the last line is cut.
	ReadLine() (string, error)
	WriteLine(line string) error
	// Flush makes every written line durable.
	Flush() error
	Close() error
}

// BackendType names a storage backend.
type BackendType string

const (
	BackendFile   BackendType = "file"
	BackendSQLite BackendType = "sqlite"
)

// New creates the store selected by the configuration. The store still needs
// Init before use.
func New(cfg config.StorageConfig) (Store, error) {
	switch determineBackend(cfg) {
	case BackendSQLite:
		return NewSQLStore(cfg.Database), nil
	case BackendFile:
		return NewFileStore(afero.NewOsFs(), cfg.Directory), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

func determineBackend(cfg config.StorageConfig) BackendType {
	switch strings.ToLower(cfg.Backend) {
	case "", "file":
		return BackendFile
	case "sqlite":
		return BackendSQLite
	default:
		return BackendType(cfg.Backend)
	}
}

// ValidateName rejects names that are empty or would escape the store.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
