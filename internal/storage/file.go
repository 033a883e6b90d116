package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const probeName = ".keycapture-probe"

// FileStore keeps each stream as a text file in one directory.
type FileStore struct {
	fs    afero.Fs
	dir   string
	ready bool
}

func NewFileStore(fs afero.Fs, dir string) *FileStore {
	return &FileStore{fs: fs, dir: dir}
}

// Init creates the directory and checks that it is writable.
func (s *FileStore) Init() error {
	if s.ready {
		return nil
	}
	if s.dir == "" {
		return fmt.Errorf("no storage directory configured")
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}

	probe := filepath.Join(s.dir, probeName)
	if err := afero.WriteFile(s.fs, probe, []byte("ok\n"), 0o644); err != nil {
		return fmt.Errorf("storage directory not writable: %w", err)
	}
	if err := s.fs.Remove(probe); err != nil {
		return fmt.Errorf("remove probe file: %w", err)
	}

	s.ready = true
	return nil
}

func (s *FileStore) Open(name string, mode Mode) (Stream, error) {
	if !s.ready {
		return nil, ErrNotInitialized
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, name)

	switch mode {
	case ModeRead:
		f, err := s.fs.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
			}
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		return &fileStream{file: f, reader: bufio.NewReader(f)}, nil

	case ModeWrite:
		f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
		return &fileStream{file: f, writer: bufio.NewWriter(f)}, nil

	default:
		return nil, fmt.Errorf("unknown open mode %d", mode)
	}
}

func (s *FileStore) Exists(name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	return afero.Exists(s.fs, filepath.Join(s.dir, name))
}

func (s *FileStore) Close() error {
	s.ready = false
	return nil
}

type fileStream struct {
	file   afero.File
	reader *bufio.Reader
	writer *bufio.Writer
}

func (f *fileStream) ReadLine() (string, error) {
	if f.reader == nil {
		return "", ErrWriteOnly
	}
	line, err := f.reader.ReadString('\n')
	if err == io.EOF {
		if line == "" {
			return "", io.EOF
		}
		return line, ErrPartialLine
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (f *fileStream) WriteLine(line string) error {
	if f.writer == nil {
		return ErrReadOnly
	}
	if _, err := f.writer.WriteString(line); err != nil {
		return err
	}
	return f.writer.WriteByte('\n')
}

func (f *fileStream) Flush() error {
	if f.writer == nil {
		return nil
	}
	if err := f.writer.Flush(); err != nil {
		return err
	}
	return f.file.Sync()
}

func (f *fileStream) Close() error {
	var flushErr error
	if f.writer != nil {
		flushErr = f.writer.Flush()
	}
	if err := f.file.Close(); err != nil {
		return err
	}
	return flushErr
}
