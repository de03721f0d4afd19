package filebackend

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jrsteele09/go-security-portal/tokens"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// Backend stores each key as a file in a private directory
type Backend struct {
	dir string
}

var _ tokens.Backend = (*Backend)(nil)

// New creates dir if needed
func New(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("[filebackend New] failed to create %s: %w", dir, err)
	}
	return &Backend{dir: dir}, nil
}

func (b *Backend) Dir() string {
	return b.dir
}

func (b *Backend) Get(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(b.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("[filebackend Get] %w", err)
	}
	return data, true, nil
}

// Set writes through a temp file and rename so readers never see a half written value
func (b *Backend) Set(key string, value []byte) error {
	if err := os.MkdirAll(b.dir, dirPerm); err != nil {
		return fmt.Errorf("[filebackend Set] %w", err)
	}
	tmp, err := os.CreateTemp(b.dir, "."+key+"-*")
	if err != nil {
		return fmt.Errorf("[filebackend Set] %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("[filebackend Set] %w", err)
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("[filebackend Set] %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[filebackend Set] %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path(key)); err != nil {
		return fmt.Errorf("[filebackend Set] %w", err)
	}
	return nil
}

func (b *Backend) Delete(keys ...string) error {
	for _, key := range keys {
		if err := os.Remove(b.path(key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("[filebackend Delete] %w", err)
		}
	}
	return nil
}

func (b *Backend) path(key string) string {
	return filepath.Join(b.dir, key+".json")
}
