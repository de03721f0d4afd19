package filebackend

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jrsteele09/go-security-portal/tokens"
	"github.com/rs/zerolog/log"
)

// Repo keeps one directory per namespace under root. A namespace's directory is created on
// its first write.
type Repo struct {
	root string
}

func NewRepo(root string) (*Repo, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("[filebackend NewRepo] failed to create %s: %w", root, err)
	}
	return &Repo{root: root}, nil
}

func (r *Repo) Namespace(namespace string) tokens.Backend {
	return &Backend{dir: r.dir(namespace)}
}

// Drop removes the namespace's directory
func (r *Repo) Drop(namespace string) {
	dir := r.dir(namespace)
	if dir == r.root {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Warn().Err(err).Str("namespace", namespace).Msg("Failed to drop token namespace")
	}
}

// Len is the number of namespace directories
func (r *Repo) Len() int {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			n++
		}
	}
	return n
}

func (r *Repo) dir(namespace string) string {
	base := filepath.Base(filepath.Clean("/" + namespace))
	if base == string(filepath.Separator) {
		return r.root
	}
	return filepath.Join(r.root, base)
}
