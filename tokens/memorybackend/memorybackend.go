package memorybackend

import (
	"sync"

	"github.com/jrsteele09/go-security-portal/tokens"
)

// Repo holds token storage for many independent owners, one namespace each
type Repo struct {
	mu     sync.RWMutex
	values map[string]map[string][]byte // namespace -> key -> value
}

func NewRepo() *Repo {
	return &Repo{
		values: make(map[string]map[string][]byte),
	}
}

// Namespace returns the backend scoped to one owner
func (r *Repo) Namespace(namespace string) tokens.Backend {
	return &backend{repo: r, namespace: namespace}
}

// Drop forgets everything stored under namespace
func (r *Repo) Drop(namespace string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, namespace)
}

// Len is the number of namespaces holding at least one value
func (r *Repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.values)
}

// New returns a standalone backend with a single namespace
func New() tokens.Backend {
	return NewRepo().Namespace("")
}

type backend struct {
	repo      *Repo
	namespace string
}

func (b *backend) Get(key string) ([]byte, bool, error) {
	b.repo.mu.RLock()
	defer b.repo.mu.RUnlock()

	value, ok := b.repo.values[b.namespace][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (b *backend) Set(key string, value []byte) error {
	b.repo.mu.Lock()
	defer b.repo.mu.Unlock()

	if _, ok := b.repo.values[b.namespace]; !ok {
		b.repo.values[b.namespace] = make(map[string][]byte)
	}
	b.repo.values[b.namespace][key] = append([]byte(nil), value...)
	return nil
}

func (b *backend) Delete(keys ...string) error {
	b.repo.mu.Lock()
	defer b.repo.mu.Unlock()

	values, ok := b.repo.values[b.namespace]
	if !ok {
		return nil
	}
	for _, key := range keys {
		delete(values, key)
	}
	if len(values) == 0 {
		delete(b.repo.values, b.namespace)
	}
	return nil
}
