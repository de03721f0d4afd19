package tokens

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-security-portal/internal/errors"
	"github.com/jrsteele09/go-security-portal/users"
	"github.com/rs/zerolog/log"
)

// Store persists the token pair and the cached user profile on top of a Backend.
// Stored state is always both-or-neither: a partial or undecodable pair reads as absent
// and is purged on the way out.
type Store struct {
	backend Backend
	sealer  Sealer
	mu      sync.Mutex
}

type Option func(*Store)

// WithSealer encrypts values at rest
func WithSealer(sealer Sealer) Option {
	return func(s *Store) {
		s.sealer = sealer
	}
}

func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save overwrites the stored pair
func (s *Store) Save(pair Pair) error {
	if !pair.Complete() {
		return errors.ErrPartialTokenPair
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(KeyTokens, pair)
}

// Load returns the stored pair, or nil when nothing usable is stored
func (s *Store) Load() (*Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pair Pair
	found, err := s.get(KeyTokens, &pair)
	if err != nil || !found {
		return nil, err
	}
	if !pair.Complete() {
		log.Warn().Msg("Purging partial token pair from storage")
		if err := s.backend.Delete(KeyTokens); err != nil {
			return nil, fmt.Errorf("[tokens Load] failed to purge partial pair: %w", err)
		}
		return nil, nil
	}
	return &pair, nil
}

// Clear removes the pair and the cached profile together
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Delete(KeyTokens, KeyProfile); err != nil {
		return fmt.Errorf("[tokens Clear] %w", err)
	}
	return nil
}

// SaveProfile caches the last known profile
func (s *Store) SaveProfile(user *users.User) error {
	if user == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(KeyProfile, user)
}

// LoadProfile returns the cached profile, or nil
func (s *Store) LoadProfile() (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var user users.User
	found, err := s.get(KeyProfile, &user)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

func (s *Store) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("[tokens put] failed to encode %s: %w", key, err)
	}
	if s.sealer != nil {
		if data, err = s.sealer.Seal(data); err != nil {
			return fmt.Errorf("[tokens put] failed to seal %s: %w", key, err)
		}
	}
	if err := s.backend.Set(key, data); err != nil {
		return fmt.Errorf("[tokens put] failed to write %s: %w", key, err)
	}
	return nil
}

// get decodes key into v. A value that cannot be opened or decoded is deleted and reported
// as not found.
func (s *Store) get(key string, v any) (bool, error) {
	data, ok, err := s.backend.Get(key)
	if err != nil {
		return false, fmt.Errorf("[tokens get] failed to read %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	decodeErr := func() error {
		if s.sealer != nil {
			opened, err := s.sealer.Open(data)
			if err != nil {
				return err
			}
			data = opened
		}
		return json.Unmarshal(data, v)
	}()
	if decodeErr != nil {
		log.Warn().Err(decodeErr).Str("key", key).Msg("Purging corrupt entry from storage")
		if err := s.backend.Delete(key); err != nil {
			return false, fmt.Errorf("[tokens get] failed to purge %s: %w", key, err)
		}
		return false, nil
	}
	return true, nil
}
