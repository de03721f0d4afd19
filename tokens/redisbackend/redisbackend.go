package redisbackend

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-security-portal/tokens"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Repo stores token values in redis under "<prefix>:<namespace>:<key>". Every write refreshes
// the TTL so abandoned namespaces age out with the portal session.
type Repo struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRepo parses a redis:// URL
func NewRepo(url, prefix string, ttl time.Duration) (*Repo, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("[redisbackend NewRepo] invalid redis url: %w", err)
	}
	return NewRepoWithClient(redis.NewClient(opts), prefix, ttl), nil
}

func NewRepoWithClient(client *redis.Client, prefix string, ttl time.Duration) *Repo {
	return &Repo{client: client, prefix: prefix, ttl: ttl}
}

// Ping checks connectivity
func (r *Repo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Repo) Close() error {
	return r.client.Close()
}

func (r *Repo) Namespace(namespace string) tokens.Backend {
	return &backend{repo: r, namespace: namespace}
}

// Drop removes every key stored for namespace
func (r *Repo) Drop(namespace string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Del(ctx, r.key(namespace, tokens.KeyTokens), r.key(namespace, tokens.KeyProfile)).Err(); err != nil {
		log.Warn().Err(err).Str("namespace", namespace).Msg("Failed to drop stored tokens")
	}
}

func (r *Repo) key(namespace, key string) string {
	return r.prefix + ":" + namespace + ":" + key
}

type backend struct {
	repo      *Repo
	namespace string
}

func (b *backend) Get(key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := b.repo.client.Get(ctx, b.repo.key(b.namespace, key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("[redisbackend Get] %w", err)
	}
	return data, true, nil
}

func (b *backend) Set(key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := b.repo.client.Set(ctx, b.repo.key(b.namespace, key), value, b.repo.ttl).Err(); err != nil {
		return fmt.Errorf("[redisbackend Set] %w", err)
	}
	return nil
}

func (b *backend) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	full := make([]string, 0, len(keys))
	for _, key := range keys {
		full = append(full, b.repo.key(b.namespace, key))
	}
	if err := b.repo.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("[redisbackend Delete] %w", err)
	}
	return nil
}
