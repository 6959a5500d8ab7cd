// Package redis implements a key value store (kv.Store) using redis.
// For more details, see https://redis.io/
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"

	"github.com/symdex/symdex/internal/kv"
)

var _ kv.Store = &Store{}

// Name represents redis's shorthand name.
const Name = "redis"

// Store implements the Store interface for redis.
type Store struct {
	db *redis.Client
}

// Options represents options for configuring the redis store.
type Options struct {
	// host:port Addr.
	Addr string
	// Optional password. Must match the password specified in the
	// requirepass server configuration option.
	Password string
	// Database to be selected after connecting to the server.
	DB int
	// TLS Config to use. When set TLS will be negotiated.
	TLSConfig *tls.Config
}

// New creates a new redis store.
func New(o *Options) (*Store, error) {
	if o.Addr == "" {
		return nil, fmt.Errorf("kv/redis: connection address is required")
	}

	db := redis.NewClient(
		&redis.Options{
			Addr:      o.Addr,
			Password:  o.Password,
			DB:        o.DB,
			TLSConfig: o.TLSConfig,
		})

	if _, err := db.Ping().Result(); err != nil {
		return nil, fmt.Errorf("kv/redis: error connecting to redis: %w", err)
	}

	return &Store{db: db}, nil
}

// NewFromURL creates a new redis store from a redis:// or rediss:// URL.
func NewFromURL(rawurl string) (*Store, error) {
	opts, err := redis.ParseURL(rawurl)
	if err != nil {
		return nil, fmt.Errorf("kv/redis: invalid redis URL: %w", err)
	}
	db := redis.NewClient(opts)
	if _, err := db.Ping().Result(); err != nil {
		return nil, fmt.Errorf("kv/redis: error connecting to redis: %w", err)
	}
	return &Store{db: db}, nil
}

// Set is equivalent to the redis `SET key value [expiration]` command.
func (s *Store) Set(_ context.Context, k string, v []byte, ttl time.Duration) error {
	return s.db.Set(k, string(v), ttl).Err()
}

// Get is equivalent to the redis `GET key` command. An expired or missing key
// is reported as absent, not as an error.
func (s *Store) Get(_ context.Context, k string) (bool, []byte, error) {
	v, err := s.db.Get(k).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil, nil
	} else if err != nil {
		return false, nil, err
	}
	return true, []byte(v), nil
}

// Close closes the client, releasing any open resources.
//
// It is rare to Close a Client, as the Client is meant to be
// long-lived and shared between many goroutines.
func (s *Store) Close(_ context.Context) error {
	return s.db.Close()
}
