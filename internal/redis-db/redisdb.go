/*
Copyright 2024 Tupa Sync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package redis_db

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps a universal client so both the retry scheduler and the queue
// can share one connection setup path.
type Redis struct {
	address string
	client  redis.UniversalClient
}

// ParseRedisURL parses a Redis URL into client options. Docker-style
// host:port addresses without a scheme are accepted as-is.
func ParseRedisURL(rawURL string, skipTLSVerify bool) (*redis.Options, error) {
	if strings.Count(rawURL, ":") == 1 && !strings.Contains(rawURL, "@") && !strings.Contains(rawURL, "//") {
		return &redis.Options{Addr: rawURL}, nil
	}

	// Normalize password-only URLs (redis://secret@host) which redis.ParseURL
	// would otherwise read as a username.
	if strings.HasPrefix(rawURL, "redis://") && strings.Contains(rawURL, "@") {
		parts := strings.Split(strings.TrimPrefix(rawURL, "redis://"), "@")
		if len(parts) == 2 && !strings.Contains(parts[0], ":") {
			rawURL = fmt.Sprintf("redis://:%s@%s", parts[0], parts[1])
		}
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	if opts.TLSConfig != nil && skipTLSVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: skipTLSVerify} // #nosec G402 -- operator opt-in
	}

	return opts, nil
}

// NewRedisClient creates a Redis client from the configured address and
// verifies connectivity with a short ping.
func NewRedisClient(address string, skipTLSVerify bool) (*Redis, error) {
	if address == "" {
		return nil, errors.New("redis address cannot be empty")
	}

	opts, err := ParseRedisURL(address, skipTLSVerify)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	return &Redis{address: address, client: client}, nil
}

// Client returns the Redis universal client for direct operations.
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

// MakeRedisClient exposes the client through the interface asynq expects.
func (r *Redis) MakeRedisClient() interface{} {
	return r.client
}
