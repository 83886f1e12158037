// Package ratelimit counts failed attempts per subject and refuses further
// attempts until a cooldown passes.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMaxAttempts = 5
	defaultCooldown    = 10 * time.Minute
)

var (
	// ErrLimited is returned when the subject has used up its attempts.
	ErrLimited = errors.New("ratelimit: too many attempts")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("ratelimit: unavailable")
)

// Scopes for attempt counters.
const (
	ScopeTwoFactor = "2fa"
	ScopeLogin     = "login"
)

// Limiter tracks failed attempts keyed by scope and subject.
type Limiter interface {
	// Check returns ErrLimited if no attempts remain.
	Check(ctx context.Context, scope, subject string) error
	// RecordFailure counts a failed attempt. It returns ErrLimited once the limit is reached.
	RecordFailure(ctx context.Context, scope, subject string) error
	// Reset clears the counter after a success.
	Reset(ctx context.Context, scope, subject string) error
}

// Noop never limits.
type Noop struct{}

func (Noop) Check(context.Context, string, string) error         { return nil }
func (Noop) RecordFailure(context.Context, string, string) error { return nil }
func (Noop) Reset(context.Context, string, string) error         { return nil }

// Redis is a Limiter storing counters in Redis. The first failure starts the
// cooldown window; the counter expires with it.
type Redis struct {
	client      redis.UniversalClient
	maxAttempts int64
	cooldown    time.Duration
}

// NewRedis returns a Redis limiter. Non-positive values fall back to 5 attempts per 10 minutes.
func NewRedis(client redis.UniversalClient, maxAttempts int, cooldown time.Duration) *Redis {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Redis{client: client, maxAttempts: int64(maxAttempts), cooldown: cooldown}
}

func key(scope, subject string) string {
	return "portal:att:" + scope + ":" + subject
}

func (l *Redis) Check(ctx context.Context, scope, subject string) error {
	count, err := l.client.Get(ctx, key(scope, subject)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrLimited
	}
	return nil
}

func (l *Redis) RecordFailure(ctx context.Context, scope, subject string) error {
	k := key(scope, subject)
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count >= l.maxAttempts {
		return ErrLimited
	}
	return nil
}

func (l *Redis) Reset(ctx context.Context, scope, subject string) error {
	if err := l.client.Del(ctx, key(scope, subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Dial parses url (redis://...) and returns a client after a ping.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
