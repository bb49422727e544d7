// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	maerr "maestro/platform/shared/errors"
)

// DistributedAppendLock serializes Conversation.append across multiple
// orchestrator replicas sharing one conversation, implementing the
// concurrency model's "logical single-writer queue" with a Redis-backed
// mutual-exclusion lock rather than an in-process mutex.
type DistributedAppendLock struct {
	client   *redis.Client
	key      string
	ttl      time.Duration
	token    string
}

// NewDistributedAppendLock returns a lock scoped to conversationID on client.
func NewDistributedAppendLock(client *redis.Client, conversationID string, ttl time.Duration) *DistributedAppendLock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &DistributedAppendLock{
		client: client,
		key:    "maestro:conversation:lock:" + conversationID,
		ttl:    ttl,
	}
}

// Acquire blocks (polling every 20ms) until the lock is held or ctx is
// done. Releases must call Release exactly once per successful Acquire.
func (l *DistributedAppendLock) Acquire(ctx context.Context) error {
	token := uuid.NewString()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return maerr.Wrap(maerr.KindInternal, err, "failed to acquire conversation append lock")
		}
		if ok {
			l.token = token
			return nil
		}

		select {
		case <-ctx.Done():
			return maerr.Wrap(maerr.KindCancellation, ctx.Err(), "cancelled waiting for conversation append lock")
		case <-ticker.C:
		}
	}
}

// releaseScript only deletes the key if it still holds our token,
// avoiding releasing a lock acquired by a different writer after our TTL
// expired.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Release releases the lock if this instance still owns it.
func (l *DistributedAppendLock) Release(ctx context.Context) error {
	if l.token == "" {
		return errors.New("release called without a held lock")
	}
	res := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token)
	if res.Err() != nil {
		return fmt.Errorf("failed to release conversation append lock: %w", res.Err())
	}
	l.token = ""
	return nil
}
