// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	s := New()

	id, err := s.Append(Message{Source: "system", Kind: KindSystem, System: &SystemPayload{Content: "hello", Level: SystemLevelInfo}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := s.All()
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.False(t, msgs[0].CreatedAt.IsZero())
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	s := New()
	m := Message{ID: "fixed-id", Source: "system", Kind: KindSystem, System: &SystemPayload{Content: "x", Level: SystemLevelInfo}}

	_, err := s.Append(m)
	require.NoError(t, err)

	_, err = s.Append(m)
	require.Error(t, err)
}

func TestFilterByKindAndPhase(t *testing.T) {
	s := New()
	_, _ = s.Append(Message{Source: "a", Phase: "design", Kind: KindSystem, System: &SystemPayload{Content: "x", Level: SystemLevelInfo}})
	_, _ = s.Append(Message{Source: "b", Phase: "implementation", Kind: KindDiscussion, Discussion: &DiscussionPayload{Content: "y", MessageType: MessageTypeDiscussion}})

	out := s.Filter(Filter{Phase: "design"})
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Source)
}

func TestContextForIncludesPendingQuestionsAndAnswers(t *testing.T) {
	s := New()
	_, err := s.Append(Message{
		Source: "backend_developer",
		Kind:   KindPersonaWork,
		PersonaWork: &PersonaWorkPayload{
			Summary:   "implemented auth",
			Questions: []Question{{ID: "q1", For: "frontend_developer", Question: "JWT or cookies?"}},
		},
	})
	require.NoError(t, err)

	_, err = s.Append(Message{
		Source: "frontend_developer",
		Kind:   KindAnswer,
		Answer: &AnswerPayload{QuestionID: "q1", AnswerText: "JWT", Author: "frontend_developer"},
	})
	require.NoError(t, err)

	ctx := s.ContextFor("frontend_developer", 0)
	assert.Contains(t, ctx, "backend_developer")
	assert.Contains(t, ctx, "JWT")
}

func TestSerializeLoadRoundTrip(t *testing.T) {
	s := New()
	_, err := s.Append(Message{Source: "system", Kind: KindSystem, System: &SystemPayload{Content: "hi", Level: SystemLevelInfo}})
	require.NoError(t, err)

	data, err := s.Serialize("session-1")
	require.NoError(t, err)

	reloaded, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, s.All(), reloaded.All())
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	_, err := Load([]byte(`{"session_id":"s","messages":[{"id":"x","kind":"system"},{"id":"x","kind":"system"}]}`))
	require.Error(t, err)
}

func TestSummaryStats(t *testing.T) {
	s := New()
	_, _ = s.Append(Message{
		Source: "a", Kind: KindPersonaWork,
		PersonaWork: &PersonaWorkPayload{
			Decisions: []Decision{{Decision: "use postgres"}},
			Questions: []Question{{ID: "q1", For: "b", Question: "why?"}},
			Concerns:  []string{"scaling"},
		},
	})
	_, _ = s.Append(Message{Source: "b", Kind: KindAnswer, Answer: &AnswerPayload{QuestionID: "q1", AnswerText: "because", Author: "b"}})

	stats := s.SummaryStats()
	assert.Equal(t, 2, stats.Messages)
	assert.Equal(t, 1, stats.Decisions)
	assert.Equal(t, 1, stats.Questions)
	assert.Equal(t, 1, stats.Answers)
	assert.Equal(t, 1, stats.Concerns)
}

func TestDistributedAppendLockMutualExclusion(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	lockA := NewDistributedAppendLock(client, "conv-1", time.Second)
	lockB := NewDistributedAppendLock(client, "conv-1", time.Second)

	require.NoError(t, lockA.Acquire(ctx))

	acquiredB := make(chan struct{})
	go func() {
		_ = lockB.Acquire(context.Background())
		close(acquiredB)
	}()

	select {
	case <-acquiredB:
		t.Fatal("lockB should not acquire while lockA holds the lock")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, lockA.Release(ctx))
	mr.FastForward(0)

	select {
	case <-acquiredB:
	case <-time.After(2 * time.Second):
		t.Fatal("lockB should acquire after lockA releases")
	}
}
