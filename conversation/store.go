// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package conversation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	maerr "maestro/platform/shared/errors"
	"maestro/platform/shared/logger"
)

// Mirror persists every appended Message for durability/replay. JSONLMirror
// and MongoMirror are interchangeable implementations; a Store works
// with either, or none (in-memory only).
type Mirror interface {
	Append(m Message) error
}

// Store is the append-only, in-memory Conversation log. All mutation
// goes through Append, which is serialized by mu — the conversation's
// logical single-writer queue; Filter/ContextFor take a read lock and
// return copies, never a handle into the backing slice.
type Store struct {
	mu      sync.Mutex
	rw      sync.RWMutex
	messages []Message
	ids     map[string]bool
	mirror  Mirror
	log     *logger.Logger
}

// New returns an empty Store with no durable mirror.
func New() *Store {
	return &Store{
		ids: make(map[string]bool),
		log: logger.New("conversation"),
	}
}

// NewWithMirror returns a Store that writes every appended Message
// through mirror in addition to keeping it in memory.
func NewWithMirror(mirror Mirror) *Store {
	s := New()
	s.mirror = mirror
	return s
}

// Append assigns an id and timestamp to m if absent, then appends it.
// Serialized: only one Append runs at a time, matching the conversation's
// "logical single-writer queue" invariant from the concurrency model.
func (s *Store) Append(m Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	s.rw.RLock()
	exists := s.ids[m.ID]
	s.rw.RUnlock()
	if exists {
		return "", maerr.Newf(maerr.KindValidation, "duplicate message id %q", m.ID)
	}

	if s.mirror != nil {
		if err := s.mirror.Append(m); err != nil {
			return "", maerr.Wrap(maerr.KindInternal, err, "failed to mirror message")
		}
	}

	s.rw.Lock()
	s.messages = append(s.messages, m)
	s.ids[m.ID] = true
	s.rw.Unlock()

	return m.ID, nil
}

// Filter is the query shape accepted by Filter.
type Filter struct {
	Source string
	Phase  string
	Kind   Kind
	Since  time.Time
	Limit  int
}

// Filter returns messages matching f, chronological by CreatedAt (the
// order is already a total order by construction of Append).
func (s *Store) Filter(f Filter) []Message {
	s.rw.RLock()
	defer s.rw.RUnlock()

	var out []Message
	for _, m := range s.messages {
		if f.Source != "" && m.Source != f.Source {
			continue
		}
		if f.Phase != "" && m.Phase != f.Phase {
			continue
		}
		if f.Kind != "" && m.Kind != f.Kind {
			continue
		}
		if !f.Since.IsZero() && !m.CreatedAt.After(f.Since) {
			continue
		}
		out = append(out, m)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// ContextFor builds a persona-focused context string: the most recent
// persona-work messages from other personas (full serialization), every
// question addressed to personaID, pending answers, and trailing system
// notices. maxMessages caps how many persona-work messages are included
// (0 = no cap).
func (s *Store) ContextFor(personaID string, maxMessages int) string {
	s.rw.RLock()
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	s.rw.RUnlock()

	var b strings.Builder

	b.WriteString("## Recent work from other personas\n")
	count := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Kind != KindPersonaWork || m.Source == personaID {
			continue
		}
		work, err := json.Marshal(m.PersonaWork)
		if err != nil {
			work = []byte(m.PersonaWork.Summary)
		}
		fmt.Fprintf(&b, "- [%s] %s\n", m.Source, work)
		count++
		if maxMessages > 0 && count >= maxMessages {
			break
		}
	}

	b.WriteString("\n## Questions addressed to you\n")
	answered := make(map[string]bool)
	for _, m := range msgs {
		if m.Kind == KindAnswer {
			answered[m.Answer.QuestionID] = true
		}
	}
	for _, m := range msgs {
		if m.Kind != KindPersonaWork {
			continue
		}
		for _, q := range m.PersonaWork.Questions {
			if q.For != personaID {
				continue
			}
			status := "pending"
			if answered[q.ID] {
				status = "answered"
			}
			fmt.Fprintf(&b, "- (%s) %s: %s\n", status, q.ID, q.Question)
		}
	}

	b.WriteString("\n## Answers to your questions\n")
	for _, m := range msgs {
		if m.Kind == KindAnswer {
			fmt.Fprintf(&b, "- %s: %s\n", m.Answer.QuestionID, m.Answer.AnswerText)
		}
	}

	b.WriteString("\n## System notices\n")
	for _, m := range msgs {
		if m.Kind == KindSystem {
			fmt.Fprintf(&b, "- [%s] %s\n", m.System.Level, m.System.Content)
		}
	}

	return b.String()
}

// SummaryStats counts messages, decisions, questions, answers, and concerns.
type SummaryStats struct {
	Messages  int
	Decisions int
	Questions int
	Answers   int
	Concerns  int
}

// SummaryStats tallies the conversation's content.
func (s *Store) SummaryStats() SummaryStats {
	s.rw.RLock()
	defer s.rw.RUnlock()

	var stats SummaryStats
	stats.Messages = len(s.messages)
	for _, m := range s.messages {
		switch m.Kind {
		case KindPersonaWork:
			stats.Decisions += len(m.PersonaWork.Decisions)
			stats.Questions += len(m.PersonaWork.Questions)
			stats.Concerns += len(m.PersonaWork.Concerns)
		case KindAnswer:
			stats.Answers++
		}
	}
	return stats
}

// All returns every message in chronological order, for dump/round-trip.
func (s *Store) All() []Message {
	s.rw.RLock()
	defer s.rw.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
