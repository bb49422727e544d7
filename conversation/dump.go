// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package conversation

import (
	"encoding/json"
	"fmt"

	maerr "maestro/platform/shared/errors"
)

// Dump is the single JSON object conversation dumps serialize to:
// {session_id, messages:[...]}.
type Dump struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

// Serialize renders the conversation as a Dump. Schema-tagged per
// message Kind so unknown kinds (Raw) survive an unmarshal by a future
// schema version without loss.
func (s *Store) Serialize(sessionID string) ([]byte, error) {
	dump := Dump{SessionID: sessionID, Messages: s.All()}
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return nil, maerr.Wrap(maerr.KindInternal, err, "failed to serialize conversation")
	}
	return data, nil
}

// Load builds a new Store from the contents of a previously
// Serialize'd dump, preserving ids, timestamps, and kind-specific
// payloads exactly (the round-trip invariant from the testable
// properties list).
func Load(data []byte) (*Store, error) {
	var dump Dump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, maerr.Wrap(maerr.KindValidation, err, "failed to parse conversation dump")
	}

	s := New()
	seen := make(map[string]bool, len(dump.Messages))
	for _, m := range dump.Messages {
		if m.ID == "" {
			return nil, maerr.New(maerr.KindValidation, "conversation dump contains a message with no id")
		}
		if seen[m.ID] {
			return nil, maerr.Newf(maerr.KindValidation, "conversation dump contains duplicate id %q", m.ID)
		}
		seen[m.ID] = true
	}

	s.messages = dump.Messages
	s.ids = seen
	return s, nil
}

func (s *Store) String() string {
	return fmt.Sprintf("conversation.Store(%d messages)", len(s.messages))
}
