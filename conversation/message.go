// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package conversation implements the Conversation Store: an append-only
// typed-message history shared by all personas, with filter and
// context-build APIs. The conversation is a single-writer logical
// entity — append is the only mutation, serialized behind a mutex — and
// read-only snapshot views are handed to consumers; no caller ever
// shares a mutable handle into the backing slice.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates a Message's payload variant.
type Kind string

const (
	KindPersonaWork Kind = "persona-work"
	KindDiscussion  Kind = "discussion"
	KindSystem      Kind = "system"
	KindAnswer      Kind = "answer"
)

// Decision is one design decision recorded by a persona-work message.
type Decision struct {
	Decision     string   `json:"decision"`
	Rationale    string   `json:"rationale"`
	Alternatives []string `json:"alternatives,omitempty"`
	TradeOffs    []string `json:"trade_offs,omitempty"`
}

// Question is one question a persona raised, addressed to another persona.
type Question struct {
	ID      string `json:"id"`
	For     string `json:"for"`
	Question string `json:"question"`
	Context string `json:"context,omitempty"`
}

// Dependencies records what a persona's work depended on and unblocked.
type Dependencies struct {
	DependsOn  []string `json:"depends_on,omitempty"`
	ProvidesFor []string `json:"provides_for,omitempty"`
}

// PersonaWorkPayload is the Message payload for Kind == KindPersonaWork.
type PersonaWorkPayload struct {
	Summary      string              `json:"summary"`
	Decisions    []Decision          `json:"decisions,omitempty"`
	FilesCreated []string            `json:"files_created,omitempty"`
	Deliverables map[string][]string `json:"deliverables,omitempty"`
	Questions    []Question          `json:"questions,omitempty"`
	Assumptions  []string            `json:"assumptions,omitempty"`
	Concerns     []string            `json:"concerns,omitempty"`
	Dependencies Dependencies        `json:"dependencies,omitempty"`
}

// MessageType discriminates a discussion message's conversational role.
type MessageType string

const (
	MessageTypeDiscussion MessageType = "discussion"
	MessageTypeQuestion   MessageType = "question"
	MessageTypeProposal   MessageType = "proposal"
	MessageTypeConcern    MessageType = "concern"
)

// DiscussionPayload is the Message payload for Kind == KindDiscussion.
type DiscussionPayload struct {
	Content     string         `json:"content"`
	MessageType MessageType    `json:"message_type"`
	ReplyTo     *string        `json:"reply_to,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SystemLevel is the severity of a system notice.
type SystemLevel string

const (
	SystemLevelInfo    SystemLevel = "info"
	SystemLevelWarning SystemLevel = "warning"
	SystemLevelError   SystemLevel = "error"
)

// SystemPayload is the Message payload for Kind == KindSystem.
type SystemPayload struct {
	Content string      `json:"content"`
	Level   SystemLevel `json:"level"`
}

// AnswerPayload is the Message payload for Kind == KindAnswer.
type AnswerPayload struct {
	QuestionID string `json:"question_id"`
	AnswerText string `json:"answer_text"`
	Author     string `json:"author"`
}

// Message is one entry in the conversation log. Exactly one of the
// payload fields is populated, selected by Kind; unknown kinds (from a
// future schema version) survive round-trip via Raw.
type Message struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"` // persona id, or "system"
	Phase     string    `json:"phase"`
	CreatedAt time.Time `json:"created_at"`
	Kind      Kind      `json:"kind"`

	PersonaWork *PersonaWorkPayload `json:"persona_work,omitempty"`
	Discussion  *DiscussionPayload  `json:"discussion,omitempty"`
	System      *SystemPayload      `json:"system,omitempty"`
	Answer      *AnswerPayload      `json:"answer,omitempty"`

	// Raw preserves the original payload JSON for kinds this build of
	// the orchestrator does not recognize, so a round-trip never drops data.
	Raw map[string]any `json:"raw,omitempty"`
}

// NewID generates a new globally-unique message id.
func NewID() string {
	return uuid.NewString()
}
