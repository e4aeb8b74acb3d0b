// Package models defines the conversation entities: threads, participants,
// time-ordered messages, and message attachments. Enumerations are closed
// string types carrying an unspecified sentinel; the Parse constructors
// normalize case once, at the storage or wire boundary, and land unmapped
// values on the sentinel rather than a normal member.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	derrors "threadhub/pkg/domain-errors"
)

// ThreadStatus is a thread's lifecycle state.
type ThreadStatus string

const (
	// ThreadStatusUnspecified is the sentinel an unmapped wire value lands
	// on. It never persists; adapters refuse it before the repository.
	ThreadStatusUnspecified ThreadStatus = "unspecified"

	ThreadStatusOpen   ThreadStatus = "open"
	ThreadStatusPaused ThreadStatus = "paused"
	ThreadStatusClosed ThreadStatus = "closed"
)

// ParseThreadStatus normalizes case through the closed table. Unmapped values
// map to ThreadStatusUnspecified together with an invalid-argument error,
// never to a normal member.
func ParseThreadStatus(s string) (ThreadStatus, error) {
	switch ThreadStatus(strings.ToLower(s)) {
	case ThreadStatusOpen:
		return ThreadStatusOpen, nil
	case ThreadStatusPaused:
		return ThreadStatusPaused, nil
	case ThreadStatusClosed:
		return ThreadStatusClosed, nil
	}
	return ThreadStatusUnspecified, derrors.New(derrors.CodeInvalidArgument, "invalid thread status: "+s)
}

// ParticipantRole identifies a participant's part in a conversation.
type ParticipantRole string

const (
	ParticipantRoleUnspecified ParticipantRole = "unspecified"

	ParticipantRoleUser  ParticipantRole = "user"
	ParticipantRoleAgent ParticipantRole = "agent"
	ParticipantRoleTool  ParticipantRole = "tool"
)

func ParseParticipantRole(s string) (ParticipantRole, error) {
	switch ParticipantRole(strings.ToLower(s)) {
	case ParticipantRoleUser:
		return ParticipantRoleUser, nil
	case ParticipantRoleAgent:
		return ParticipantRoleAgent, nil
	case ParticipantRoleTool:
		return ParticipantRoleTool, nil
	}
	return ParticipantRoleUnspecified, derrors.New(derrors.CodeInvalidArgument, "invalid participant role: "+s)
}

// MessageKind classifies message semantics.
type MessageKind string

const (
	MessageKindUnspecified MessageKind = "unspecified"

	MessageKindText     MessageKind = "text"
	MessageKindRich     MessageKind = "rich"
	MessageKindToolCall MessageKind = "tool_call"
)

func ParseMessageKind(s string) (MessageKind, error) {
	switch MessageKind(strings.ToLower(s)) {
	case MessageKindText:
		return MessageKindText, nil
	case MessageKindRich:
		return MessageKindRich, nil
	case MessageKindToolCall:
		return MessageKindToolCall, nil
	}
	return MessageKindUnspecified, derrors.New(derrors.CodeInvalidArgument, "invalid message kind: "+s)
}

// AttachmentKind classifies attachment payloads.
type AttachmentKind string

const (
	AttachmentKindUnspecified AttachmentKind = "unspecified"

	AttachmentKindFile  AttachmentKind = "file"
	AttachmentKindImage AttachmentKind = "image"
	AttachmentKindLink  AttachmentKind = "link"
)

func ParseAttachmentKind(s string) (AttachmentKind, error) {
	switch AttachmentKind(strings.ToLower(s)) {
	case AttachmentKindFile:
		return AttachmentKindFile, nil
	case AttachmentKindImage:
		return AttachmentKindImage, nil
	case AttachmentKindLink:
		return AttachmentKindLink, nil
	}
	return AttachmentKindUnspecified, derrors.New(derrors.CodeInvalidArgument, "invalid attachment kind: "+s)
}

// Metadata is the free-form attribute map carried by every entity. At the
// storage boundary it always materializes as a plain string-keyed map of
// JSON-compatible values; no driver or schema artifact may leak into it.
type Metadata map[string]any

// Merge returns the shallow merge of m and patch: patch keys win, untouched
// keys survive, neither input is mutated.
func (m Metadata) Merge(patch Metadata) Metadata {
	merged := make(Metadata, len(m)+len(patch))
	for k, v := range m {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

// Thread is a conversation container owned by exactly one account.
type Thread struct {
	ID           uuid.UUID     `json:"id"`
	OwnerID      uuid.UUID     `json:"-"`
	Title        *string       `json:"title"`
	Status       ThreadStatus  `json:"status"`
	Summary      *string       `json:"summary"`
	Metadata     Metadata      `json:"metadata"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Participants []Participant `json:"participants"`
	Messages     []Message     `json:"messages"`
}

// Participant is a named party attributed to messages within one thread.
type Participant struct {
	ID          uuid.UUID       `json:"id"`
	ThreadID    uuid.UUID       `json:"thread_id"`
	Role        ParticipantRole `json:"role"`
	DisplayName *string         `json:"display_name"`
	Metadata    Metadata        `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Message is one ordered utterance within a thread. ParticipantID is nil when
// the message is unattributed or its participant was deleted.
type Message struct {
	ID            uuid.UUID    `json:"id"`
	ThreadID      uuid.UUID    `json:"thread_id"`
	ParticipantID *uuid.UUID   `json:"participant_id"`
	Kind          MessageKind  `json:"kind"`
	Content       string       `json:"content"`
	Metadata      Metadata     `json:"metadata"`
	CreatedAt     time.Time    `json:"created_at"`
	Attachments   []Attachment `json:"attachments"`
}

// Attachment is a typed external reference bound to one message.
type Attachment struct {
	ID          uuid.UUID      `json:"id"`
	MessageID   uuid.UUID      `json:"message_id"`
	Kind        AttachmentKind `json:"kind"`
	URI         string         `json:"uri"`
	ContentType *string        `json:"content_type"`
	Metadata    Metadata       `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ParticipantCreate describes one initial participant of a new thread.
type ParticipantCreate struct {
	Role        ParticipantRole
	DisplayName *string
	Metadata    Metadata
}

// ThreadCreate describes a new thread. The thread row and every initial
// participant row commit in one transaction.
type ThreadCreate struct {
	Title        *string
	Summary      *string
	Status       ThreadStatus
	Metadata     Metadata
	Participants []ParticipantCreate
}

// AttachmentCreate describes one attachment of a new message.
type AttachmentCreate struct {
	Kind        AttachmentKind
	URI         string
	ContentType *string
	Metadata    Metadata
}

// MessageCreate describes a message to append. The message row and every
// attachment row commit in one transaction.
type MessageCreate struct {
	ParticipantID *uuid.UUID
	Kind          MessageKind
	Content       string
	Metadata      Metadata
	Attachments   []AttachmentCreate
}

// ThreadFilter narrows ListThreads. Filters compose with logical AND.
type ThreadFilter struct {
	ParticipantID *uuid.UUID
	Status        *ThreadStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// ThreadPage is one page of threads plus the filter-wide total, which is
// computed independently of pagination.
type ThreadPage struct {
	Threads []Thread `json:"threads"`
	Total   int      `json:"total"`
}
