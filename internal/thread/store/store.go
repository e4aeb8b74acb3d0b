// Package store persists threads, participants, messages, and attachments.
//
// Every operation takes the owner id as an explicit first-class parameter and
// scopes the query by it; a thread owned by someone else is indistinguishable
// from one that does not exist. Multi-row writes (thread+participants,
// message+attachments) commit in a single transaction.
package store

import (
	"context"

	"github.com/google/uuid"

	"threadhub/internal/thread/models"
)

// Store is the only component permitted to touch thread storage.
type Store interface {
	// CreateThread persists a thread and its initial participants atomically.
	CreateThread(ctx context.Context, ownerID uuid.UUID, params models.ThreadCreate) (models.Thread, error)

	// ListThreads returns one newest-first page plus the filter-wide total.
	// The total is computed independently of limit/offset. The store does not
	// clamp limit; adapters do.
	ListThreads(ctx context.Context, ownerID uuid.UUID, limit, offset int, filter models.ThreadFilter) (models.ThreadPage, error)

	// GetThread loads a thread with all participants and all messages
	// (ascending by creation time, each with its attachments). Returns
	// sentinel.ErrNotFound when the thread is absent or owned by another
	// account.
	GetThread(ctx context.Context, ownerID, threadID uuid.UUID) (models.Thread, error)

	// UpdateThreadMetadata shallow-merges patch into the stored metadata and
	// refreshes the updated timestamp. ErrNotFound rule as GetThread.
	UpdateThreadMetadata(ctx context.Context, ownerID, threadID uuid.UUID, patch models.Metadata) (models.Thread, error)

	// AppendMessage persists a message and its attachments atomically and
	// bumps the thread's updated timestamp. ErrNotFound rule as GetThread.
	AppendMessage(ctx context.Context, ownerID, threadID uuid.UUID, params models.MessageCreate) (models.Message, error)
}
