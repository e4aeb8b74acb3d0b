package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"threadhub/internal/thread/models"
	"threadhub/pkg/platform/sentinel"
)

// MemoryStore is an in-memory Store used by tests and local development. It
// mirrors the PostgreSQL semantics: owner scoping, newest-first ordering,
// shallow metadata merge, and cascade-shaped nesting.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[uuid.UUID]models.Thread
	now     func() time.Time
	seq     int64
}

// NewMemory constructs an empty in-memory thread store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		threads: make(map[uuid.UUID]models.Thread),
		now:     time.Now,
	}
}

// tick returns a strictly increasing timestamp so creation order stays total
// even when the clock does not advance between calls.
func (s *MemoryStore) tick() time.Time {
	s.seq++
	return s.now().UTC().Add(time.Duration(s.seq) * time.Microsecond)
}

func (s *MemoryStore) CreateThread(_ context.Context, ownerID uuid.UUID, params models.ThreadCreate) (models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := params.Status
	if status == "" {
		status = models.ThreadStatusOpen
	}
	now := s.tick()
	thread := models.Thread{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		Title:        params.Title,
		Status:       status,
		Summary:      params.Summary,
		Metadata:     cloneMetadata(params.Metadata),
		CreatedAt:    now,
		UpdatedAt:    now,
		Participants: []models.Participant{},
		Messages:     []models.Message{},
	}
	for _, p := range params.Participants {
		role := p.Role
		if role == "" {
			role = models.ParticipantRoleUser
		}
		thread.Participants = append(thread.Participants, models.Participant{
			ID:          uuid.New(),
			ThreadID:    thread.ID,
			Role:        role,
			DisplayName: p.DisplayName,
			Metadata:    cloneMetadata(p.Metadata),
			CreatedAt:   now,
		})
	}

	s.threads[thread.ID] = thread
	return cloneThread(thread), nil
}

func (s *MemoryStore) ListThreads(_ context.Context, ownerID uuid.UUID, limit, offset int, filter models.ThreadFilter) (models.ThreadPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []models.Thread{}
	for _, thread := range s.threads {
		if thread.OwnerID != ownerID || !matchesFilter(thread, filter) {
			continue
		}
		matched = append(matched, thread)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= len(matched) {
		return models.ThreadPage{Threads: []models.Thread{}, Total: total}, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}

	page := make([]models.Thread, 0, len(matched))
	for _, thread := range matched {
		page = append(page, cloneThread(thread))
	}
	return models.ThreadPage{Threads: page, Total: total}, nil
}

func matchesFilter(thread models.Thread, filter models.ThreadFilter) bool {
	if filter.Status != nil && thread.Status != *filter.Status {
		return false
	}
	if filter.CreatedAfter != nil && thread.CreatedAt.Before(*filter.CreatedAfter) {
		return false
	}
	if filter.CreatedBefore != nil && thread.CreatedAt.After(*filter.CreatedBefore) {
		return false
	}
	if filter.ParticipantID != nil {
		found := false
		for _, p := range thread.Participants {
			if p.ID == *filter.ParticipantID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *MemoryStore) GetThread(_ context.Context, ownerID, threadID uuid.UUID) (models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread, ok := s.threads[threadID]
	if !ok || thread.OwnerID != ownerID {
		return models.Thread{}, sentinel.ErrNotFound
	}
	return cloneThread(thread), nil
}

func (s *MemoryStore) UpdateThreadMetadata(_ context.Context, ownerID, threadID uuid.UUID, patch models.Metadata) (models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, ok := s.threads[threadID]
	if !ok || thread.OwnerID != ownerID {
		return models.Thread{}, sentinel.ErrNotFound
	}
	thread.Metadata = thread.Metadata.Merge(patch)
	thread.UpdatedAt = s.tick()
	s.threads[threadID] = thread
	return cloneThread(thread), nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, ownerID, threadID uuid.UUID, params models.MessageCreate) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, ok := s.threads[threadID]
	if !ok || thread.OwnerID != ownerID {
		return models.Message{}, sentinel.ErrNotFound
	}

	kind := params.Kind
	if kind == "" {
		kind = models.MessageKindText
	}
	now := s.tick()
	message := models.Message{
		ID:            uuid.New(),
		ThreadID:      threadID,
		ParticipantID: params.ParticipantID,
		Kind:          kind,
		Content:       params.Content,
		Metadata:      cloneMetadata(params.Metadata),
		CreatedAt:     now,
		Attachments:   []models.Attachment{},
	}
	for _, a := range params.Attachments {
		attachmentKind := a.Kind
		if attachmentKind == "" {
			attachmentKind = models.AttachmentKindFile
		}
		message.Attachments = append(message.Attachments, models.Attachment{
			ID:          uuid.New(),
			MessageID:   message.ID,
			Kind:        attachmentKind,
			URI:         a.URI,
			ContentType: a.ContentType,
			Metadata:    cloneMetadata(a.Metadata),
			CreatedAt:   now,
		})
	}

	thread.Messages = append(thread.Messages, message)
	thread.UpdatedAt = now
	s.threads[threadID] = thread
	return cloneMessage(message), nil
}

func cloneMetadata(m models.Metadata) models.Metadata {
	clone := make(models.Metadata, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

func cloneThread(t models.Thread) models.Thread {
	clone := t
	clone.Metadata = cloneMetadata(t.Metadata)
	clone.Participants = append([]models.Participant(nil), t.Participants...)
	if clone.Participants == nil {
		clone.Participants = []models.Participant{}
	}
	clone.Messages = make([]models.Message, 0, len(t.Messages))
	for _, m := range t.Messages {
		clone.Messages = append(clone.Messages, cloneMessage(m))
	}
	return clone
}

func cloneMessage(m models.Message) models.Message {
	clone := m
	clone.Metadata = cloneMetadata(m.Metadata)
	clone.Attachments = append([]models.Attachment(nil), m.Attachments...)
	if clone.Attachments == nil {
		clone.Attachments = []models.Attachment{}
	}
	return clone
}
