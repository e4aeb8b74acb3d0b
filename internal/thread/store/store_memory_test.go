package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadhub/internal/thread/models"
	"threadhub/pkg/platform/sentinel"
)

func strPtr(s string) *string { return &s }

func newThread(t *testing.T, s *MemoryStore, ownerID uuid.UUID, params models.ThreadCreate) models.Thread {
	t.Helper()
	thread, err := s.CreateThread(context.Background(), ownerID, params)
	require.NoError(t, err)
	return thread
}

func TestCreateThreadDefaults(t *testing.T) {
	s := NewMemory()
	ownerID := uuid.New()

	thread := newThread(t, s, ownerID, models.ThreadCreate{
		Title: strPtr("support case"),
		Participants: []models.ParticipantCreate{
			{DisplayName: strPtr("Alice")},
			{Role: models.ParticipantRoleAgent, DisplayName: strPtr("Bot")},
		},
	})

	assert.Equal(t, models.ThreadStatusOpen, thread.Status)
	assert.NotNil(t, thread.Metadata)
	require.Len(t, thread.Participants, 2)
	assert.Equal(t, models.ParticipantRoleUser, thread.Participants[0].Role)
	assert.Equal(t, models.ParticipantRoleAgent, thread.Participants[1].Role)
	assert.Equal(t, thread.ID, thread.Participants[0].ThreadID)
	assert.Empty(t, thread.Messages)
}

func TestOwnerIsolation(t *testing.T) {
	s := NewMemory()
	owner := uuid.New()
	stranger := uuid.New()

	thread := newThread(t, s, owner, models.ThreadCreate{})

	t.Run("get by stranger looks absent", func(t *testing.T) {
		_, err := s.GetThread(context.Background(), stranger, thread.ID)
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("metadata update by stranger looks absent", func(t *testing.T) {
		_, err := s.UpdateThreadMetadata(context.Background(), stranger, thread.ID, models.Metadata{"k": "v"})
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("append by stranger looks absent", func(t *testing.T) {
		_, err := s.AppendMessage(context.Background(), stranger, thread.ID, models.MessageCreate{Content: "hi"})
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("list never leaks across owners", func(t *testing.T) {
		page, err := s.ListThreads(context.Background(), stranger, 10, 0, models.ThreadFilter{})
		require.NoError(t, err)
		assert.Empty(t, page.Threads)
		assert.Zero(t, page.Total)
	})
}

func TestListThreadsOrderingAndPagination(t *testing.T) {
	s := NewMemory()
	ownerID := uuid.New()

	var ids []uuid.UUID
	for range 5 {
		ids = append(ids, newThread(t, s, ownerID, models.ThreadCreate{}).ID)
	}

	page, err := s.ListThreads(context.Background(), ownerID, 2, 0, models.ThreadFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Threads, 2)
	// newest first
	assert.Equal(t, ids[4], page.Threads[0].ID)
	assert.Equal(t, ids[3], page.Threads[1].ID)

	page, err = s.ListThreads(context.Background(), ownerID, 2, 4, models.ThreadFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Threads, 1)
	assert.Equal(t, ids[0], page.Threads[0].ID)

	page, err = s.ListThreads(context.Background(), ownerID, 2, 10, models.ThreadFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Empty(t, page.Threads)
}

func TestListThreadsFiltersCompose(t *testing.T) {
	s := NewMemory()
	ownerID := uuid.New()

	closed := models.ThreadStatusClosed
	open := models.ThreadStatusOpen

	withParticipant := newThread(t, s, ownerID, models.ThreadCreate{
		Status:       closed,
		Participants: []models.ParticipantCreate{{DisplayName: strPtr("Alice")}},
	})
	newThread(t, s, ownerID, models.ThreadCreate{Status: closed})
	newThread(t, s, ownerID, models.ThreadCreate{Status: open})

	participantID := withParticipant.Participants[0].ID

	page, err := s.ListThreads(context.Background(), ownerID, 10, 0, models.ThreadFilter{
		Status:        &closed,
		ParticipantID: &participantID,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Threads, 1)
	assert.Equal(t, withParticipant.ID, page.Threads[0].ID)

	unknown := uuid.New()
	page, err = s.ListThreads(context.Background(), ownerID, 10, 0, models.ThreadFilter{
		ParticipantID: &unknown,
	})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestListThreadsTimeWindow(t *testing.T) {
	s := NewMemory()
	ownerID := uuid.New()

	early := newThread(t, s, ownerID, models.ThreadCreate{})
	late := newThread(t, s, ownerID, models.ThreadCreate{})

	cutoff := early.CreatedAt.Add(time.Nanosecond)
	page, err := s.ListThreads(context.Background(), ownerID, 10, 0, models.ThreadFilter{
		CreatedAfter: &cutoff,
	})
	require.NoError(t, err)
	require.Len(t, page.Threads, 1)
	assert.Equal(t, late.ID, page.Threads[0].ID)

	page, err = s.ListThreads(context.Background(), ownerID, 10, 0, models.ThreadFilter{
		CreatedBefore: &cutoff,
	})
	require.NoError(t, err)
	require.Len(t, page.Threads, 1)
	assert.Equal(t, early.ID, page.Threads[0].ID)
}

func TestUpdateThreadMetadataShallowMerge(t *testing.T) {
	s := NewMemory()
	ownerID := uuid.New()

	thread := newThread(t, s, ownerID, models.ThreadCreate{
		Metadata: models.Metadata{"keep": "original", "replace": "old"},
	})

	updated, err := s.UpdateThreadMetadata(context.Background(), ownerID, thread.ID, models.Metadata{
		"replace": "new",
		"added":   float64(1),
	})
	require.NoError(t, err)

	assert.Equal(t, "original", updated.Metadata["keep"])
	assert.Equal(t, "new", updated.Metadata["replace"])
	assert.Equal(t, float64(1), updated.Metadata["added"])
	assert.True(t, updated.UpdatedAt.After(thread.UpdatedAt))
}

func TestAppendMessage(t *testing.T) {
	s := NewMemory()
	ownerID := uuid.New()

	thread := newThread(t, s, ownerID, models.ThreadCreate{
		Participants: []models.ParticipantCreate{{DisplayName: strPtr("Alice")}},
	})
	participantID := thread.Participants[0].ID

	message, err := s.AppendMessage(context.Background(), ownerID, thread.ID, models.MessageCreate{
		ParticipantID: &participantID,
		Content:       "hello",
		Attachments: []models.AttachmentCreate{
			{Kind: models.AttachmentKindImage, URI: "https://cdn.example.com/a.png"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, models.MessageKindText, message.Kind)
	assert.Equal(t, thread.ID, message.ThreadID)
	require.Len(t, message.Attachments, 1)
	assert.Equal(t, message.ID, message.Attachments[0].MessageID)

	reloaded, err := s.GetThread(context.Background(), ownerID, thread.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Messages, 1)
	assert.True(t, reloaded.UpdatedAt.After(thread.UpdatedAt))
}

func TestMessagesOrderedByCreation(t *testing.T) {
	s := NewMemory()
	ownerID := uuid.New()
	thread := newThread(t, s, ownerID, models.ThreadCreate{})

	for _, content := range []string{"first", "second", "third"} {
		_, err := s.AppendMessage(context.Background(), ownerID, thread.ID, models.MessageCreate{Content: content})
		require.NoError(t, err)
	}

	reloaded, err := s.GetThread(context.Background(), ownerID, thread.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Messages, 3)
	assert.Equal(t, "first", reloaded.Messages[0].Content)
	assert.Equal(t, "second", reloaded.Messages[1].Content)
	assert.Equal(t, "third", reloaded.Messages[2].Content)
}

func TestReturnedThreadIsACopy(t *testing.T) {
	s := NewMemory()
	ownerID := uuid.New()

	thread := newThread(t, s, ownerID, models.ThreadCreate{
		Metadata: models.Metadata{"k": "v"},
	})
	thread.Metadata["k"] = "mutated"

	reloaded, err := s.GetThread(context.Background(), ownerID, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, "v", reloaded.Metadata["k"])
}
