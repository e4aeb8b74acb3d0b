package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadhub/internal/platform/metrics"
	"threadhub/internal/thread/models"
	"threadhub/internal/thread/store"
	derrors "threadhub/pkg/domain-errors"
)

func newService() (*Service, *store.MemoryStore) {
	mem := store.NewMemory()
	m := metrics.New(prometheus.NewRegistry())
	return New(mem, WithMetrics(m)), mem
}

func TestCreateThreadValidation(t *testing.T) {
	svc, _ := newService()
	ownerID := uuid.New()

	blank := "   "
	_, err := svc.CreateThread(context.Background(), ownerID, models.ThreadCreate{Title: &blank})
	assert.True(t, derrors.Is(err, derrors.CodeInvalidArgument))

	_, err = svc.CreateThread(context.Background(), ownerID, models.ThreadCreate{
		Participants: []models.ParticipantCreate{{DisplayName: &blank}},
	})
	assert.True(t, derrors.Is(err, derrors.CodeInvalidArgument))
}

func TestAppendMessageValidation(t *testing.T) {
	svc, _ := newService()
	ownerID := uuid.New()

	thread, err := svc.CreateThread(context.Background(), ownerID, models.ThreadCreate{})
	require.NoError(t, err)

	_, err = svc.AppendMessage(context.Background(), ownerID, thread.ID, models.MessageCreate{Content: "  "})
	assert.True(t, derrors.Is(err, derrors.CodeInvalidArgument))

	_, err = svc.AppendMessage(context.Background(), ownerID, thread.ID, models.MessageCreate{
		Content:     "hi",
		Attachments: []models.AttachmentCreate{{URI: ""}},
	})
	assert.True(t, derrors.Is(err, derrors.CodeInvalidArgument))
}

func TestAppendMessageUnknownThread(t *testing.T) {
	svc, _ := newService()

	_, err := svc.AppendMessage(context.Background(), uuid.New(), uuid.New(), models.MessageCreate{Content: "hi"})
	assert.True(t, derrors.Is(err, derrors.CodeNotFound))
}

func TestListThreadsClampsPageSize(t *testing.T) {
	svc, mem := newService()
	ownerID := uuid.New()

	for range MaxPageSize + 5 {
		_, err := mem.CreateThread(context.Background(), ownerID, models.ThreadCreate{})
		require.NoError(t, err)
	}

	page, err := svc.ListThreads(context.Background(), ownerID, 1000, 0, models.ThreadFilter{})
	require.NoError(t, err)
	assert.Len(t, page.Threads, MaxPageSize)
	assert.Equal(t, MaxPageSize+5, page.Total)

	page, err = svc.ListThreads(context.Background(), ownerID, 0, 0, models.ThreadFilter{})
	require.NoError(t, err)
	assert.Len(t, page.Threads, DefaultPageSize)
}

func TestGetThreadOtherOwnerLooksAbsent(t *testing.T) {
	svc, _ := newService()
	ownerID := uuid.New()

	thread, err := svc.CreateThread(context.Background(), ownerID, models.ThreadCreate{})
	require.NoError(t, err)

	_, err = svc.GetThread(context.Background(), uuid.New(), thread.ID)
	assert.True(t, derrors.Is(err, derrors.CodeNotFound))
}
