// Package service holds the thread business rules shared by both protocol
// adapters. All operations act on behalf of an authenticated owner; a thread
// held by another account is indistinguishable from one that does not exist.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"threadhub/internal/platform/metrics"
	"threadhub/internal/thread/models"
	"threadhub/internal/thread/store"
	derrors "threadhub/pkg/domain-errors"
	"threadhub/pkg/platform/sentinel"
)

const (
	// DefaultPageSize applies when a caller does not pick a limit.
	DefaultPageSize = 20
	// MaxPageSize caps page sizes from both adapters.
	MaxPageSize = 100
)

// Service orchestrates thread persistence.
type Service struct {
	threads store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(threads store.Store, opts ...Option) *Service {
	s := &Service{threads: threads, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateThread creates a thread with its initial participants in one atomic
// write.
func (s *Service) CreateThread(ctx context.Context, ownerID uuid.UUID, params models.ThreadCreate) (models.Thread, error) {
	if params.Title != nil && strings.TrimSpace(*params.Title) == "" {
		return models.Thread{}, derrors.New(derrors.CodeInvalidArgument, "title must not be blank")
	}
	for _, p := range params.Participants {
		if p.DisplayName != nil && strings.TrimSpace(*p.DisplayName) == "" {
			return models.Thread{}, derrors.New(derrors.CodeInvalidArgument, "participant display name must not be blank")
		}
	}

	thread, err := s.threads.CreateThread(ctx, ownerID, params)
	if err != nil {
		return models.Thread{}, derrors.Wrap(err, derrors.CodeInternal, "failed to create thread")
	}
	s.incrementThreadsCreated()
	return thread, nil
}

// ListThreads returns one page of the owner's threads, newest first, with the
// total count of matches.
func (s *Service) ListThreads(ctx context.Context, ownerID uuid.UUID, limit, offset int, filter models.ThreadFilter) (models.ThreadPage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	page, err := s.threads.ListThreads(ctx, ownerID, limit, offset, filter)
	if err != nil {
		return models.ThreadPage{}, derrors.Wrap(err, derrors.CodeInternal, "failed to list threads")
	}
	return page, nil
}

// GetThread returns one thread with participants and messages.
func (s *Service) GetThread(ctx context.Context, ownerID, threadID uuid.UUID) (models.Thread, error) {
	thread, err := s.threads.GetThread(ctx, ownerID, threadID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Thread{}, derrors.New(derrors.CodeNotFound, "thread not found")
		}
		return models.Thread{}, derrors.Wrap(err, derrors.CodeInternal, "failed to load thread")
	}
	return thread, nil
}

// UpdateThreadMetadata shallow-merges the patch into the thread metadata.
// Patch keys overwrite existing keys; absent keys survive.
func (s *Service) UpdateThreadMetadata(ctx context.Context, ownerID, threadID uuid.UUID, patch models.Metadata) (models.Thread, error) {
	thread, err := s.threads.UpdateThreadMetadata(ctx, ownerID, threadID, patch)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Thread{}, derrors.New(derrors.CodeNotFound, "thread not found")
		}
		return models.Thread{}, derrors.Wrap(err, derrors.CodeInternal, "failed to update thread metadata")
	}
	return thread, nil
}

// AppendMessage appends a message with its attachments in one atomic write.
func (s *Service) AppendMessage(ctx context.Context, ownerID, threadID uuid.UUID, params models.MessageCreate) (models.Message, error) {
	if strings.TrimSpace(params.Content) == "" {
		return models.Message{}, derrors.New(derrors.CodeInvalidArgument, "message content must not be empty")
	}
	for _, a := range params.Attachments {
		if strings.TrimSpace(a.URI) == "" {
			return models.Message{}, derrors.New(derrors.CodeInvalidArgument, "attachment uri must not be empty")
		}
	}

	message, err := s.threads.AppendMessage(ctx, ownerID, threadID, params)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Message{}, derrors.New(derrors.CodeNotFound, "thread not found")
		}
		return models.Message{}, derrors.Wrap(err, derrors.CodeInternal, "failed to append message")
	}
	s.incrementMessagesAppended()
	return message, nil
}

func (s *Service) incrementThreadsCreated() {
	if s.metrics != nil {
		s.metrics.ThreadsCreated.Inc()
	}
}

func (s *Service) incrementMessagesAppended() {
	if s.metrics != nil {
		s.metrics.MessagesAppended.Inc()
	}
}
