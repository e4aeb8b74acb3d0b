//go:build integration

package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"threadhub/internal/schema"
	"threadhub/internal/thread/models"
	"threadhub/internal/thread/store"
	"threadhub/pkg/platform/sentinel"
	"threadhub/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	db      *sql.DB
	store   *store.PostgresStore
	ownerID uuid.UUID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.db = containers.StartPostgres(s.T())
	err := schema.Migrate(context.Background(), s.db, slog.New(slog.DiscardHandler))
	s.Require().NoError(err)
	s.store = store.NewPostgres(s.db)
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.db.Exec(`TRUNCATE users, threads CASCADE`)
	s.Require().NoError(err)
	s.ownerID = s.createUser("owner@example.com")
}

// createUser satisfies the threads ownership foreign key.
func (s *PostgresStoreSuite) createUser(email string) uuid.UUID {
	id := uuid.New()
	_, err := s.db.Exec(`INSERT INTO users (id, email) VALUES ($1, $2)`, id, email)
	s.Require().NoError(err)
	return id
}

func strPtr(v string) *string { return &v }

func (s *PostgresStoreSuite) TestCreateAndGetRoundTrip() {
	ctx := context.Background()

	created, err := s.store.CreateThread(ctx, s.ownerID, models.ThreadCreate{
		Title:    strPtr("support case"),
		Metadata: models.Metadata{"channel": "web"},
		Participants: []models.ParticipantCreate{
			{Role: models.ParticipantRoleUser, DisplayName: strPtr("Ada")},
			{Role: models.ParticipantRoleAgent},
		},
	})
	s.Require().NoError(err)
	s.Equal(models.ThreadStatusOpen, created.Status)
	s.Len(created.Participants, 2)

	loaded, err := s.store.GetThread(ctx, s.ownerID, created.ID)
	s.Require().NoError(err)
	s.Equal(created.ID, loaded.ID)
	s.Equal("support case", *loaded.Title)
	s.Equal("web", loaded.Metadata["channel"])
	s.Len(loaded.Participants, 2)
	s.Empty(loaded.Messages)
}

func (s *PostgresStoreSuite) TestOwnerIsolation() {
	ctx := context.Background()
	stranger := uuid.New()

	created, err := s.store.CreateThread(ctx, s.ownerID, models.ThreadCreate{Title: strPtr("mine")})
	s.Require().NoError(err)

	_, err = s.store.GetThread(ctx, stranger, created.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.UpdateThreadMetadata(ctx, stranger, created.ID, models.Metadata{"k": "v"})
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.AppendMessage(ctx, stranger, created.ID, models.MessageCreate{Content: "hi"})
	s.ErrorIs(err, sentinel.ErrNotFound)

	page, err := s.store.ListThreads(ctx, stranger, 10, 0, models.ThreadFilter{})
	s.Require().NoError(err)
	s.Empty(page.Threads)
	s.Zero(page.Total)
}

func (s *PostgresStoreSuite) TestListPaginationAndTotal() {
	ctx := context.Background()

	ids := make([]uuid.UUID, 0, 5)
	for i := 0; i < 5; i++ {
		created, err := s.store.CreateThread(ctx, s.ownerID, models.ThreadCreate{})
		s.Require().NoError(err)
		ids = append(ids, created.ID)
		// created_at has microsecond resolution; keep orderings distinct.
		time.Sleep(2 * time.Millisecond)
	}

	page, err := s.store.ListThreads(ctx, s.ownerID, 2, 0, models.ThreadFilter{})
	s.Require().NoError(err)
	s.Equal(5, page.Total)
	s.Require().Len(page.Threads, 2)
	s.Equal(ids[4], page.Threads[0].ID)
	s.Equal(ids[3], page.Threads[1].ID)

	page, err = s.store.ListThreads(ctx, s.ownerID, 2, 4, models.ThreadFilter{})
	s.Require().NoError(err)
	s.Equal(5, page.Total)
	s.Require().Len(page.Threads, 1)
	s.Equal(ids[0], page.Threads[0].ID)
}

func (s *PostgresStoreSuite) TestListFiltersCompose() {
	ctx := context.Background()

	closed := models.ThreadStatusClosed
	match, err := s.store.CreateThread(ctx, s.ownerID, models.ThreadCreate{
		Status:       closed,
		Participants: []models.ParticipantCreate{{Role: models.ParticipantRoleAgent}},
	})
	s.Require().NoError(err)
	_, err = s.store.CreateThread(ctx, s.ownerID, models.ThreadCreate{Status: closed})
	s.Require().NoError(err)
	_, err = s.store.CreateThread(ctx, s.ownerID, models.ThreadCreate{
		Participants: []models.ParticipantCreate{{Role: models.ParticipantRoleAgent}},
	})
	s.Require().NoError(err)

	participantID := match.Participants[0].ID
	page, err := s.store.ListThreads(ctx, s.ownerID, 10, 0, models.ThreadFilter{
		Status:        &closed,
		ParticipantID: &participantID,
	})
	s.Require().NoError(err)
	s.Equal(1, page.Total)
	s.Require().Len(page.Threads, 1)
	s.Equal(match.ID, page.Threads[0].ID)
}

func (s *PostgresStoreSuite) TestUpdateMetadataShallowMerge() {
	ctx := context.Background()

	created, err := s.store.CreateThread(ctx, s.ownerID, models.ThreadCreate{
		Metadata: models.Metadata{"keep": "old", "replace": "old"},
	})
	s.Require().NoError(err)

	updated, err := s.store.UpdateThreadMetadata(ctx, s.ownerID, created.ID, models.Metadata{
		"replace": "new",
		"added":   "value",
	})
	s.Require().NoError(err)
	s.Equal("old", updated.Metadata["keep"])
	s.Equal("new", updated.Metadata["replace"])
	s.Equal("value", updated.Metadata["added"])
	s.True(updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))
}

// TestFailedAppendLeavesNoRows forces a failure inside the append transaction
// with a participant id that violates the foreign key, then checks that
// nothing from the call became visible.
func (s *PostgresStoreSuite) TestFailedAppendLeavesNoRows() {
	ctx := context.Background()

	created, err := s.store.CreateThread(ctx, s.ownerID, models.ThreadCreate{})
	s.Require().NoError(err)

	bogus := uuid.New()
	_, err = s.store.AppendMessage(ctx, s.ownerID, created.ID, models.MessageCreate{
		ParticipantID: &bogus,
		Content:       "never lands",
		Attachments:   []models.AttachmentCreate{{URI: "https://example.com/x"}},
	})
	s.Require().Error(err)

	loaded, err := s.store.GetThread(ctx, s.ownerID, created.ID)
	s.Require().NoError(err)
	s.Empty(loaded.Messages)
	s.True(loaded.UpdatedAt.Equal(created.UpdatedAt))
}

func (s *PostgresStoreSuite) TestAppendMessageWithAttachments() {
	ctx := context.Background()

	created, err := s.store.CreateThread(ctx, s.ownerID, models.ThreadCreate{
		Participants: []models.ParticipantCreate{{Role: models.ParticipantRoleUser}},
	})
	s.Require().NoError(err)
	participantID := created.Participants[0].ID

	first, err := s.store.AppendMessage(ctx, s.ownerID, created.ID, models.MessageCreate{
		ParticipantID: &participantID,
		Content:       "see attached",
		Attachments: []models.AttachmentCreate{
			{Kind: models.AttachmentKindImage, URI: "https://cdn.example.com/a.png", ContentType: strPtr("image/png")},
			{Kind: models.AttachmentKindLink, URI: "https://example.com"},
		},
	})
	s.Require().NoError(err)
	s.Len(first.Attachments, 2)
	s.Equal(models.MessageKindText, first.Kind)

	time.Sleep(2 * time.Millisecond)
	second, err := s.store.AppendMessage(ctx, s.ownerID, created.ID, models.MessageCreate{Content: "follow-up"})
	s.Require().NoError(err)

	loaded, err := s.store.GetThread(ctx, s.ownerID, created.ID)
	s.Require().NoError(err)
	s.Require().Len(loaded.Messages, 2)
	s.Equal(first.ID, loaded.Messages[0].ID)
	s.Equal(second.ID, loaded.Messages[1].ID)
	s.Require().Len(loaded.Messages[0].Attachments, 2)
	s.Equal(first.ID, loaded.Messages[0].Attachments[0].MessageID)
	s.True(loaded.UpdatedAt.After(created.UpdatedAt))
}

func (s *PostgresStoreSuite) TestAttachmentsStayOnEarlierMessages() {
	ctx := context.Background()

	created, err := s.store.CreateThread(ctx, s.ownerID, models.ThreadCreate{})
	s.Require().NoError(err)

	appended := make([]models.Message, 0, 6)
	for i := 0; i < 6; i++ {
		params := models.MessageCreate{Content: fmt.Sprintf("message %d", i)}
		if i%2 == 0 {
			params.Attachments = []models.AttachmentCreate{
				{URI: fmt.Sprintf("https://cdn.example.com/%d.bin", i)},
			}
		}
		msg, err := s.store.AppendMessage(ctx, s.ownerID, created.ID, params)
		s.Require().NoError(err)
		appended = append(appended, msg)
		time.Sleep(2 * time.Millisecond)
	}

	loaded, err := s.store.GetThread(ctx, s.ownerID, created.ID)
	s.Require().NoError(err)
	s.Require().Len(loaded.Messages, 6)
	for i, msg := range loaded.Messages {
		s.Equal(appended[i].ID, msg.ID)
		if i%2 == 0 {
			s.Require().Len(msg.Attachments, 1, "message %d lost its attachment", i)
			s.Equal(msg.ID, msg.Attachments[0].MessageID)
		} else {
			s.Empty(msg.Attachments)
		}
	}
}
