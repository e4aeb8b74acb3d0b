package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"threadhub/internal/thread/models"
	"threadhub/pkg/platform/sentinel"
)

// PostgresStore persists threads in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed thread store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateThread(ctx context.Context, ownerID uuid.UUID, params models.ThreadCreate) (models.Thread, error) {
	status := params.Status
	if status == "" {
		status = models.ThreadStatusOpen
	}
	metadataBytes, err := marshalMetadata(params.Metadata)
	if err != nil {
		return models.Thread{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Thread{}, fmt.Errorf("begin create thread: %w", err)
	}
	defer tx.Rollback()

	thread := models.Thread{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Title:   params.Title,
		Status:  status,
		Summary: params.Summary,
	}
	row := tx.QueryRowContext(ctx, `
		INSERT INTO threads (id, user_id, title, status, summary, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING metadata, created_at, updated_at`,
		thread.ID, ownerID, thread.Title, string(status), thread.Summary, metadataBytes,
	)
	var storedMetadata []byte
	if err := row.Scan(&storedMetadata, &thread.CreatedAt, &thread.UpdatedAt); err != nil {
		return models.Thread{}, fmt.Errorf("insert thread: %w", mapPQError(err))
	}
	if thread.Metadata, err = scanMetadata(storedMetadata); err != nil {
		return models.Thread{}, err
	}

	thread.Participants = make([]models.Participant, 0, len(params.Participants))
	for _, p := range params.Participants {
		participant, err := insertParticipant(ctx, tx, thread.ID, p)
		if err != nil {
			return models.Thread{}, err
		}
		thread.Participants = append(thread.Participants, participant)
	}

	if err := tx.Commit(); err != nil {
		return models.Thread{}, fmt.Errorf("commit create thread: %w", err)
	}
	thread.Messages = []models.Message{}
	return thread, nil
}

func insertParticipant(ctx context.Context, tx *sql.Tx, threadID uuid.UUID, params models.ParticipantCreate) (models.Participant, error) {
	role := params.Role
	if role == "" {
		role = models.ParticipantRoleUser
	}
	metadataBytes, err := marshalMetadata(params.Metadata)
	if err != nil {
		return models.Participant{}, err
	}

	participant := models.Participant{
		ID:          uuid.New(),
		ThreadID:    threadID,
		Role:        role,
		DisplayName: params.DisplayName,
	}
	row := tx.QueryRowContext(ctx, `
		INSERT INTO participants (id, thread_id, role, display_name, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING metadata, created_at`,
		participant.ID, threadID, string(role), participant.DisplayName, metadataBytes,
	)
	var storedMetadata []byte
	if err := row.Scan(&storedMetadata, &participant.CreatedAt); err != nil {
		return models.Participant{}, fmt.Errorf("insert participant: %w", mapPQError(err))
	}
	if participant.Metadata, err = scanMetadata(storedMetadata); err != nil {
		return models.Participant{}, err
	}
	return participant, nil
}

func (s *PostgresStore) ListThreads(ctx context.Context, ownerID uuid.UUID, limit, offset int, filter models.ThreadFilter) (models.ThreadPage, error) {
	where, args := buildThreadFilter(ownerID, filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM threads t " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return models.ThreadPage{}, fmt.Errorf("count threads: %w", err)
	}

	pageQuery := fmt.Sprintf(`
		SELECT t.id, t.user_id, t.title, t.status, t.summary, t.metadata, t.created_at, t.updated_at
		FROM threads t %s
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	rows, err := s.db.QueryContext(ctx, pageQuery, append(args, limit, offset)...)
	if err != nil {
		return models.ThreadPage{}, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	threads := []models.Thread{}
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return models.ThreadPage{}, err
		}
		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		return models.ThreadPage{}, fmt.Errorf("list threads: %w", err)
	}

	if err := s.loadThreadChildren(ctx, threads); err != nil {
		return models.ThreadPage{}, err
	}
	return models.ThreadPage{Threads: threads, Total: total}, nil
}

// buildThreadFilter renders the AND-composed WHERE clause shared by the page
// and count queries.
func buildThreadFilter(ownerID uuid.UUID, filter models.ThreadFilter) (string, []any) {
	clauses := []string{"t.user_id = $1"}
	args := []any{ownerID}

	if filter.ParticipantID != nil {
		args = append(args, *filter.ParticipantID)
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM participants p WHERE p.thread_id = t.id AND p.id = $%d)", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("t.status = $%d", len(args)))
	}
	if filter.CreatedAfter != nil {
		args = append(args, *filter.CreatedAfter)
		clauses = append(clauses, fmt.Sprintf("t.created_at >= $%d", len(args)))
	}
	if filter.CreatedBefore != nil {
		args = append(args, *filter.CreatedBefore)
		clauses = append(clauses, fmt.Sprintf("t.created_at <= $%d", len(args)))
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (s *PostgresStore) GetThread(ctx context.Context, ownerID, threadID uuid.UUID) (models.Thread, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.user_id, t.title, t.status, t.summary, t.metadata, t.created_at, t.updated_at
		FROM threads t
		WHERE t.id = $1 AND t.user_id = $2`,
		threadID, ownerID,
	)
	thread, err := scanThread(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Thread{}, sentinel.ErrNotFound
		}
		return models.Thread{}, err
	}

	threads := []models.Thread{thread}
	if err := s.loadThreadChildren(ctx, threads); err != nil {
		return models.Thread{}, err
	}
	return threads[0], nil
}

func (s *PostgresStore) UpdateThreadMetadata(ctx context.Context, ownerID, threadID uuid.UUID, patch models.Metadata) (models.Thread, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Thread{}, fmt.Errorf("begin update metadata: %w", err)
	}
	defer tx.Rollback()

	var storedMetadata []byte
	err = tx.QueryRowContext(ctx,
		`SELECT metadata FROM threads WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		threadID, ownerID,
	).Scan(&storedMetadata)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Thread{}, sentinel.ErrNotFound
		}
		return models.Thread{}, fmt.Errorf("lock thread metadata: %w", err)
	}

	existing, err := scanMetadata(storedMetadata)
	if err != nil {
		return models.Thread{}, err
	}
	mergedBytes, err := marshalMetadata(existing.Merge(patch))
	if err != nil {
		return models.Thread{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE threads SET metadata = $1, updated_at = now() WHERE id = $2`,
		mergedBytes, threadID,
	); err != nil {
		return models.Thread{}, fmt.Errorf("update thread metadata: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Thread{}, fmt.Errorf("commit update metadata: %w", err)
	}

	return s.GetThread(ctx, ownerID, threadID)
}

func (s *PostgresStore) AppendMessage(ctx context.Context, ownerID, threadID uuid.UUID, params models.MessageCreate) (models.Message, error) {
	kind := params.Kind
	if kind == "" {
		kind = models.MessageKindText
	}
	metadataBytes, err := marshalMetadata(params.Metadata)
	if err != nil {
		return models.Message{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Message{}, fmt.Errorf("begin append message: %w", err)
	}
	defer tx.Rollback()

	// Ownership check shares the NotFound rule with every other thread read:
	// someone else's thread looks absent.
	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT true FROM threads WHERE id = $1 AND user_id = $2`,
		threadID, ownerID,
	).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Message{}, sentinel.ErrNotFound
		}
		return models.Message{}, fmt.Errorf("check thread: %w", err)
	}

	message := models.Message{
		ID:            uuid.New(),
		ThreadID:      threadID,
		ParticipantID: params.ParticipantID,
		Kind:          kind,
		Content:       params.Content,
	}
	row := tx.QueryRowContext(ctx, `
		INSERT INTO messages (id, thread_id, participant_id, kind, content, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING metadata, created_at`,
		message.ID, threadID, params.ParticipantID, string(kind), params.Content, metadataBytes,
	)
	var storedMetadata []byte
	if err := row.Scan(&storedMetadata, &message.CreatedAt); err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", mapPQError(err))
	}
	if message.Metadata, err = scanMetadata(storedMetadata); err != nil {
		return models.Message{}, err
	}

	message.Attachments = make([]models.Attachment, 0, len(params.Attachments))
	for _, a := range params.Attachments {
		attachment, err := insertAttachment(ctx, tx, message.ID, a)
		if err != nil {
			return models.Message{}, err
		}
		message.Attachments = append(message.Attachments, attachment)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE threads SET updated_at = now() WHERE id = $1`, threadID,
	); err != nil {
		return models.Message{}, fmt.Errorf("touch thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, fmt.Errorf("commit append message: %w", err)
	}
	return message, nil
}

func insertAttachment(ctx context.Context, tx *sql.Tx, messageID uuid.UUID, params models.AttachmentCreate) (models.Attachment, error) {
	kind := params.Kind
	if kind == "" {
		kind = models.AttachmentKindFile
	}
	metadataBytes, err := marshalMetadata(params.Metadata)
	if err != nil {
		return models.Attachment{}, err
	}

	attachment := models.Attachment{
		ID:          uuid.New(),
		MessageID:   messageID,
		Kind:        kind,
		URI:         params.URI,
		ContentType: params.ContentType,
	}
	row := tx.QueryRowContext(ctx, `
		INSERT INTO message_attachments (id, message_id, kind, uri, content_type, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING metadata, created_at`,
		attachment.ID, messageID, string(kind), params.URI, params.ContentType, metadataBytes,
	)
	var storedMetadata []byte
	if err := row.Scan(&storedMetadata, &attachment.CreatedAt); err != nil {
		return models.Attachment{}, fmt.Errorf("insert attachment: %w", mapPQError(err))
	}
	if attachment.Metadata, err = scanMetadata(storedMetadata); err != nil {
		return models.Attachment{}, err
	}
	return attachment, nil
}

// loadThreadChildren populates participants and messages (with attachments)
// for the given threads in batched queries. Participants load concurrently
// with the message tree; both go against the pool, not a shared tx.
func (s *PostgresStore) loadThreadChildren(ctx context.Context, threads []models.Thread) error {
	if len(threads) == 0 {
		return nil
	}
	threadIDs := make([]uuid.UUID, len(threads))
	byID := make(map[uuid.UUID]*models.Thread, len(threads))
	for i := range threads {
		threads[i].Participants = []models.Participant{}
		threads[i].Messages = []models.Message{}
		threadIDs[i] = threads[i].ID
		byID[threads[i].ID] = &threads[i]
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loadParticipants(gctx, threadIDs, byID) })
	g.Go(func() error { return s.loadMessages(gctx, threadIDs, byID) })
	return g.Wait()
}

func (s *PostgresStore) loadParticipants(ctx context.Context, threadIDs []uuid.UUID, byID map[uuid.UUID]*models.Thread) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, role, display_name, metadata, created_at
		FROM participants
		WHERE thread_id = ANY($1)
		ORDER BY created_at, id`,
		pq.Array(threadIDs),
	)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p models.Participant
		var role string
		var storedMetadata []byte
		if err := rows.Scan(&p.ID, &p.ThreadID, &role, &p.DisplayName, &storedMetadata, &p.CreatedAt); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		if p.Role, err = models.ParseParticipantRole(role); err != nil {
			return err
		}
		if p.Metadata, err = scanMetadata(storedMetadata); err != nil {
			return err
		}
		byID[p.ThreadID].Participants = append(byID[p.ThreadID].Participants, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	return nil
}

func (s *PostgresStore) loadMessages(ctx context.Context, threadIDs []uuid.UUID, byID map[uuid.UUID]*models.Thread) error {
	messageRows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, participant_id, kind, content, metadata, created_at
		FROM messages
		WHERE thread_id = ANY($1)
		ORDER BY created_at, id`,
		pq.Array(threadIDs),
	)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	defer messageRows.Close()

	messageIDs := []uuid.UUID{}
	for messageRows.Next() {
		var m models.Message
		var kind string
		var storedMetadata []byte
		if err := messageRows.Scan(&m.ID, &m.ThreadID, &m.ParticipantID, &kind, &m.Content, &storedMetadata, &m.CreatedAt); err != nil {
			return fmt.Errorf("scan message: %w", err)
		}
		if m.Kind, err = models.ParseMessageKind(kind); err != nil {
			return err
		}
		if m.Metadata, err = scanMetadata(storedMetadata); err != nil {
			return err
		}
		m.Attachments = []models.Attachment{}
		thread := byID[m.ThreadID]
		thread.Messages = append(thread.Messages, m)
		messageIDs = append(messageIDs, m.ID)
	}
	if err := messageRows.Err(); err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if len(messageIDs) == 0 {
		return nil
	}

	// Pointers into the Messages slices are only safe once every append is
	// done; an earlier append would reallocate the backing array under them.
	messageByID := make(map[uuid.UUID]*models.Message, len(messageIDs))
	for _, thread := range byID {
		for i := range thread.Messages {
			messageByID[thread.Messages[i].ID] = &thread.Messages[i]
		}
	}

	attachmentRows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, kind, uri, content_type, metadata, created_at
		FROM message_attachments
		WHERE message_id = ANY($1)
		ORDER BY created_at, id`,
		pq.Array(messageIDs),
	)
	if err != nil {
		return fmt.Errorf("load attachments: %w", err)
	}
	defer attachmentRows.Close()
	for attachmentRows.Next() {
		var a models.Attachment
		var kind string
		var storedMetadata []byte
		if err := attachmentRows.Scan(&a.ID, &a.MessageID, &kind, &a.URI, &a.ContentType, &storedMetadata, &a.CreatedAt); err != nil {
			return fmt.Errorf("scan attachment: %w", err)
		}
		if a.Kind, err = models.ParseAttachmentKind(kind); err != nil {
			return err
		}
		if a.Metadata, err = scanMetadata(storedMetadata); err != nil {
			return err
		}
		messageByID[a.MessageID].Attachments = append(messageByID[a.MessageID].Attachments, a)
	}
	return attachmentRows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (models.Thread, error) {
	var thread models.Thread
	var status string
	var storedMetadata []byte
	err := row.Scan(&thread.ID, &thread.OwnerID, &thread.Title, &status, &thread.Summary,
		&storedMetadata, &thread.CreatedAt, &thread.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Thread{}, sql.ErrNoRows
		}
		return models.Thread{}, fmt.Errorf("scan thread: %w", err)
	}
	// Case normalization happens here, once, at the storage-read boundary.
	if thread.Status, err = models.ParseThreadStatus(status); err != nil {
		return models.Thread{}, err
	}
	if thread.Metadata, err = scanMetadata(storedMetadata); err != nil {
		return models.Thread{}, err
	}
	return thread, nil
}

func marshalMetadata(m models.Metadata) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return raw, nil
}

// scanMetadata is the single conversion point from the jsonb column to the
// plain string-keyed map the wire layer serializes. Nothing driver-shaped
// survives past this function.
func scanMetadata(raw []byte) (models.Metadata, error) {
	if len(raw) == 0 {
		return models.Metadata{}, nil
	}
	var m models.Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if m == nil {
		m = models.Metadata{}
	}
	return m, nil
}

// mapPQError converts a unique-constraint violation into the conflict
// sentinel; anything else passes through for %w wrapping.
func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return sentinel.ErrConflict
	}
	return err
}
