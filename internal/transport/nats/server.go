// Package natstransport is the binary RPC adapter. Operations are NATS
// request/reply calls carrying JSON envelopes; the message stream call
// publishes one frame per message to the reply inbox followed by a done
// frame. Semantics are identical to the HTTP adapter: both resolve
// credentials through the same identity resolver and call the same services.
package natstransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"

	accountservice "threadhub/internal/account/service"
	"threadhub/internal/platform/metrics"
	"threadhub/internal/thread/models"
	derrors "threadhub/pkg/domain-errors"
)

// AccountService is the slice of account operations exposed over NATS.
type AccountService interface {
	Signup(ctx context.Context, email, password string, name *string) (accountservice.AuthResult, error)
	Login(ctx context.Context, email, password string) (accountservice.AuthResult, error)
}

// ThreadService is the slice of thread operations exposed over NATS.
type ThreadService interface {
	CreateThread(ctx context.Context, ownerID uuid.UUID, params models.ThreadCreate) (models.Thread, error)
	ListThreads(ctx context.Context, ownerID uuid.UUID, limit, offset int, filter models.ThreadFilter) (models.ThreadPage, error)
	GetThread(ctx context.Context, ownerID, threadID uuid.UUID) (models.Thread, error)
	UpdateThreadMetadata(ctx context.Context, ownerID, threadID uuid.UUID, patch models.Metadata) (models.Thread, error)
	AppendMessage(ctx context.Context, ownerID, threadID uuid.UUID, params models.MessageCreate) (models.Message, error)
}

// IdentityResolver validates tokens for per-request authentication.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (uuid.UUID, error)
}

// Server subscribes the RPC handlers on a NATS connection.
type Server struct {
	conn        *nats.Conn
	subjectRoot string
	queueGroup  string
	accounts    AccountService
	threads     ThreadService
	resolver    IdentityResolver
	logger      *slog.Logger
	metrics     *metrics.Metrics
	respondFn   func(msg *nats.Msg, resp response)
	publishFn   func(subject string, resp response)
	subs        []*nats.Subscription
}

// New constructs a Server. Call Start to subscribe.
func New(conn *nats.Conn, subjectRoot, queueGroup string, accounts AccountService, threads ThreadService, resolver IdentityResolver, logger *slog.Logger, m *metrics.Metrics) *Server {
	s := &Server{
		conn:        conn,
		subjectRoot: subjectRoot,
		queueGroup:  queueGroup,
		accounts:    accounts,
		threads:     threads,
		resolver:    resolver,
		logger:      logger,
		metrics:     m,
	}
	s.respondFn = s.respond
	s.publishFn = s.publish
	return s
}

type response struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Data      any    `json:"data,omitempty"`
	Done      bool   `json:"done,omitempty"`
}

// Start subscribes every operation under the subject root with the queue
// group, so replicas share the request load.
func (s *Server) Start() error {
	if s.conn == nil {
		return errors.New("nats connection is nil")
	}

	handlers := map[string]nats.MsgHandler{
		"auth.signup":             s.handleSignup,
		"auth.login":              s.handleLogin,
		"auth.verify":             s.handleVerify,
		"threads.create":          s.handleCreateThread,
		"threads.list":            s.handleListThreads,
		"threads.get":             s.handleGetThread,
		"threads.update_metadata": s.handleUpdateMetadata,
		"threads.append":          s.handleAppendMessage,
		"threads.stream":          s.handleStreamMessages,
		"health.ping":             s.handlePing,
	}
	for suffix, handler := range handlers {
		sub, err := s.conn.QueueSubscribe(s.subjectRoot+"."+suffix, s.queueGroup, s.instrument(suffix, handler))
		if err != nil {
			s.Stop()
			return err
		}
		s.subs = append(s.subs, sub)
	}

	s.logger.Info("nats adapter started", "subject_root", s.subjectRoot, "queue_group", s.queueGroup)
	return nil
}

// Stop drains the subscriptions.
func (s *Server) Stop() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}

func (s *Server) instrument(operation string, handler nats.MsgHandler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		start := time.Now()
		handler(msg)
		if s.metrics != nil {
			s.metrics.ObserveRequest("nats", operation, time.Since(start).Seconds())
		}
	}
}

type signupRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name"`
}

func (s *Server) handleSignup(msg *nats.Msg) {
	var req signupRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respondInvalidPayload(msg)
		return
	}

	result, err := s.accounts.Signup(context.Background(), req.Email, req.Password, req.Name)
	if err != nil {
		s.respondError(msg, err)
		return
	}
	s.respondFn(msg, response{OK: true, Data: result})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(msg *nats.Msg) {
	var req loginRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respondInvalidPayload(msg)
		return
	}

	result, err := s.accounts.Login(context.Background(), req.Email, req.Password)
	if err != nil {
		s.respondError(msg, err)
		return
	}
	s.respondFn(msg, response{OK: true, Data: result})
}

type verifyRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleVerify(msg *nats.Msg) {
	var req verifyRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respondInvalidPayload(msg)
		return
	}

	userID, err := s.resolver.Resolve(context.Background(), req.Token)
	if err != nil {
		s.respondError(msg, err)
		return
	}
	s.respondFn(msg, response{OK: true, Data: map[string]string{"user_id": userID.String()}})
}

type participantCreatePayload struct {
	Role        string          `json:"role"`
	DisplayName *string         `json:"display_name"`
	Metadata    models.Metadata `json:"metadata"`
}

type createThreadRequest struct {
	Token        string                     `json:"token"`
	Title        *string                    `json:"title"`
	Summary      *string                    `json:"summary"`
	Status       string                     `json:"status"`
	Metadata     models.Metadata            `json:"metadata"`
	Participants []participantCreatePayload `json:"participants"`
}

func (s *Server) handleCreateThread(msg *nats.Msg) {
	var req createThreadRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respondInvalidPayload(msg)
		return
	}
	ownerID, err := s.resolver.Resolve(context.Background(), req.Token)
	if err != nil {
		s.respondError(msg, err)
		return
	}

	params := models.ThreadCreate{
		Title:    req.Title,
		Summary:  req.Summary,
		Metadata: req.Metadata,
	}
	if req.Status != "" {
		status, err := models.ParseThreadStatus(req.Status)
		if err != nil {
			s.respondError(msg, err)
			return
		}
		params.Status = status
	}
	for _, p := range req.Participants {
		pc := models.ParticipantCreate{DisplayName: p.DisplayName, Metadata: p.Metadata}
		if p.Role != "" {
			role, err := models.ParseParticipantRole(p.Role)
			if err != nil {
				s.respondError(msg, err)
				return
			}
			pc.Role = role
		}
		params.Participants = append(params.Participants, pc)
	}

	thread, err := s.threads.CreateThread(context.Background(), ownerID, params)
	if err != nil {
		s.respondError(msg, err)
		return
	}
	s.respondFn(msg, response{OK: true, Data: thread})
}

type listThreadsRequest struct {
	Token         string     `json:"token"`
	Limit         int        `json:"limit"`
	Offset        int        `json:"offset"`
	ParticipantID *uuid.UUID `json:"participant_id"`
	Status        string     `json:"status"`
	CreatedAfter  *time.Time `json:"created_after"`
	CreatedBefore *time.Time `json:"created_before"`
}

func (s *Server) handleListThreads(msg *nats.Msg) {
	var req listThreadsRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respondInvalidPayload(msg)
		return
	}
	ownerID, err := s.resolver.Resolve(context.Background(), req.Token)
	if err != nil {
		s.respondError(msg, err)
		return
	}

	filter := models.ThreadFilter{
		ParticipantID: req.ParticipantID,
		CreatedAfter:  req.CreatedAfter,
		CreatedBefore: req.CreatedBefore,
	}
	if req.Status != "" {
		status, err := models.ParseThreadStatus(req.Status)
		if err != nil {
			s.respondError(msg, err)
			return
		}
		filter.Status = &status
	}

	page, err := s.threads.ListThreads(context.Background(), ownerID, req.Limit, req.Offset, filter)
	if err != nil {
		s.respondError(msg, err)
		return
	}
	s.respondFn(msg, response{OK: true, Data: page})
}

type threadIDRequest struct {
	Token    string `json:"token"`
	ThreadID string `json:"thread_id"`
}

func (s *Server) handleGetThread(msg *nats.Msg) {
	var req threadIDRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respondInvalidPayload(msg)
		return
	}
	ownerID, threadID, err := s.authenticateThread(req.Token, req.ThreadID)
	if err != nil {
		s.respondError(msg, err)
		return
	}

	thread, err := s.threads.GetThread(context.Background(), ownerID, threadID)
	if err != nil {
		s.respondError(msg, err)
		return
	}
	s.respondFn(msg, response{OK: true, Data: thread})
}

type updateMetadataRequest struct {
	Token    string          `json:"token"`
	ThreadID string          `json:"thread_id"`
	Metadata models.Metadata `json:"metadata"`
}

func (s *Server) handleUpdateMetadata(msg *nats.Msg) {
	var req updateMetadataRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respondInvalidPayload(msg)
		return
	}
	ownerID, threadID, err := s.authenticateThread(req.Token, req.ThreadID)
	if err != nil {
		s.respondError(msg, err)
		return
	}

	thread, err := s.threads.UpdateThreadMetadata(context.Background(), ownerID, threadID, req.Metadata)
	if err != nil {
		s.respondError(msg, err)
		return
	}
	s.respondFn(msg, response{OK: true, Data: thread})
}

type attachmentCreatePayload struct {
	Kind        string          `json:"kind"`
	URI         string          `json:"uri"`
	ContentType *string         `json:"content_type"`
	Metadata    models.Metadata `json:"metadata"`
}

type appendMessageRequest struct {
	Token         string                    `json:"token"`
	ThreadID      string                    `json:"thread_id"`
	ParticipantID *uuid.UUID                `json:"participant_id"`
	Kind          string                    `json:"kind"`
	Content       string                    `json:"content"`
	Metadata      models.Metadata           `json:"metadata"`
	Attachments   []attachmentCreatePayload `json:"attachments"`
}

func (s *Server) handleAppendMessage(msg *nats.Msg) {
	var req appendMessageRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respondInvalidPayload(msg)
		return
	}
	ownerID, threadID, err := s.authenticateThread(req.Token, req.ThreadID)
	if err != nil {
		s.respondError(msg, err)
		return
	}

	params := models.MessageCreate{
		ParticipantID: req.ParticipantID,
		Content:       req.Content,
		Metadata:      req.Metadata,
	}
	if req.Kind != "" {
		kind, err := models.ParseMessageKind(req.Kind)
		if err != nil {
			s.respondError(msg, err)
			return
		}
		params.Kind = kind
	}
	for _, a := range req.Attachments {
		ac := models.AttachmentCreate{URI: a.URI, ContentType: a.ContentType, Metadata: a.Metadata}
		if a.Kind != "" {
			kind, err := models.ParseAttachmentKind(a.Kind)
			if err != nil {
				s.respondError(msg, err)
				return
			}
			ac.Kind = kind
		}
		params.Attachments = append(params.Attachments, ac)
	}

	message, err := s.threads.AppendMessage(context.Background(), ownerID, threadID, params)
	if err != nil {
		s.respondError(msg, err)
		return
	}
	s.respondFn(msg, response{OK: true, Data: message})
}

// handleStreamMessages streams the thread's messages in creation order: one
// frame per message published to the reply inbox, then a done frame. Errors
// before the first frame arrive as a single not-ok frame.
func (s *Server) handleStreamMessages(msg *nats.Msg) {
	if msg.Reply == "" {
		return
	}

	var req threadIDRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respondInvalidPayload(msg)
		return
	}
	ownerID, threadID, err := s.authenticateThread(req.Token, req.ThreadID)
	if err != nil {
		s.respondError(msg, err)
		return
	}

	thread, err := s.threads.GetThread(context.Background(), ownerID, threadID)
	if err != nil {
		s.respondError(msg, err)
		return
	}

	for i := range thread.Messages {
		s.publishFn(msg.Reply, response{OK: true, Data: thread.Messages[i]})
	}
	s.publishFn(msg.Reply, response{OK: true, Done: true})
}

func (s *Server) handlePing(msg *nats.Msg) {
	s.respondFn(msg, response{OK: true, Data: map[string]string{"status": "ok"}})
}

func (s *Server) authenticateThread(token, rawThreadID string) (uuid.UUID, uuid.UUID, error) {
	ownerID, err := s.resolver.Resolve(context.Background(), token)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	threadID, err := uuid.Parse(rawThreadID)
	if err != nil {
		return uuid.Nil, uuid.Nil, derrors.New(derrors.CodeInvalidArgument, "invalid thread id")
	}
	return ownerID, threadID, nil
}

func (s *Server) respondInvalidPayload(msg *nats.Msg) {
	s.respondError(msg, derrors.New(derrors.CodeInvalidArgument, "invalid payload"))
}

func (s *Server) respondError(msg *nats.Msg, err error) {
	code := derrors.CodeOf(err)
	resp := response{OK: false, ErrorCode: string(code)}

	// Internal causes stay server-side, mirroring the HTTP adapter.
	var de *derrors.Error
	if code != derrors.CodeInternal && errors.As(err, &de) {
		resp.Error = de.Message
	}
	if code == derrors.CodeInternal {
		s.logger.Error("nats request failed", "subject", msg.Subject, "error", err)
	}
	s.respondFn(msg, resp)
}

func (s *Server) respond(msg *nats.Msg, resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal nats response", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Error("failed to respond to nats request", "subject", msg.Subject, "error", err)
	}
}

func (s *Server) publish(subject string, resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal nats frame", "error", err)
		return
	}
	if err := s.conn.Publish(subject, data); err != nil {
		s.logger.Error("failed to publish nats frame", "subject", subject, "error", err)
	}
}
