// Package handler wires thread endpoints to the thread service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"threadhub/internal/platform/middleware"
	"threadhub/internal/thread/models"
	derrors "threadhub/pkg/domain-errors"
	"threadhub/pkg/platform/httputil"
)

// Service defines the thread operations the handler depends on.
type Service interface {
	CreateThread(ctx context.Context, ownerID uuid.UUID, params models.ThreadCreate) (models.Thread, error)
	ListThreads(ctx context.Context, ownerID uuid.UUID, limit, offset int, filter models.ThreadFilter) (models.ThreadPage, error)
	GetThread(ctx context.Context, ownerID, threadID uuid.UUID) (models.Thread, error)
	UpdateThreadMetadata(ctx context.Context, ownerID, threadID uuid.UUID, patch models.Metadata) (models.Thread, error)
	AppendMessage(ctx context.Context, ownerID, threadID uuid.UUID, params models.MessageCreate) (models.Message, error)
}

// Handler is the JSON/HTTP adapter for thread operations.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a thread handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts thread endpoints. Every route requires authentication.
func (h *Handler) Register(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Route("/threads", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/", h.HandleCreateThread)
		r.Get("/", h.HandleListThreads)
		r.Get("/{threadID}", h.HandleGetThread)
		r.Patch("/{threadID}/metadata", h.HandleUpdateMetadata)
		r.Post("/{threadID}/messages", h.HandleAppendMessage)
	})
}

type participantCreateRequest struct {
	Role        string          `json:"role"`
	DisplayName *string         `json:"display_name"`
	Metadata    models.Metadata `json:"metadata"`
}

type threadCreateRequest struct {
	Title        *string                    `json:"title"`
	Summary      *string                    `json:"summary"`
	Status       string                     `json:"status"`
	Metadata     models.Metadata            `json:"metadata"`
	Participants []participantCreateRequest `json:"participants"`
}

// HandleCreateThread handles POST /threads.
func (h *Handler) HandleCreateThread(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[threadCreateRequest](w, r)
	if !ok {
		return
	}

	params, err := req.toParams()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	thread, err := h.service.CreateThread(r.Context(), ownerID, params)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "create thread failed", "error", err, "owner_id", ownerID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, thread)
}

func (req threadCreateRequest) toParams() (models.ThreadCreate, error) {
	params := models.ThreadCreate{
		Title:    req.Title,
		Summary:  req.Summary,
		Metadata: req.Metadata,
	}
	if req.Status != "" {
		status, err := models.ParseThreadStatus(req.Status)
		if err != nil {
			return models.ThreadCreate{}, err
		}
		params.Status = status
	}
	for _, p := range req.Participants {
		pc := models.ParticipantCreate{
			DisplayName: p.DisplayName,
			Metadata:    p.Metadata,
		}
		if p.Role != "" {
			role, err := models.ParseParticipantRole(p.Role)
			if err != nil {
				return models.ThreadCreate{}, err
			}
			pc.Role = role
		}
		params.Participants = append(params.Participants, pc)
	}
	return params, nil
}

// HandleListThreads handles GET /threads.
func (h *Handler) HandleListThreads(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	page, err := h.service.ListThreads(r.Context(), ownerID, limit, offset, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func filterFromQuery(r *http.Request) (models.ThreadFilter, error) {
	var filter models.ThreadFilter
	q := r.URL.Query()

	if raw := q.Get("participant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return models.ThreadFilter{}, derrors.New(derrors.CodeInvalidArgument, "invalid participant_id")
		}
		filter.ParticipantID = &id
	}
	if raw := q.Get("status"); raw != "" {
		status, err := models.ParseThreadStatus(raw)
		if err != nil {
			return models.ThreadFilter{}, err
		}
		filter.Status = &status
	}
	if raw := q.Get("created_after"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return models.ThreadFilter{}, derrors.New(derrors.CodeInvalidArgument, "invalid created_after")
		}
		filter.CreatedAfter = &t
	}
	if raw := q.Get("created_before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return models.ThreadFilter{}, derrors.New(derrors.CodeInvalidArgument, "invalid created_before")
		}
		filter.CreatedBefore = &t
	}
	return filter, nil
}

// HandleGetThread handles GET /threads/{threadID}.
func (h *Handler) HandleGetThread(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	threadID, ok := threadIDFrom(w, r)
	if !ok {
		return
	}

	thread, err := h.service.GetThread(r.Context(), ownerID, threadID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, thread)
}

type metadataPatchRequest struct {
	Metadata models.Metadata `json:"metadata"`
}

// HandleUpdateMetadata handles PATCH /threads/{threadID}/metadata.
func (h *Handler) HandleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	threadID, ok := threadIDFrom(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[metadataPatchRequest](w, r)
	if !ok {
		return
	}

	thread, err := h.service.UpdateThreadMetadata(r.Context(), ownerID, threadID, req.Metadata)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, thread)
}

type attachmentCreateRequest struct {
	Kind        string          `json:"kind"`
	URI         string          `json:"uri"`
	ContentType *string         `json:"content_type"`
	Metadata    models.Metadata `json:"metadata"`
}

type messageCreateRequest struct {
	ParticipantID *uuid.UUID                `json:"participant_id"`
	Kind          string                    `json:"kind"`
	Content       string                    `json:"content"`
	Metadata      models.Metadata           `json:"metadata"`
	Attachments   []attachmentCreateRequest `json:"attachments"`
}

// HandleAppendMessage handles POST /threads/{threadID}/messages.
func (h *Handler) HandleAppendMessage(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	threadID, ok := threadIDFrom(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[messageCreateRequest](w, r)
	if !ok {
		return
	}

	params, err := req.toParams()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	message, err := h.service.AppendMessage(r.Context(), ownerID, threadID, params)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, message)
}

func (req messageCreateRequest) toParams() (models.MessageCreate, error) {
	params := models.MessageCreate{
		ParticipantID: req.ParticipantID,
		Content:       req.Content,
		Metadata:      req.Metadata,
	}
	if req.Kind != "" {
		kind, err := models.ParseMessageKind(req.Kind)
		if err != nil {
			return models.MessageCreate{}, err
		}
		params.Kind = kind
	}
	for _, a := range req.Attachments {
		ac := models.AttachmentCreate{
			URI:         a.URI,
			ContentType: a.ContentType,
			Metadata:    a.Metadata,
		}
		if a.Kind != "" {
			kind, err := models.ParseAttachmentKind(a.Kind)
			if err != nil {
				return models.MessageCreate{}, err
			}
			ac.Kind = kind
		}
		params.Attachments = append(params.Attachments, ac)
	}
	return params, nil
}

func ownerFrom(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	ownerID, ok := middleware.GetOwnerID(r.Context())
	if !ok {
		httputil.WriteError(w, derrors.New(derrors.CodeUnauthenticated, "authentication required"))
		return uuid.Nil, false
	}
	return ownerID, true
}

func threadIDFrom(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	threadID, err := uuid.Parse(chi.URLParam(r, "threadID"))
	if err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeInvalidArgument, "invalid thread id"))
		return uuid.Nil, false
	}
	return threadID, true
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, derrors.New(derrors.CodeInvalidArgument, "invalid "+name)
	}
	return v, nil
}
