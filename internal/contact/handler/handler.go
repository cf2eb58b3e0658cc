package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"contactlink/internal/contact/models"
	"contactlink/internal/platform/metrics"
	"contactlink/internal/platform/middleware"
	dErrors "contactlink/pkg/domain-errors"
	"contactlink/pkg/platform/httputil"
	"contactlink/pkg/platform/middleware/metadata"
	"contactlink/pkg/platform/middleware/requesttime"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxBodyBytes          = 1 << 20
)

// Service defines the identity operations the handler exposes.
type Service interface {
	Identify(ctx context.Context, req models.IdentifyRequest) (*models.Identity, error)
	View(ctx context.Context, id int64) (*models.Identity, error)
}

// Handler serves identity reconciliation endpoints.
type Handler struct {
	logger         *slog.Logger
	service        Service
	metrics        *metrics.Metrics
	requestTimeout time.Duration
}

type Option func(*Handler)

func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.requestTimeout = d
		}
	}
}

// New creates a contact Handler. metrics may be nil.
func New(service Service, logger *slog.Logger, metrics *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		logger:         logger,
		service:        service,
		metrics:        metrics,
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the contact routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	contactRouter := chi.NewRouter()
	contactRouter.Use(middleware.Recovery(h.logger))
	contactRouter.Use(middleware.RequestID)
	contactRouter.Use(requesttime.Middleware)
	contactRouter.Use(metadata.ClientMetadata)
	contactRouter.Use(middleware.Logger(h.logger))
	contactRouter.Use(middleware.Timeout(h.requestTimeout))
	contactRouter.Use(middleware.ContentTypeJSON)
	contactRouter.Use(middleware.LatencyMiddleware(h.metrics))
	contactRouter.Post("/identify", h.handleIdentify)
	contactRouter.Post("/api/identify", h.handleIdentify)
	contactRouter.Get("/contacts/{id}", h.handleView)

	r.Mount("/", contactRouter)
}

// handleIdentify links the submitted email/phone into its identity cluster.
func (h *Handler) handleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var body IdentifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		h.logger.WarnContext(ctx, "invalid identify request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	req := body.ToModel()
	if !req.HasIdentifier() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "email or phoneNumber is required"))
		return
	}

	identity, err := h.service.Identify(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, w, err, "identify failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(identity))
}

// handleView returns the identity containing a contact id.
func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "contact id must be a positive integer"))
		return
	}

	identity, err := h.service.View(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, err, "view failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(identity))
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	code := dErrors.CodeOf(err)
	attrs := []any{
		"request_id", middleware.GetRequestID(ctx),
		"code", string(code),
		"error", err.Error(),
	}
	if httputil.StatusFor(code) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
