package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/webitel/im-presence-service/infra/telemetry"
	"github.com/webitel/im-presence-service/internal/adapter/auth"
	"github.com/webitel/im-presence-service/internal/adapter/validation"
	"github.com/webitel/im-presence-service/internal/domain/model"
	"github.com/webitel/im-presence-service/internal/service"
	"github.com/webitel/im-presence-service/internal/service/dto"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// MetricsCollector snapshots the in-process meter provider.
type MetricsCollector interface {
	Collect(ctx context.Context) (*metricdata.ResourceMetrics, error)
}

// Handler serves the read endpoints for dashboards and the server-side relay entry.
type Handler struct {
	logger    *slog.Logger
	deliverer service.Deliverer
	relayer   service.Relayer
	metrics   MetricsCollector
	maxBody   int64
}

// NewHandler accepts a nil collector; /v1/metrics then answers 404.
func NewHandler(logger *slog.Logger, deliverer service.Deliverer, relayer service.Relayer, metrics MetricsCollector) *Handler {
	return &Handler{
		logger:    logger,
		deliverer: deliverer,
		relayer:   relayer,
		metrics:   metrics,
		maxBody:   1 << 20,
	}
}

type PresenceResponse struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	online := h.deliverer.Online()
	writeJSON(w, http.StatusOK, &PresenceResponse{
		Users: model.Identities(online),
		Count: len(online),
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deliverer.Stats())
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	req := new(dto.SendMessage)
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody)).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "body must be a JSON sendMessage object")
		return
	}
	if err := validation.Default().Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_message", validation.Flatten(err).Error())
		return
	}

	sender, err := auth.FromContext(r.Context()).Admit(req.Sender())
	if err != nil {
		writeError(w, http.StatusForbidden, "identity_mismatch", err.Error())
		return
	}
	if sender.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_message", "senderId is required")
		return
	}

	res, err := h.relayer.Relay(r.Context(), sender, req.Recipient(), req.Content)
	switch {
	case errors.Is(err, service.ErrInvalidMessage), errors.Is(err, service.ErrEmptyIdentity):
		writeError(w, http.StatusBadRequest, "invalid_message", err.Error())
		return
	case err != nil:
		h.logger.Error("HTTP_RELAY_FAILED", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "relay failed")
		return
	}

	status := http.StatusAccepted
	if res.Outcome == service.OutcomeRejected {
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, &dto.SendMessageResult{
		MessageID: res.MessageID.String(),
		Outcome:   string(res.Outcome),
		Handles:   res.Handles,
		Timestamp: res.CreatedAt.UnixMilli(),
	})
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		writeError(w, http.StatusNotFound, "telemetry_disabled", "metrics are not collected")
		return
	}
	rm, err := h.metrics.Collect(r.Context())
	switch {
	case errors.Is(err, telemetry.ErrDisabled):
		writeError(w, http.StatusNotFound, "telemetry_disabled", "metrics are not collected")
		return
	case err != nil:
		h.logger.Error("HTTP_METRICS_COLLECT_FAILED", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "collect failed")
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, &ErrorResponse{Code: code, Message: message})
}
