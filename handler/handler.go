// Package handler adapts API Gateway webhook requests to the conversation
// relay.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dm-relay/internal/domain"
	"dm-relay/internal/usecase"
	"dm-relay/internal/webhook"
)

const (
	correlationHeader  = "X-Correlation-Id"
	defaultMaxParallel = 8
)

type EventHandler interface {
	Handle(ctx context.Context, ev domain.InboundEvent) usecase.Outcome
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handler serves webhook verification (GET) and delivery (POST).
type Handler struct {
	events      EventHandler
	verifyToken string
	maxParallel int
	log         *slog.Logger
}

type Option func(*Handler)

func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithMaxParallel bounds how many senders of one delivery run concurrently.
func WithMaxParallel(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxParallel = n
		}
	}
}

func NewHandler(ev EventHandler, verifyToken string, opts ...Option) (*Handler, error) {
	if ev == nil {
		return nil, errors.New("handler: event handler must not be nil")
	}
	if strings.TrimSpace(verifyToken) == "" {
		return nil, errors.New("handler: verify token must not be empty")
	}
	h := &Handler{
		events:      ev,
		verifyToken: verifyToken,
		maxParallel: defaultMaxParallel,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	log := h.log.With("correlation_id", corrID)

	switch req.HTTPMethod {
	case http.MethodGet:
		return h.verify(ctx, log, corrID, req.QueryStringParameters), nil
	case http.MethodPost:
		return h.deliver(ctx, log, corrID, req), nil
	default:
		return jsonResponse(http.StatusMethodNotAllowed, corrID, errorResponse{Error: "METHOD_NOT_ALLOWED"}), nil
	}
}

func (h *Handler) verify(ctx context.Context, log *slog.Logger, corrID string, q map[string]string) events.APIGatewayProxyResponse {
	if q["hub.mode"] == "subscribe" && q["hub.verify_token"] == h.verifyToken {
		log.InfoContext(ctx, "webhook verified")
		return textResponse(http.StatusOK, corrID, q["hub.challenge"])
	}
	log.WarnContext(ctx, "webhook verification failed", "mode", q["hub.mode"])
	return textResponse(http.StatusForbidden, corrID, "verification failed")
}

func (h *Handler) deliver(ctx context.Context, log *slog.Logger, corrID string, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return malformed(ctx, log, corrID, err)
		}
		body = decoded
	}

	evs, err := webhook.Normalize(body)
	if err != nil {
		return malformed(ctx, log, corrID, err)
	}
	log.InfoContext(ctx, "webhook received", "events", len(evs))

	h.process(ctx, log, evs)
	return textResponse(http.StatusOK, corrID, "ok")
}

// process keeps each sender's events in delivery order and runs different
// senders concurrently. Outcomes never fail the group.
func (h *Handler) process(ctx context.Context, log *slog.Logger, evs []domain.InboundEvent) {
	order, bySender := groupBySender(evs)

	var g errgroup.Group
	g.SetLimit(h.maxParallel)
	for _, sender := range order {
		batch := bySender[sender]
		g.Go(func() error {
			h.processSender(ctx, log, sender, batch)
			return nil
		})
	}
	_ = g.Wait()
}

// processSender runs one sender's events in order. A panic abandons the rest
// of that sender's batch only.
func (h *Handler) processSender(ctx context.Context, log *slog.Logger, sender string, batch []domain.InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "event handling panicked",
				"code", usecase.ErrorInternal,
				"sender", sender,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	for _, ev := range batch {
		out := h.events.Handle(ctx, ev)
		log.DebugContext(ctx, "event processed",
			"sender", out.SenderID,
			"state", out.State,
			"failures", len(out.Failures))
	}
}

func groupBySender(evs []domain.InboundEvent) ([]string, map[string][]domain.InboundEvent) {
	var order []string
	bySender := make(map[string][]domain.InboundEvent)
	for _, ev := range evs {
		if _, seen := bySender[ev.SenderID]; !seen {
			order = append(order, ev.SenderID)
		}
		bySender[ev.SenderID] = append(bySender[ev.SenderID], ev)
	}
	return order, bySender
}

func malformed(ctx context.Context, log *slog.Logger, corrID string, err error) events.APIGatewayProxyResponse {
	log.WarnContext(ctx, "rejecting webhook body", "code", usecase.ErrorMalformedPayload, "err", err)
	return jsonResponse(http.StatusBadRequest, corrID, errorResponse{
		Error:  string(usecase.ErrorMalformedPayload),
		Reason: "invalid_body",
	})
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}

func textResponse(status int, corrID, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "text/plain; charset=utf-8",
			correlationHeader: corrID,
		},
		Body: body,
	}
}

func jsonResponse(status int, corrID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(body),
	}
}
