// Package handler exposes the relay as an API Gateway proxy handler.
//
// Webhook and /init requests always answer 200: the messaging provider
// retries deliveries on any other status, which would repeat completions
// and history writes.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"chatgpt-telegram-relay/internal/domain"
	"chatgpt-telegram-relay/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

var webhookPath = regexp.MustCompile(`^/telegram/(\d+:[A-Za-z0-9_-]{35})/webhook`)

type Processor interface {
	Process(ctx context.Context, token string, update *models.Update) usecase.Response
}

type Binder interface {
	Bind(ctx context.Context) ([]domain.WebhookResult, error)
}

type Handler struct {
	processor Processor
	binder    Binder
}

func NewHandler(p Processor, b Binder) (*Handler, error) {
	if p == nil {
		return nil, errors.New("handler: processor must not be nil")
	}
	if b == nil {
		return nil, errors.New("handler: binder must not be nil")
	}
	return &Handler{processor: p, binder: b}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = newUUID()
	}
	ctx = usecase.WithCorrelationID(ctx, correlationID)
	log := slog.With("correlation_id", correlationID, "path", req.Path)

	defer func() {
		if r := recover(); r != nil {
			log.Error("request panicked", "err", fmt.Errorf("panic: %v", r))
			resp = textResponse(http.StatusOK, fmt.Sprintf("ERROR: %v", r), correlationID)
			err = nil
		}
	}()

	switch {
	case strings.HasPrefix(req.Path, "/init"):
		return h.bindWebhooks(ctx, log, correlationID), nil
	case strings.HasPrefix(req.Path, "/telegram") && strings.HasSuffix(req.Path, "/webhook"):
		return h.webhook(ctx, log, req, correlationID), nil
	}
	return textResponse(http.StatusNotFound, "NOTFOUND: "+req.Path, correlationID), nil
}

func (h *Handler) webhook(ctx context.Context, log *slog.Logger, req events.APIGatewayProxyRequest, correlationID string) events.APIGatewayProxyResponse {
	var token string
	if m := webhookPath.FindStringSubmatch(req.Path); m != nil {
		token = m[1]
	}

	body, err := requestBody(req)
	if err != nil {
		log.Warn("invalid request body", "err", err)
		return textResponse(http.StatusOK, "ERROR: "+err.Error(), correlationID)
	}
	var update models.Update
	if err := json.Unmarshal(body, &update); err != nil {
		log.Warn("invalid update", "err", err)
		return textResponse(http.StatusOK, "ERROR: invalid update: "+err.Error(), correlationID)
	}

	out := h.processor.Process(ctx, token, &update)
	log.Info("update processed", "update_id", update.ID, "delivered", out.Deliver)
	return textResponse(http.StatusOK, out.Text, correlationID)
}

func (h *Handler) bindWebhooks(ctx context.Context, log *slog.Logger, correlationID string) events.APIGatewayProxyResponse {
	results, err := h.binder.Bind(ctx)
	if err != nil {
		log.Error("bind webhooks failed", "err", err)
		return textResponse(http.StatusOK, "ERROR: "+err.Error(), correlationID)
	}
	b, err := json.Marshal(results)
	if err != nil {
		log.Error("encode webhook results failed", "err", err)
		return textResponse(http.StatusOK, "ERROR: "+err.Error(), correlationID)
	}
	resp := textResponse(http.StatusOK, string(b), correlationID)
	resp.Headers["Content-Type"] = "application/json"
	return resp
}

func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, fmt.Errorf("decode base64 body: %w", err)
	}
	return b, nil
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func textResponse(status int, body, correlationID string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "text/plain; charset=utf-8",
			correlationHeader: correlationID,
		},
		Body: body,
	}
}

var newUUID = func() string {
	return uuid.NewString()
}
