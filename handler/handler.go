package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"eitc-assistant/internal/domain"
	"eitc-assistant/internal/logger"
	"eitc-assistant/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

const (
	errorNotFound         = "NOT_FOUND"
	errorMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

type RelayUseCase interface {
	Chat(ctx context.Context, in usecase.RelayChatInput) (usecase.RelayChatOutput, error)
	NewSession(ctx context.Context, clientID string) (domain.Session, error)
}

type chatRequest struct {
	Message  string `json:"message"`
	ClientID string `json:"clientId"`
	Language string `json:"language"`
}

type chatResponse struct {
	Response  string `json:"response"`
	MessageID string `json:"messageId"`
	SessionID string `json:"sessionId"`
	Language  string `json:"language"`
}

type sessionRequest struct {
	ClientID string `json:"clientId"`
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
	StartTime string `json:"startTime"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Handler serves the relay API behind API Gateway.
type Handler struct {
	relay RelayUseCase
	log   *logger.Logger
}

func NewHandler(relay RelayUseCase, l *logger.Logger) (*Handler, error) {
	if relay == nil {
		return nil, errors.New("handler: relay use case must not be nil")
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Handler{relay: relay, log: l}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	log := h.log.With("correlation_id", corrID, "path", req.Path)

	var resp events.APIGatewayProxyResponse
	switch strings.TrimRight(req.Path, "/") {
	case "/chat":
		resp = h.onlyPost(req, func() events.APIGatewayProxyResponse { return h.chat(ctx, log, req) })
	case "/session":
		resp = h.onlyPost(req, func() events.APIGatewayProxyResponse { return h.session(ctx, log, req) })
	default:
		resp = jsonResponse(http.StatusNotFound, errorResponse{Error: errorNotFound})
	}
	resp.Headers[correlationHeader] = corrID
	log.Info("handler: request served", "method", req.HTTPMethod, "status", resp.StatusCode)
	return resp, nil
}

func (h *Handler) onlyPost(req events.APIGatewayProxyRequest, next func() events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if req.HTTPMethod != http.MethodPost {
		return jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: errorMethodNotAllowed})
	}
	return next()
}

func (h *Handler) chat(ctx context.Context, log *logger.Logger, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	var in chatRequest
	if err := json.Unmarshal([]byte(req.Body), &in); err != nil {
		return jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorValidation), Message: "invalid JSON body"})
	}
	out, err := h.relay.Chat(ctx, usecase.RelayChatInput{
		ClientID: in.ClientID,
		Message:  in.Message,
		Language: in.Language,
	})
	if err != nil {
		return h.failure(log, err, out.Response)
	}
	return jsonResponse(http.StatusOK, chatResponse{
		Response:  out.Response,
		MessageID: out.MessageID,
		SessionID: out.SessionID,
		Language:  out.Language,
	})
}

func (h *Handler) session(ctx context.Context, log *logger.Logger, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	var in sessionRequest
	if err := json.Unmarshal([]byte(req.Body), &in); err != nil {
		return jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorValidation), Message: "invalid JSON body"})
	}
	sess, err := h.relay.NewSession(ctx, in.ClientID)
	if err != nil {
		return h.failure(log, err, "")
	}
	return jsonResponse(http.StatusOK, sessionResponse{
		SessionID: sess.ID,
		StartTime: sess.StartTime.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) failure(log *logger.Logger, err error, message string) events.APIGatewayProxyResponse {
	code := usecase.Classify(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		log.Error("handler: request failed", "code", string(code), "err", err)
	} else {
		log.Warn("handler: request rejected", "code", string(code), "err", err)
	}
	return jsonResponse(status, errorResponse{Error: string(code), Message: message})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorValidation, usecase.ErrorClient:
		return http.StatusBadRequest
	case usecase.ErrorExchangePending:
		return http.StatusConflict
	case usecase.ErrorAuth, usecase.ErrorServer:
		return http.StatusBadGateway
	case usecase.ErrorTransport:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

// correlationID reuses the caller's header, matched case-insensitively, or
// mints a new one.
func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return newUUID()
}

var newUUID = func() string {
	return uuid.NewString()
}
