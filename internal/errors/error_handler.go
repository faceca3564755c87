package errors

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Handler writes errors as JSON HTTP responses.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates an error handler that logs through logger.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

// HandleError maps err to its status and error code and writes the reply.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := HTTPStatus(err)
	code := KindOf(err).String()
	message := err.Error()

	// Internal details stay in the logs.
	if e, ok := As(err); ok {
		message = e.Message
		if e.Retryable() {
			w.Header().Set("Retry-After", "1")
		}
	} else {
		message = "internal server error"
	}

	if statusCode >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", r.Header.Get("X-Request-ID")),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}

	h.WriteErrorResponse(w, statusCode, code, message, r.Header.Get("X-Request-ID"))
}

// HTTPStatus converts an error to an HTTP status code via its gRPC status.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	st, ok := status.FromError(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch st.Code() {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes an ErrorResponse with the given status.
func (h *Handler) WriteErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message, requestID string) {
	h.logger.Warn("HTTP error response",
		zap.Int("status_code", statusCode),
		zap.String("error_code", errorCode),
		zap.String("message", message),
		zap.String("request_id", requestID),
	)

	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// WriteValidationError replies 400 INVALID_REQUEST.
func (h *Handler) WriteValidationError(w http.ResponseWriter, message, requestID string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, KindInvalidArgument.String(), message, requestID)
}

// WriteUnauthorized writes a 401 response for requests without an auth context.
func (h *Handler) WriteUnauthorized(w http.ResponseWriter, message, requestID string) {
	h.WriteErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", message, requestID)
}
