package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dfsingest/dfsingest/internal/logger"
	"github.com/dfsingest/dfsingest/pkg/ingest/apierror"
)

// HandlerFunc is the shape every coordinator and admin handler implements:
// write the success body directly, or return a structured error for the
// adapter to translate.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// errorBody is the shape of every non-2xx response.
type errorBody struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
	RequestID string `json:"request_id"`
	UploadID  string `json:"upload_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// Wrap adapts a HandlerFunc into an http.HandlerFunc: on a nil error the
// handler has already written its own response; on a non-nil error it's
// classified and turned into the structured error body. Handlers that
// stream a body (Download) only ever return an error before the first
// byte is written, so this never risks writing a second status line.
func Wrap(fn HandlerFunc, appVersion string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := BeginResponse(w, r, appVersion)

		err := fn(w, r)
		if err == nil {
			return
		}
		RespondError(w, r, err, requestID)
	}
}

// BeginResponse sets the headers every response carries (X-Request-ID,
// generated if the request didn't supply one via chi's RequestID
// middleware; X-DFS-App-Version) and returns the request id for reuse in
// the error body and logs.
func BeginResponse(w http.ResponseWriter, r *http.Request, appVersion string) string {
	w.Header().Set("X-DFS-App-Version", appVersion)

	requestID := middleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", requestID)
	return requestID
}

// RespondError classifies err and writes the structured error body for
// Wrap. The auth and rate-limit middleware in pkg/api/middleware write the
// same body through their own local helper, since that package cannot
// import this one.
func RespondError(w http.ResponseWriter, r *http.Request, err error, requestID string) {
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) {
		apiErr = apierror.Internal("unexpected error")
	}

	logger.ErrorCtx(r.Context(), "request failed",
		logger.ErrorCode(apiErr.Code),
		logger.Err(apiErr),
		logger.RequestID(requestID),
	)

	if apiErr.Kind == apierror.KindThrottled {
		w.Header().Set("Retry-After", "1")
		w.Header().Set("X-RateLimit-Reason", apiErr.RateLimitReason)
	}

	body := errorBody{
		Detail:    apiErr.Message,
		ErrorCode: apiErr.Code,
		RequestID: requestID,
	}
	if lc := logger.FromContext(r.Context()); lc != nil {
		body.UploadID = lc.UploadID
		body.TraceID = lc.TraceID
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	json.NewEncoder(w).Encode(body)
}

// writeJSON writes a 2xx JSON body with the standard headers already set
// by Wrap.
func writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}
