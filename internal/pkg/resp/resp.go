/*
Package resp writes the server's JSON envelope.

Every response body is {"code", "message", "data"}: code 0 with message "success" for
successful calls, or a business code from package errs with its client-facing message.
Error bodies also echo the request id assigned by the router so a report can be matched
to the server log line.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
)

// JSONResponse is the response envelope.
type JSONResponse struct {
	// Code is 0 on success, otherwise a business code from package errs.
	Code int `json:"code"`

	// Message is "success" or a client-facing error description.
	Message string `json:"message"`

	// Data is the payload of a successful call.
	Data any `json:"data,omitempty"`

	// RequestID identifies the request in server logs. Only set on errors.
	RequestID string `json:"requestId,omitempty"`
}

// RespondJSON encodes payload with the given status.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		logx.Ctx(r.Context()).Error().Err(err).Int("http_status", httpStatus).Msg("Error encoding JSON response")
		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "application/json")
	header.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(httpStatus)
	w.Write(body)
}

// RespondSuccess sends data with HTTP 200.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	RespondCreated(w, r, http.StatusOK, data)
}

// RespondCreated sends data with an explicit 2xx status, e.g. 201 after signup.
func RespondCreated(w http.ResponseWriter, r *http.Request, httpStatus int, data any) {
	RespondJSON(w, r, httpStatus, JSONResponse{Message: "success", Data: data})
}

// RespondError sends a business error. A nil error is reported as ErrUnknown.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	RespondJSON(w, r, customErr.Status, JSONResponse{
		Code:      customErr.Code,
		Message:   customErr.Message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// RespondErr sends any error returned by the service layer. Business errors keep their
// code and status; everything else is reported as a generic failure and logged with the
// request-scoped logger.
func RespondErr(w http.ResponseWriter, r *http.Request, err error) {
	customErr := errs.From(err)
	if customErr != nil && customErr.Code == errs.ErrUnknown {
		logx.Ctx(r.Context()).Error().Err(err).Msg("Request failed with an unclassified error")
	}
	RespondError(w, r, customErr)
}
