package svcauth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/svcauth/go-svcauth/core"
)

// ErrorHandler is called when the Middleware rejects a request. err is
// usually a *core.Error; branch on its Code or with errors.Is against the
// core sentinels.
//
// DefaultErrorHandler responds with:
//   - 400 when no token was presented
//   - 401 for malformed tokens, unknown key ids, bad signatures and invalid claims
//   - 503 when the public keys could not be fetched
//   - 500 for anything else
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// ErrorResponse is the JSON body written by DefaultErrorHandler.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
}

// DefaultErrorHandler is used when WithErrorHandler is not passed.
// Descriptions never echo the token or key material.
func DefaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	status, resp := mapErrorToResponse(err)

	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func mapErrorToResponse(err error) (int, ErrorResponse) {
	var coreErr *core.Error
	if !errors.As(err, &coreErr) {
		return http.StatusInternalServerError, ErrorResponse{
			Error:            "server_error",
			ErrorDescription: "Something went wrong while checking the token.",
		}
	}

	switch coreErr.Code {
	case core.ErrorCodeTokenMissing:
		return http.StatusBadRequest, ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "Token is missing.",
			ErrorCode:        coreErr.Code,
		}
	case core.ErrorCodeMalformedToken:
		return http.StatusUnauthorized, ErrorResponse{
			Error:            "invalid_token",
			ErrorDescription: "Token is malformed.",
			ErrorCode:        coreErr.Code,
		}
	case core.ErrorCodeUnknownKeyID:
		return http.StatusUnauthorized, ErrorResponse{
			Error:            "invalid_token",
			ErrorDescription: "Token is signed with an unknown key.",
			ErrorCode:        coreErr.Code,
		}
	case core.ErrorCodeInvalidSignature:
		return http.StatusUnauthorized, ErrorResponse{
			Error:            "invalid_token",
			ErrorDescription: "Token signature is invalid.",
			ErrorCode:        coreErr.Code,
		}
	case core.ErrorCodeInvalidClaims:
		description := "Token claims are invalid."
		if coreErr.Field != "" {
			description = "Token claim " + coreErr.Field + " is invalid."
		}
		return http.StatusUnauthorized, ErrorResponse{
			Error:            "invalid_token",
			ErrorDescription: description,
			ErrorCode:        coreErr.Code,
		}
	case core.ErrorCodeKeyFetchFailed:
		return http.StatusServiceUnavailable, ErrorResponse{
			Error:            "temporarily_unavailable",
			ErrorDescription: "Signing keys are unavailable.",
			ErrorCode:        coreErr.Code,
		}
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error:            "server_error",
			ErrorDescription: "Something went wrong while checking the token.",
			ErrorCode:        coreErr.Code,
		}
	}
}
