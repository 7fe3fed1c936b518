package httpx

import (
	"errors"
	"net/http"

	"github.com/optilab/optilab-api/internal/data"
	apperrors "github.com/optilab/optilab-api/internal/errors"
)

// sentinelCodes maps repository sentinel errors onto application error codes.
// Repositories translate pgx.ErrNoRows into these before the service layer
// wraps them, so errors.Is sees them through the wrap chain.
var sentinelCodes = []struct { //nolint:gochecknoglobals // read-only lookup table
	err  error
	code apperrors.ErrorCode
}{
	{data.ErrModelNotFound, apperrors.ErrCodeNotFound},
	{data.ErrDataFileNotFound, apperrors.ErrCodeNotFound},
	{data.ErrJobNotFound, apperrors.ErrCodeNotFound},
	{data.ErrRunNotFound, apperrors.ErrCodeNotFound},
	{data.ErrModelNameExists, apperrors.ErrCodeConflict},
}

// classify maps any service error onto an AppError the transport can
// translate. Database errors are mapped first so constraint violations
// surface as conflict/foreign_key instead of opaque internals.
func classify(err error) *apperrors.AppError {
	mapped := apperrors.MapDBError(err)

	var appErr *apperrors.AppError
	if errors.As(mapped, &appErr) {
		return appErr
	}

	for _, s := range sentinelCodes {
		if errors.Is(mapped, s.err) {
			return &apperrors.AppError{Code: s.code, Message: s.err.Error(), Cause: mapped}
		}
	}

	return &apperrors.AppError{
		Code:    apperrors.ErrCodeInternal,
		Message: "An internal error occurred. Please try again.",
		Cause:   mapped,
	}
}

// statusForCode maps application error codes onto HTTP status codes.
func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict, apperrors.ErrCodeForeignKey:
		return http.StatusConflict
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteAppError classifies err and writes the JSON error body. Validation
// causes restate the caller's own input, so the full chain is returned;
// every other cause stays server-side and only the classified message is
// sent.
func WriteAppError(w http.ResponseWriter, err error) {
	appErr := classify(err)

	msg := appErr.Message
	if appErr.Code == apperrors.ErrCodeValidation {
		msg = appErr.Error()
	}

	WriteError(w, ErrorParams{
		Code:    statusForCode(appErr.Code),
		ErrCode: string(appErr.Code),
		Err:     errors.New(msg),
		Field:   appErr.Field,
	})
}
