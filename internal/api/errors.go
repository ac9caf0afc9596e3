package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/rail-logic-core/internal/dispatcher"
	"github.com/nerrad567/rail-logic-core/internal/interlock"
	"github.com/nerrad567/rail-logic-core/internal/loco"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeTimeout      = "timeout"
	ErrCodeInternal     = "internal_error"
	ErrCodeUnavailable  = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// conflictErrors are interlocking refusals: the request was valid but the
// layout is not in a state that allows it.
var conflictErrors = []error{
	interlock.ErrNotFree,
	interlock.ErrHolderMismatch,
	interlock.ErrNotReserved,
	interlock.ErrNotLocked,
	interlock.ErrBoosterStopped,
	interlock.ErrTrackBlocked,
	interlock.ErrTrackOccupied,
	interlock.ErrTrackInUse,
	interlock.ErrOrientation,
	interlock.ErrConditionFailed,
	interlock.ErrRouteInUse,
	interlock.ErrRouteNotFree,
	interlock.ErrCounterLimit,
	loco.ErrNotOnTrack,
	loco.ErrErrorState,
	loco.ErrAlreadyRunning,
	loco.ErrNotManual,
	loco.ErrTrackAlreadySet,
	dispatcher.ErrRouteNotHeld,
}

// writeDispatchError maps a dispatcher operation error to a response.
func (s *Server) writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dispatcher.ErrNotFound), errors.Is(err, interlock.ErrNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, loco.ErrInvalidMode), errors.Is(err, loco.ErrInvalidTimetable):
		writeBadRequest(w, err.Error())
	case errors.Is(err, dispatcher.ErrManualModeTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())
	case isConflict(err):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		s.logger.Error("dispatcher operation failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", requestID(r),
		)
		writeInternalError(w, "operation failed")
	}
}

func isConflict(err error) bool {
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
