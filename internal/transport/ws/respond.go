package ws

import (
	"encoding/json"
	"net/http"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/intent"
)

var httpStatus = map[apperr.Code]int{
	apperr.CodeUnauthorized:    http.StatusUnauthorized,
	apperr.CodeForbidden:       http.StatusForbidden,
	apperr.CodeNotFound:        http.StatusNotFound,
	apperr.CodeInvalidArgument: http.StatusBadRequest,
	apperr.CodeConflict:        http.StatusConflict,
	apperr.CodeUnavailable:     http.StatusServiceUnavailable,
	apperr.CodeInternal:        http.StatusInternalServerError,
}

func StatusFor(err error) int {
	if status, ok := httpStatus[apperr.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), intent.NewResponse("", nil, err))
}
