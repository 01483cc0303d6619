package http

import (
	"encoding/json"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// result is the envelope every API response is wrapped in.
type result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Entity  any    `json:"entity,omitempty"`
}

type listResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Items      any    `json:"items"`
	NextCursor *int64 `json:"nextCursor"`
	TotalCount int64  `json:"totalCount"`
}

type spendingResult struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Items   []core.BudgetSpending `json:"items"`
	Report  *core.BudgetReport    `json:"report,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindUnauthenticated:
		return http.StatusUnauthorized
	case core.KindInvalidArgument:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError converts err into a failure envelope. Internal causes are
// logged and replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)
	if kind == core.KindInternal {
		log.LogError(r.Context(), "Request failed", err, r.Method,
			log.NewFields().WithComponent(log.ComponentHTTP).WithHTTPRequest(r.Method, r.URL.Path, "", ""))
	}
	writeJSON(w, statusFor(kind), result{Success: false, Message: core.MessageOf(err)})
}
