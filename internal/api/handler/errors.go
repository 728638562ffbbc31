package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rahulvgmr/settleq/internal/api/response"
	"github.com/rahulvgmr/settleq/internal/fault"
)

// writeError maps a service error onto the HTTP surface. Kind tags
// translate to 4xx codes; anything untagged is an infrastructure failure
// and surfaces as a 500 without leaking internals.
func writeError(w http.ResponseWriter, err error) {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		slog.Error("request failed", "error", err)
		response.Error(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "An internal error occurred", nil)
		return
	}

	status := http.StatusBadRequest
	switch fe.Kind {
	case fault.InsufficientBalance:
		status = http.StatusPaymentRequired
	case fault.NotFound:
		status = http.StatusNotFound
	case fault.InvalidTransition:
		status = http.StatusConflict
	case fault.Validation, fault.UnknownFixType, fault.InvalidPrecondition:
		status = http.StatusBadRequest
	}

	response.Error(w, status, string(fe.Kind), fe.Message, nil)
}
