package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"

	"ticket-market/internal/status"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{status.ErrNotFound, http.StatusNotFound},
	{status.ErrNotOwner, http.StatusForbidden},
	{status.ErrNotForSale, http.StatusConflict},
	{status.ErrPriceMismatch, http.StatusConflict},
	{status.ErrBusy, http.StatusConflict},
	{status.ErrConnectInProgress, http.StatusConflict},
	{status.ErrUserRejected, http.StatusConflict},
	{status.ErrInvalidPrice, http.StatusBadRequest},
	{status.ErrInvalidAddress, http.StatusBadRequest},
	{status.ErrNoCaller, http.StatusBadRequest},
	{status.ErrNotConnected, http.StatusPreconditionFailed},
	{status.ErrWrongNetwork, http.StatusPreconditionFailed},
	{status.ErrUnregisteredNetwork, http.StatusBadRequest},
	{status.ErrProviderUnavailable, http.StatusServiceUnavailable},
	{status.ErrCircuitOpen, http.StatusServiceUnavailable},
	{status.ErrTransactionFailed, http.StatusBadGateway},
	{status.ErrTokenIDMissing, http.StatusBadGateway},
}

// StatusFor maps a service error onto an HTTP status code.
func StatusFor(err error) int {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// apiError converts a service error into the PocketBase error response.
func apiError(err error) error {
	code := StatusFor(err)
	if code == http.StatusInternalServerError {
		return apis.NewInternalServerError("Something went wrong", err)
	}
	return apis.NewApiError(code, err.Error(), nil)
}
