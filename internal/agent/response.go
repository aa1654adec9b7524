package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/chaz8081/struk/internal/ble"
	"github.com/chaz8081/struk/internal/printer"
)

type devicesResponse struct {
	Devices []ble.Device `json:"devices"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Offset  *int   `json:"offset,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, errorResponse{Error: code, Message: err.Error()})
}

// writeServiceError maps printer errors to a status and a message the
// front-end can show as is.
func writeServiceError(w http.ResponseWriter, err error) {
	resp := errorResponse{Message: printer.Message(err)}
	status := http.StatusBadGateway

	var werr *ble.WriteError
	switch {
	case errors.Is(err, ble.ErrAlreadyConnected):
		status, resp.Error = http.StatusConflict, "already_connected"
	case errors.Is(err, ble.ErrNotConnected):
		status, resp.Error = http.StatusConflict, "not_connected"
	case errors.Is(err, ble.ErrCharacteristicNotFound):
		status, resp.Error = http.StatusUnprocessableEntity, "characteristic_not_found"
	case errors.Is(err, ble.ErrDiscoveryUnsupported):
		status, resp.Error = http.StatusServiceUnavailable, "bluetooth_unavailable"
	case errors.Is(err, ble.ErrNoDevicesFound):
		status, resp.Error = http.StatusNotFound, "no_devices"
	case errors.As(err, &werr):
		offset := werr.Offset
		resp.Error, resp.Offset = "transport_write_failed", &offset
	case errors.Is(err, context.DeadlineExceeded):
		status, resp.Error = http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads this.
		status, resp.Error = 499, "cancelled"
	default:
		resp.Error = "printer_error"
	}
	writeJSON(w, status, resp)
}
