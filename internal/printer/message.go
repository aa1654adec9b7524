package printer

import (
	"context"
	"errors"
	"fmt"

	"github.com/chaz8081/struk/internal/ble"
)

// Message returns a short notification for err suitable for showing to a
// cashier. It returns "" for nil.
func Message(err error) string {
	var werr *ble.WriteError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ble.ErrDiscoveryCancelled):
		return "Printer selection cancelled."
	case errors.Is(err, ble.ErrDiscoveryUnsupported):
		return "Bluetooth is not available on this device."
	case errors.Is(err, ble.ErrNoDevicesFound):
		return "No printer found. Make sure it is on and nearby."
	case errors.Is(err, ble.ErrCharacteristicNotFound):
		return "This printer is not supported."
	case errors.Is(err, ble.ErrAlreadyConnected):
		return "A printer is already connected. Disconnect it first."
	case errors.Is(err, ble.ErrNotConnected):
		return "No printer connected. Connect a printer in Printer settings."
	case errors.As(err, &werr):
		if werr.Offset > 0 {
			return fmt.Sprintf("Printing stopped after %d bytes. The receipt may be incomplete; check the printer.", werr.Offset)
		}
		return "Failed to print to bluetooth printer. Please check Printer settings."
	case errors.Is(err, context.DeadlineExceeded):
		return "The printer did not respond in time."
	default:
		return "Failed to print to bluetooth printer. Please check Printer settings."
	}
}
