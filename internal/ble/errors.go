package ble

import (
	"errors"
	"fmt"
)

var (
	// ErrDiscoveryCancelled means the user dismissed the device chooser.
	// It is an outcome, not a failure.
	ErrDiscoveryCancelled = errors.New("ble: discovery cancelled")
	// ErrDiscoveryUnsupported means the host has no usable Bluetooth adapter.
	ErrDiscoveryUnsupported = errors.New("ble: bluetooth not supported on this host")
	// ErrNoDevicesFound means a scan finished without a matching printer.
	ErrNoDevicesFound = errors.New("ble: no printers found")
	// ErrCharacteristicNotFound means none of the known service/characteristic
	// pairs exist on the device.
	ErrCharacteristicNotFound = errors.New("ble: no writable printer characteristic found")
	// ErrAlreadyConnected is returned by Connect while a printer is connected.
	ErrAlreadyConnected = errors.New("ble: printer already connected")
	// ErrNotConnected is returned by writes with no active connection.
	ErrNotConnected = errors.New("ble: printer not connected")
	// ErrChunkTimeout means a chunk write did not return within the write
	// timeout. It also matches context.DeadlineExceeded.
	ErrChunkTimeout = errors.New("ble: chunk write timed out")
	// ErrTransportWriteFailed matches every *WriteError.
	ErrTransportWriteFailed = errors.New("ble: transport write failed")
)

// WriteError reports a chunk write that failed part way through a payload.
// Offset is the number of bytes already accepted by the printer, so the
// receipt may have been partially printed.
type WriteError struct {
	Offset int
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ble: transport write failed at byte %d: %v", e.Offset, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is reports ErrTransportWriteFailed as matching.
func (e *WriteError) Is(target error) bool { return target == ErrTransportWriteFailed }

// IsCancelled reports whether err means the user backed out of discovery.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrDiscoveryCancelled)
}
