// Package ble finds Bluetooth Low Energy receipt printers, owns the single
// active printer connection, and streams receipt bytes to it in paced chunks.
package ble

import "context"

// GATTPair is a (service, characteristic) UUID pair that accepts print data.
type GATTPair struct {
	Service        string `yaml:"service" json:"service"`
	Characteristic string `yaml:"characteristic" json:"characteristic"`
}

// DefaultCandidates lists the writable characteristics found on common
// 58mm BLE printers, in the order they are tried.
var DefaultCandidates = []GATTPair{
	// ISSC transparent UART (RPP02N, MTP-II and most "BlueTooth Printer" clones)
	{Service: "49535343-fe7d-4ae5-8fa9-9fafd205e455", Characteristic: "49535343-8841-43f4-a8d4-ecbe34729bb3"},
	{Service: "000018f0-0000-1000-8000-00805f9b34fb", Characteristic: "00002af1-0000-1000-8000-00805f9b34fb"},
	// HM-10 style serial bridge
	{Service: "0000ffe0-0000-1000-8000-00805f9b34fb", Characteristic: "0000ffe1-0000-1000-8000-00805f9b34fb"},
}

// DefaultNamePrefixes are the advertised name prefixes accepted by the
// device chooser.
var DefaultNamePrefixes = []string{"RPP", "MTP", "POS", "BT", "Printer"}

// Characteristic is a writable GATT characteristic (or any byte channel
// that behaves like one).
type Characteristic interface {
	// Write sends one chunk. It returns once the backend accepted the data.
	Write(data []byte) error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name     string   `json:"name"`
	Address  string   `json:"address"`
	RSSI     int      `json:"rssi,omitempty"`
	Services []string `json:"services,omitempty"` // advertised service UUIDs we recognized
}

// Connection represents an active link to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the link drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the Bluetooth hardware for testing.
type Adapter interface {
	// Enable powers on the adapter.
	Enable() error
	// Scan returns peripherals seen until ctx is done, de-duplicated by
	// address. Devices advertising one of services get them listed in
	// Device.Services.
	Scan(ctx context.Context, services []string) ([]Device, error)
	// Connect establishes a connection to the device at address.
	Connect(ctx context.Context, address string) (Connection, error)
}
