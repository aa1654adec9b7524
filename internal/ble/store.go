package ble

import "context"

// SavedPrinter is the last successfully connected printer, kept across
// restarts for silent reconnection.
type SavedPrinter struct {
	Name    string `yaml:"printer_name" json:"printer_name"`
	Address string `yaml:"printer_address" json:"printer_address"`
}

// Valid reports whether both fields are present. A record missing either
// one is treated as no saved printer.
func (p SavedPrinter) Valid() bool {
	return p.Name != "" && p.Address != ""
}

//go:generate mockgen -source=store.go -destination=store_mock_test.go -package=ble
type Store interface {
	// Load returns the saved printer. ok is false when none is saved.
	Load(ctx context.Context) (p SavedPrinter, ok bool, err error)
	Save(ctx context.Context, p SavedPrinter) error
	Clear(ctx context.Context) error
}
