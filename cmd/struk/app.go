package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/chaz8081/struk/internal/ble"
	"github.com/chaz8081/struk/internal/config"
	"github.com/chaz8081/struk/internal/printer"
	"github.com/chaz8081/struk/internal/receipt"
	"github.com/chaz8081/struk/internal/spp"
	"github.com/chaz8081/struk/internal/store"
)

// app wires the configured backend, the connection manager and the print
// service together.
type app struct {
	cfg     *config.Config
	adapter ble.Adapter
	source  ble.RawSource
	store   *store.FileStore
	manager *ble.Manager
	service *printer.Service
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	switch cfg.Printer.Transport {
	case "serial":
		sa := spp.NewAdapter(cfg.Printer.Serial.BaudRate)
		a.adapter, a.source = sa, sa
	default:
		ta := ble.NewTinyGoAdapter()
		a.adapter = ta
		a.source = ble.AdapterSource{
			Adapter:  ta,
			Services: serviceUUIDs(cfg.Printer.Candidates),
			Timeout:  cfg.Printer.ScanTimeout,
		}
	}

	a.store = store.NewFileStore(cfg.Store.Path)
	a.manager = ble.NewManager(a.adapter, a.store, cfg.Printer.ManagerOptions())

	shop, err := cfg.Shop.Receipt()
	if err != nil {
		return nil, fmt.Errorf("shop timezone: %w", err)
	}
	svc, err := printer.NewService(a.manager, printer.Options{
		Shop:    shop,
		Width:   cfg.Printer.LineWidth,
		Charset: cfg.Printer.Charset,
		Format:  printer.Format(cfg.Printer.Format),
	})
	if err != nil {
		return nil, err
	}
	a.service = svc
	return a, nil
}

func (a *app) discoverer() *ble.Discoverer {
	return &ble.Discoverer{
		Adapter:      a.adapter,
		NamePrefixes: a.cfg.Printer.NamePrefixes,
		Candidates:   a.cfg.Printer.Candidates,
		ScanTimeout:  a.cfg.Printer.ScanTimeout,
	}
}

// scan lists devices from the native source, or from BlueZ's paired list.
func (a *app) scan(ctx context.Context, paired bool) ([]ble.Device, error) {
	src := a.source
	if paired {
		src = ble.BluetoothctlSource{}
	}
	return a.discoverer().ScanDevices(ctx, src)
}

// choose asks the user for a printer. BLE uses the filtered chooser scan;
// serial ports do not advertise names, so every port is offered.
func (a *app) choose(ctx context.Context, picker ble.Picker) (ble.Device, error) {
	if a.cfg.Printer.Transport != "serial" {
		return a.discoverer().RequestDevice(ctx, picker)
	}
	devices, err := a.scan(ctx, false)
	if err != nil {
		return ble.Device{}, err
	}
	if len(devices) == 0 {
		return ble.Device{}, ble.ErrNoDevicesFound
	}
	return picker.Pick(ctx, devices)
}

// ensureConnected reconnects to the saved printer unless already connected.
func (a *app) ensureConnected(ctx context.Context) error {
	if a.manager.State() == ble.StateConnected {
		return nil
	}
	if !a.manager.AutoReconnect(ctx) {
		return fmt.Errorf("no saved printer reachable (run `struk connect`): %w", ble.ErrNotConnected)
	}
	return nil
}

func (a *app) Close() error { return a.manager.Close() }

func serviceUUIDs(cands []ble.GATTPair) []string {
	if len(cands) == 0 {
		cands = ble.DefaultCandidates
	}
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Service)
	}
	return out
}

// readTransaction reads transaction JSON from path, or stdin for "-".
func readTransaction(path string) (receipt.TransactionView, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return receipt.TransactionView{}, err
	}
	return receipt.ParseTransaction(data)
}
