package ble

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultScanTimeout is how long a chooser scan listens for advertisements.
const DefaultScanTimeout = 8 * time.Second

// Picker lets a user choose one device from a list. Implementations return
// ErrDiscoveryCancelled when the user dismisses the chooser.
type Picker interface {
	Pick(ctx context.Context, devices []Device) (Device, error)
}

// PickerFunc adapts a function to Picker.
type PickerFunc func(ctx context.Context, devices []Device) (Device, error)

func (f PickerFunc) Pick(ctx context.Context, devices []Device) (Device, error) {
	return f(ctx, devices)
}

// RawSource produces undecoded scan entries for ScanDevices.
type RawSource interface {
	// Init prepares the backend. An error means scanning is unavailable.
	Init(ctx context.Context) error
	// Collect returns raw device entries in whatever shape the backend uses.
	Collect(ctx context.Context) ([]any, error)
}

// Discoverer finds printers.
type Discoverer struct {
	Adapter      Adapter
	NamePrefixes []string      // default DefaultNamePrefixes
	Candidates   []GATTPair    // default DefaultCandidates
	ScanTimeout  time.Duration // default DefaultScanTimeout
}

func (d *Discoverer) prefixes() []string {
	if len(d.NamePrefixes) == 0 {
		return DefaultNamePrefixes
	}
	return d.NamePrefixes
}

func (d *Discoverer) services() []string {
	cands := d.Candidates
	if len(cands) == 0 {
		cands = DefaultCandidates
	}
	out := make([]string, 0, len(cands))
	seen := make(map[string]bool)
	for _, c := range cands {
		svc := strings.ToLower(c.Service)
		if !seen[svc] {
			seen[svc] = true
			out = append(out, svc)
		}
	}
	return out
}

// RequestDevice scans for printers matching the name prefixes or the
// candidate services and lets picker choose one. It blocks until the user
// picks or backs out; backing out (or ctx ending while picking) returns
// ErrDiscoveryCancelled.
func (d *Discoverer) RequestDevice(ctx context.Context, picker Picker) (Device, error) {
	if err := d.Adapter.Enable(); err != nil {
		return Device{}, fmt.Errorf("ble: enable adapter: %w: %w", ErrDiscoveryUnsupported, err)
	}

	timeout := d.ScanTimeout
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	devices, err := d.Adapter.Scan(scanCtx, d.services())
	cancel()
	if ctx.Err() != nil {
		return Device{}, ErrDiscoveryCancelled
	}
	if err != nil {
		return Device{}, fmt.Errorf("ble: scan: %w", err)
	}

	matches := d.filter(devices)
	slog.Debug("[BLE] scan finished", "seen", len(devices), "printers", len(matches))
	if len(matches) == 0 {
		return Device{}, ErrNoDevicesFound
	}

	dev, err := picker.Pick(ctx, matches)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, ErrDiscoveryCancelled) {
			return Device{}, ErrDiscoveryCancelled
		}
		return Device{}, fmt.Errorf("ble: pick device: %w", err)
	}
	return dev, nil
}

// filter keeps devices whose name carries a printer prefix or which
// advertise a candidate service.
func (d *Discoverer) filter(devices []Device) []Device {
	var out []Device
	for _, dev := range devices {
		if len(dev.Services) > 0 || hasAnyPrefix(dev.Name, d.prefixes()) {
			out = append(out, dev)
		}
	}
	return out
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// ScanDevices initializes src, collects its raw entries and returns the
// ones that normalize to a device, de-duplicated by address. Entries that
// fail to parse are dropped.
func (d *Discoverer) ScanDevices(ctx context.Context, src RawSource) ([]Device, error) {
	if err := src.Init(ctx); err != nil {
		return nil, fmt.Errorf("ble: init scanner: %w: %w", ErrDiscoveryUnsupported, err)
	}

	raws, err := src.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	var devices []Device
	seen := make(map[string]bool)
	for _, raw := range raws {
		dev, ok := ParseDiscoveredDevice(raw)
		if !ok {
			slog.Debug("[BLE] dropping unparseable scan entry", "entry", fmt.Sprintf("%v", raw))
			continue
		}
		key := strings.ToUpper(dev.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		devices = append(devices, dev)
	}
	return devices, nil
}

// AdapterSource feeds an Adapter scan into ScanDevices.
type AdapterSource struct {
	Adapter  Adapter
	Services []string
	Timeout  time.Duration // default DefaultScanTimeout
}

func (s AdapterSource) Init(_ context.Context) error {
	return s.Adapter.Enable()
}

func (s AdapterSource) Collect(ctx context.Context) ([]any, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	devices, err := s.Adapter.Scan(ctx, s.Services)
	if err != nil {
		return nil, err
	}
	raws := make([]any, len(devices))
	for i, d := range devices {
		raws[i] = d
	}
	return raws, nil
}

// BluetoothctlSource lists devices already paired with BlueZ. Classic SPP
// printers show up here even when they do not advertise over BLE.
type BluetoothctlSource struct {
	// Run returns the command output. Defaults to `bluetoothctl devices Paired`.
	Run func(ctx context.Context) ([]byte, error)
}

func (s BluetoothctlSource) Init(_ context.Context) error {
	if s.Run != nil {
		return nil
	}
	_, err := exec.LookPath("bluetoothctl")
	return err
}

func (s BluetoothctlSource) Collect(ctx context.Context) ([]any, error) {
	run := s.Run
	if run == nil {
		run = func(ctx context.Context) ([]byte, error) {
			return exec.CommandContext(ctx, "bluetoothctl", "devices", "Paired").Output()
		}
	}
	out, err := run(ctx)
	if err != nil {
		return nil, fmt.Errorf("bluetoothctl: %w", err)
	}

	var raws []any
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			raws = append(raws, line)
		}
	}
	return raws, sc.Err()
}
