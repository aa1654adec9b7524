// Package spp drives printers over a Bluetooth SPP (RFCOMM) or USB serial
// port. It implements ble.Adapter so the connection manager, transport and
// discovery treat a serial printer exactly like a BLE one.
package spp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/chaz8081/struk/internal/ble"
)

// DefaultBaudRate suits most 58mm thermal printers.
const DefaultBaudRate = 9600

// port is the subset of serial.Port the adapter uses.
type port interface {
	Write(p []byte) (int, error)
	Drain() error
	Close() error
}

// Adapter exposes serial ports as printer devices.
type Adapter struct {
	BaudRate int
	// Patterns restricts listed ports by base name (filepath.Match syntax).
	// Empty means DefaultPatterns.
	Patterns []string

	list func() ([]string, error)
	open func(name string, mode *serial.Mode) (port, error)
}

// DefaultPatterns match Bluetooth RFCOMM bindings and USB serial printers.
var DefaultPatterns = []string{"rfcomm*", "ttyUSB*", "ttyACM*", "cu.*", "COM*"}

// NewAdapter returns a serial adapter opening ports at baudRate.
func NewAdapter(baudRate int) *Adapter {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	return &Adapter{
		BaudRate: baudRate,
		list:     serial.GetPortsList,
		open: func(name string, mode *serial.Mode) (port, error) {
			return serial.Open(name, mode)
		},
	}
}

// Enable checks that the host can enumerate serial ports.
func (a *Adapter) Enable() error {
	if _, err := a.list(); err != nil {
		return fmt.Errorf("spp: list ports: %w", err)
	}
	return nil
}

// Scan lists matching ports. Services are ignored: a serial port has none.
func (a *Adapter) Scan(_ context.Context, _ []string) ([]ble.Device, error) {
	names, err := a.ports()
	if err != nil {
		return nil, err
	}
	devices := make([]ble.Device, 0, len(names))
	for _, n := range names {
		devices = append(devices, ble.Device{Name: filepath.Base(n), Address: n})
	}
	return devices, nil
}

func (a *Adapter) ports() ([]string, error) {
	all, err := a.list()
	if err != nil {
		return nil, fmt.Errorf("spp: list ports: %w", err)
	}
	patterns := a.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	var out []string
	for _, name := range all {
		base := filepath.Base(name)
		for _, p := range patterns {
			if ok, _ := filepath.Match(p, base); ok {
				out = append(out, name)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Init implements ble.RawSource.
func (a *Adapter) Init(_ context.Context) error { return a.Enable() }

// Collect implements ble.RawSource, reporting ports in the vendor map
// shape used by native printer bridges.
func (a *Adapter) Collect(_ context.Context) ([]any, error) {
	names, err := a.ports()
	if err != nil {
		return nil, err
	}
	raws := make([]any, 0, len(names))
	for _, n := range names {
		raws = append(raws, map[string]string{
			"device_name":       filepath.Base(n),
			"inner_mac_address": n,
		})
	}
	return raws, nil
}

// Connect opens the port at address. Opening an RFCOMM binding pages the
// remote device, which can block for several seconds; ctx bounds the wait.
func (a *Adapter) Connect(ctx context.Context, address string) (ble.Connection, error) {
	mode := &serial.Mode{
		BaudRate: a.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	type openResult struct {
		p   port
		err error
	}
	ch := make(chan openResult, 1)
	go func() {
		p, err := a.open(address, mode)
		ch <- openResult{p, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			// Close the port if the open completes after we gave up.
			if r := <-ch; r.err == nil {
				r.p.Close()
			}
		}()
		return nil, fmt.Errorf("spp: open %s: %w", address, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("spp: open %s: %w", address, r.err)
		}
		slog.Debug("[SPP] port opened", "port", address, "baud", a.BaudRate)
		return &connection{port: r.p, name: address}, nil
	}
}

var (
	_ ble.Adapter   = (*Adapter)(nil)
	_ ble.RawSource = (*Adapter)(nil)
)

type connection struct {
	port port
	name string

	mu     sync.Mutex
	onDrop func()
	closed bool
}

// DiscoverCharacteristic returns the port itself for any pair, so the first
// candidate always resolves.
func (c *connection) DiscoverCharacteristic(_, _ string) (ble.Characteristic, error) {
	return c, nil
}

func (c *connection) Write(data []byte) error {
	for len(data) > 0 {
		n, err := c.port.Write(data)
		if err != nil {
			c.checkClosed(err)
			return fmt.Errorf("spp: write %s: %w", c.name, err)
		}
		data = data[n:]
	}
	if err := c.port.Drain(); err != nil {
		c.checkClosed(err)
		return fmt.Errorf("spp: drain %s: %w", c.name, err)
	}
	return nil
}

// checkClosed reports a vanished port (RFCOMM link dropped, cable pulled)
// as a lost connection.
func (c *connection) checkClosed(err error) {
	var perr *serial.PortError
	if !errors.As(err, &perr) || perr.Code() != serial.PortClosed {
		if !strings.Contains(err.Error(), "input/output error") {
			return
		}
	}
	c.mu.Lock()
	cb := c.onDrop
	already := c.closed
	c.closed = true
	c.mu.Unlock()
	if cb != nil && !already {
		cb()
	}
}

func (c *connection) Disconnect() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.port.Close()
}

func (c *connection) OnDisconnect(cb func()) {
	c.mu.Lock()
	c.onDrop = cb
	c.mu.Unlock()
}
