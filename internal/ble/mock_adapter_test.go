package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// mockCharacteristic records writes and can fail a given write.
type mockCharacteristic struct {
	mu      sync.Mutex
	writes  [][]byte
	failOn  int           // 1-based write index that fails; 0 never fails
	blockOn int           // 1-based write index that never returns
	delay   time.Duration // per-write latency
}

func (c *mockCharacteristic) Write(data []byte) error {
	c.mu.Lock()
	n := len(c.writes) + 1
	failOn, blockOn, delay := c.failOn, c.blockOn, c.delay
	c.mu.Unlock()

	if n == blockOn {
		select {}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if n == failOn {
		c.mu.Lock()
		c.writes = append(c.writes, nil)
		c.mu.Unlock()
		return errors.New("mock: gatt write rejected")
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	c.mu.Lock()
	c.writes = append(c.writes, cp)
	c.mu.Unlock()
	return nil
}

func (c *mockCharacteristic) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// mockConnection simulates a BLE connection exposing the characteristics
// in chars, keyed by "service/characteristic".
type mockConnection struct {
	mu           sync.Mutex
	address      string
	chars        map[string]*mockCharacteristic
	tried        []GATTPair
	disconnectCb func()
	disconnected bool
}

func newMockConnection(address string, pairs ...GATTPair) *mockConnection {
	c := &mockConnection{address: address, chars: make(map[string]*mockCharacteristic)}
	for _, p := range pairs {
		c.chars[p.Service+"/"+p.Characteristic] = &mockCharacteristic{}
	}
	return c
}

func (c *mockConnection) DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tried = append(c.tried, GATTPair{Service: serviceUUID, Characteristic: charUUID})
	ch, ok := c.chars[serviceUUID+"/"+charUUID]
	if !ok {
		return nil, fmt.Errorf("mock: characteristic %s not found", charUUID)
	}
	return ch, nil
}

func (c *mockConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *mockConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// SimulateDisconnect triggers the disconnect callback.
func (c *mockConnection) SimulateDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (c *mockConnection) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// char returns the characteristic for p, or nil.
func (c *mockConnection) char(p GATTPair) *mockCharacteristic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chars[p.Service+"/"+p.Characteristic]
}

// mockAdapter simulates the BLE adapter. Every Connect returns a fresh
// connection exposing pairs.
type mockAdapter struct {
	mu          sync.Mutex
	devices     []Device
	pairs       []GATTPair
	enableErr   error
	connectErr  error
	failConnect int // number of Connect calls that fail before succeeding
	hangConnect bool
	connects    int
	connection  *mockConnection // most recent connection for test assertions
	scanned     []string
}

func newMockAdapter(devices []Device) *mockAdapter {
	return &mockAdapter{
		devices: devices,
		pairs:   []GATTPair{DefaultCandidates[0]},
	}
}

func (a *mockAdapter) Enable() error { return a.enableErr }

func (a *mockAdapter) Scan(_ context.Context, services []string) ([]Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanned = services
	return a.devices, nil
}

func (a *mockAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	a.mu.Lock()
	a.connects++
	hang := a.hangConnect
	if a.connectErr != nil || a.failConnect > 0 {
		if a.failConnect > 0 {
			a.failConnect--
		}
		err := a.connectErr
		if err == nil {
			err = errors.New("mock: peripheral not reachable")
		}
		a.mu.Unlock()
		return nil, err
	}
	a.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	conn := newMockConnection(address, a.pairs...)
	a.mu.Lock()
	a.connection = conn
	a.mu.Unlock()
	return conn, nil
}

// latestConnection returns the most recently created connection (thread-safe).
func (a *mockAdapter) latestConnection() *mockConnection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connection
}

func (a *mockAdapter) connectCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connects
}

// memStore is an in-memory Store.
type memStore struct {
	mu    sync.Mutex
	saved *SavedPrinter
}

func (s *memStore) Load(_ context.Context) (SavedPrinter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		return SavedPrinter{}, false, nil
	}
	return *s.saved, true, nil
}

func (s *memStore) Save(_ context.Context, p SavedPrinter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = &p
	return nil
}

func (s *memStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = nil
	return nil
}

func (s *memStore) get() *SavedPrinter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// recordingSleeper records requested delays and returns immediately.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func TestMockAdapterImplementsInterface(t *testing.T) {
	var _ Adapter = (*mockAdapter)(nil)
}

func TestMockConnectionImplementsInterface(t *testing.T) {
	var _ Connection = (*mockConnection)(nil)
}

func TestMockCharacteristicImplementsInterface(t *testing.T) {
	var _ Characteristic = (*mockCharacteristic)(nil)
}

func TestMemStoreImplementsInterface(t *testing.T) {
	var _ Store = (*memStore)(nil)
	var _ Store = (*MockStore)(nil)
}
