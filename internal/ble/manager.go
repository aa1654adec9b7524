package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateEvent is delivered to OnStateChange listeners after every transition.
type StateEvent struct {
	State  State  `json:"state"`
	Device Device `json:"device"`
	Error  string `json:"error,omitempty"`
}

// ManagerOptions configures the connection manager.
type ManagerOptions struct {
	ConnectTimeout    time.Duration // bound on a single connect attempt (default 15s)
	Candidates        []GATTPair    // tried in order (default DefaultCandidates)
	ReconnectAttempts int           // startup auto-reconnect attempts (default 1)
	ReconnectMax      int           // max reconnect backoff in seconds (default 30)
	ReconnectOnDrop   bool          // re-establish the link after connection loss
	Transport         Transport
}

// DefaultManagerOptions returns sensible defaults.
func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		ConnectTimeout:    15 * time.Second,
		Candidates:        DefaultCandidates,
		ReconnectAttempts: 1,
		ReconnectMax:      30,
	}
}

// Manager owns at most one printer connection. Connect, Disconnect and
// Write share a single operation slot, so a write never overlaps a
// connection change and two payloads never interleave on the channel.
// Waiters are served in arrival order.
type Manager struct {
	adapter Adapter
	store   Store // may be nil
	opts    ManagerOptions

	slot chan struct{}

	mu        sync.Mutex
	state     State
	device    Device
	conn      Connection
	char      Characteristic
	pair      GATTPair
	enabled   bool
	listeners map[int]func(StateEvent)
	nextID    int

	reconnectLoops atomic.Int32
	stopReconnect  context.CancelFunc // guarded by mu
	ctx            context.Context
	cancel         context.CancelFunc
	closeOnce      sync.Once

	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager creates a connection manager. store may be nil, in which case
// nothing is persisted and AutoReconnect is a no-op.
func NewManager(adapter Adapter, store Store, opts ManagerOptions) *Manager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 15 * time.Second
	}
	if len(opts.Candidates) == 0 {
		opts.Candidates = DefaultCandidates
	}
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = 1
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		adapter:   adapter,
		store:     store,
		opts:      opts,
		slot:      make(chan struct{}, 1),
		listeners: make(map[int]func(StateEvent)),
		ctx:       ctx,
		cancel:    cancel,
		sleep:     sleepCtx,
	}
}

func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() { <-m.slot }

// Connect connects to dev and negotiates a writable characteristic from
// the candidate list. It fails with ErrAlreadyConnected while a printer is
// connected; the existing connection is left untouched.
func (m *Manager) Connect(ctx context.Context, dev Device) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()
	// The slot may be granted after ctx ended.
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.state == StateConnected {
		current := m.device
		m.mu.Unlock()
		return fmt.Errorf("ble: connect to %s: %w (active: %s)", dev.Address, ErrAlreadyConnected, current.Address)
	}
	m.mu.Unlock()

	if err := m.enable(); err != nil {
		return err
	}

	m.transition(StateConnecting, dev, nil)

	conn, char, pair, err := m.open(ctx, dev)
	if err != nil {
		m.transition(StateDisconnected, dev, err)
		return err
	}

	conn.OnDisconnect(m.dropHandler(conn))

	m.mu.Lock()
	m.device = dev
	m.conn = conn
	m.char = char
	m.pair = pair
	fns := m.setStateLocked(StateConnected)
	m.mu.Unlock()

	notify(fns, StateConnected, dev, nil)
	slog.Info("[BLE] connected", "name", dev.Name, "address", dev.Address, "service", pair.Service)

	if m.store != nil {
		saved := SavedPrinter{Name: dev.Name, Address: dev.Address}
		if saved.Name == "" {
			saved.Name = dev.Address
		}
		if err := m.store.Save(ctx, saved); err != nil {
			slog.Warn("[BLE] failed to persist printer", "address", dev.Address, "error", err)
		}
	}
	return nil
}

func (m *Manager) enable() error {
	m.mu.Lock()
	enabled := m.enabled
	m.mu.Unlock()
	if enabled {
		return nil
	}
	if err := m.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w: %w", ErrDiscoveryUnsupported, err)
	}
	m.mu.Lock()
	m.enabled = true
	m.mu.Unlock()
	return nil
}

// open establishes the link and walks the candidate pairs, all within
// ConnectTimeout. On failure the link is torn down.
func (m *Manager) open(ctx context.Context, dev Device) (Connection, Characteristic, GATTPair, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	conn, err := m.adapter.Connect(ctx, dev.Address)
	if err != nil {
		return nil, nil, GATTPair{}, fmt.Errorf("ble: connect to %s: %w", dev.Address, err)
	}

	for _, pair := range m.opts.Candidates {
		if err := ctx.Err(); err != nil {
			conn.Disconnect()
			return nil, nil, GATTPair{}, fmt.Errorf("ble: negotiate %s: %w", dev.Address, err)
		}
		char, err := conn.DiscoverCharacteristic(pair.Service, pair.Characteristic)
		if err != nil {
			slog.Debug("[BLE] candidate not present", "service", pair.Service, "characteristic", pair.Characteristic, "error", err)
			continue
		}
		return conn, char, pair, nil
	}

	if err := conn.Disconnect(); err != nil {
		slog.Debug("[BLE] disconnect after failed negotiation", "error", err)
	}
	return nil, nil, GATTPair{}, fmt.Errorf("ble: %s: %w", dev.Address, ErrCharacteristicNotFound)
}

// dropHandler returns the connection-lost callback for conn. It clears the
// in-memory connection but keeps the persisted printer.
func (m *Manager) dropHandler(conn Connection) func() {
	return func() {
		m.mu.Lock()
		if m.conn != conn {
			// Deliberate disconnect or a superseded link.
			m.mu.Unlock()
			return
		}
		dev := m.device
		m.clearLocked()
		fns := m.setStateLocked(StateDisconnected)
		var (
			ctx    context.Context
			cancel context.CancelFunc
		)
		if m.opts.ReconnectOnDrop && m.ctx.Err() == nil {
			ctx, cancel = m.startReconnectLocked()
		}
		m.mu.Unlock()

		slog.Warn("[BLE] printer connection lost", "address", dev.Address)
		notify(fns, StateDisconnected, dev, errors.New("connection lost"))

		if ctx != nil {
			go m.reconnectLoop(ctx, cancel, dev)
		}
	}
}

// startReconnectLocked replaces any running reconnect loop with a new one.
// The cancel func is published before the loop starts, so a Disconnect
// that follows the drop always stops it.
func (m *Manager) startReconnectLocked() (context.Context, context.CancelFunc) {
	m.stopReconnectLocked()
	ctx, cancel := context.WithCancel(m.ctx)
	m.stopReconnect = cancel
	m.reconnectLoops.Add(1)
	return ctx, cancel
}

func (m *Manager) stopReconnectLocked() {
	if m.stopReconnect != nil {
		m.stopReconnect()
		m.stopReconnect = nil
	}
}

func (m *Manager) clearLocked() {
	m.conn = nil
	m.char = nil
	m.pair = GATTPair{}
	m.device = Device{}
}

// Disconnect tears down the active link, if any, stops reconnecting and
// forgets the saved printer. Calling it while disconnected only clears the
// saved printer.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	m.stopReconnectLocked()
	m.mu.Unlock()

	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	m.mu.Lock()
	// A drop may have started a new loop while we waited for the slot.
	m.stopReconnectLocked()
	conn := m.conn
	dev := m.device
	m.clearLocked()
	var fns []func(StateEvent)
	if conn != nil {
		fns = m.setStateLocked(StateDisconnected)
	}
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			slog.Warn("[BLE] disconnect", "address", dev.Address, "error", err)
		}
		notify(fns, StateDisconnected, dev, nil)
		slog.Info("[BLE] disconnected", "address", dev.Address)
	}

	if m.store != nil {
		if err := m.store.Clear(ctx); err != nil {
			return fmt.Errorf("ble: clear saved printer: %w", err)
		}
	}
	return nil
}

// Write streams data to the connected printer through the configured
// Transport. Concurrent writers queue behind each other. A chunk that times
// out drops the link: the backend may still be busy with it, and nothing
// else may reach the characteristic until a fresh connection is made.
func (m *Manager) Write(ctx context.Context, data []byte) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	m.mu.Lock()
	char := m.char
	connected := m.state == StateConnected && char != nil
	m.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	err := m.opts.Transport.Write(ctx, char, data)
	if errors.Is(err, ErrChunkTimeout) {
		m.abandon(char, err)
	}
	return err
}

// abandon drops the link behind char after a stuck write. The saved
// printer is kept.
func (m *Manager) abandon(char Characteristic, cause error) {
	m.mu.Lock()
	if m.char != char {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	dev := m.device
	m.clearLocked()
	fns := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	slog.Warn("[BLE] printer stopped responding, dropping link", "address", dev.Address, "error", cause)
	// conn is no longer current, so its own drop callback is ignored.
	if err := conn.Disconnect(); err != nil {
		slog.Debug("[BLE] disconnect after stuck write", "error", err)
	}
	notify(fns, StateDisconnected, dev, cause)
}

// AutoReconnect connects to the saved printer by address, without
// discovery. Failures are logged and reported only through the result.
func (m *Manager) AutoReconnect(ctx context.Context) bool {
	if m.store == nil {
		return false
	}
	saved, ok, err := m.store.Load(ctx)
	if err != nil {
		slog.Warn("[BLE] load saved printer", "error", err)
		return false
	}
	if !ok || !saved.Valid() {
		slog.Debug("[BLE] no saved printer")
		return false
	}

	dev := Device{Name: saved.Name, Address: saved.Address}
	for attempt := 0; attempt < m.opts.ReconnectAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt-1, m.opts.ReconnectMax)
			slog.Info("[BLE] reconnect backoff", "attempt", attempt+1, "delay", delay)
			if err := m.sleep(ctx, delay); err != nil {
				return false
			}
		}
		err := m.Connect(ctx, dev)
		if err == nil || errors.Is(err, ErrAlreadyConnected) {
			return true
		}
		slog.Warn("[BLE] auto-reconnect failed", "address", dev.Address, "attempt", attempt+1, "error", err)
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

// reconnectLoop re-establishes a dropped link with exponential backoff
// until it succeeds or ctx is cancelled.
func (m *Manager) reconnectLoop(ctx context.Context, cancel context.CancelFunc, dev Device) {
	defer m.reconnectLoops.Add(-1)
	defer cancel()

	for attempt := 0; ; attempt++ {
		// First attempt is immediate.
		if attempt > 0 {
			delay := backoffDelay(attempt-1, m.opts.ReconnectMax)
			slog.Info("[BLE] reconnect backoff", "attempt", attempt+1, "delay", delay)
			if err := m.sleep(ctx, delay); err != nil {
				return
			}
		}

		err := m.Connect(ctx, dev)
		switch {
		case err == nil:
			slog.Info("[BLE] reconnected", "address", dev.Address)
			return
		case errors.Is(err, ErrAlreadyConnected), ctx.Err() != nil:
			return
		}
		slog.Warn("[BLE] reconnect failed", "error", err, "attempt", attempt+1)
	}
}

// Device returns the connected printer.
func (m *Manager) Device() (Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return Device{}, false
	}
	return m.device, true
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnecting reports whether a connect attempt is in flight.
func (m *Manager) IsConnecting() bool {
	return m.State() == StateConnecting
}

// OnStateChange registers fn for state events and returns a function that
// removes it. Listeners run synchronously and must not block.
func (m *Manager) OnStateChange(fn func(StateEvent)) (remove func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Manager) transition(s State, dev Device, err error) {
	m.mu.Lock()
	fns := m.setStateLocked(s)
	m.mu.Unlock()
	notify(fns, s, dev, err)
}

// setStateLocked sets the state and returns the listeners to notify once
// mu is released.
func (m *Manager) setStateLocked(s State) []func(StateEvent) {
	m.state = s
	fns := make([]func(StateEvent), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(StateEvent), s State, dev Device, err error) {
	ev := StateEvent{State: s, Device: dev}
	if err != nil {
		ev.Error = err.Error()
	}
	for _, fn := range fns {
		fn(ev)
	}
}

// Close stops any reconnect loop and drops the link. The saved printer is
// kept for the next start.
func (m *Manager) Close() error {
	m.closeOnce.Do(m.cancel)

	if err := m.acquire(context.Background()); err != nil {
		return err
	}
	defer m.release()

	m.mu.Lock()
	m.stopReconnectLocked()
	conn := m.conn
	dev := m.device
	m.clearLocked()
	if conn == nil {
		m.mu.Unlock()
		return nil
	}
	fns := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	notify(fns, StateDisconnected, dev, nil)
	if err := conn.Disconnect(); err != nil {
		return fmt.Errorf("ble: disconnect %s: %w", dev.Address, err)
	}
	return nil
}

// backoffDelay returns the reconnection delay for attempt n, capped at maxSeconds.
func backoffDelay(attempt int, maxSeconds int) time.Duration {
	max := time.Duration(maxSeconds) * time.Second
	if attempt >= 30 {
		return max
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > max {
		return max
	}
	return delay
}
