package ble

import (
	"context"
	"fmt"
	"time"

	"github.com/chaz8081/struk/internal/ble/protocol"
)

// DefaultChunkDelay is the pause between chunk writes. Cheap printers drop
// bytes when their receive buffer is fed faster than this.
const DefaultChunkDelay = 40 * time.Millisecond

// DefaultWriteTimeout bounds a single chunk write.
const DefaultWriteTimeout = 5 * time.Second

// Transport streams a payload to a characteristic in bounded, paced chunks.
// The zero value uses the defaults.
type Transport struct {
	ChunkSize    int           // bytes per write (default 150)
	Delay        time.Duration // pause between writes (default 40ms)
	WriteTimeout time.Duration // per-chunk bound (default 5s)

	// sleep waits between chunks. Tests swap it for a recording fake.
	sleep func(ctx context.Context, d time.Duration) error
}

func (t Transport) withDefaults() Transport {
	if t.ChunkSize <= 0 {
		t.ChunkSize = protocol.DefaultChunkSize
	}
	if t.Delay <= 0 {
		t.Delay = DefaultChunkDelay
	}
	if t.WriteTimeout <= 0 {
		t.WriteTimeout = DefaultWriteTimeout
	}
	if t.sleep == nil {
		t.sleep = sleepCtx
	}
	return t
}

// Write sends data to ch chunk by chunk, waiting for each write to complete
// before pacing and issuing the next. The first failing chunk aborts the
// rest and a *WriteError carrying the number of bytes already written is
// returned. Failed writes are never retried: the printer may already have
// printed part of the payload.
func (t Transport) Write(ctx context.Context, ch Characteristic, data []byte) error {
	t = t.withDefaults()

	chunks := protocol.ChunkBytes(data, t.ChunkSize)
	offset := 0
	for i, chunk := range chunks {
		if i > 0 {
			if err := t.sleep(ctx, t.Delay); err != nil {
				return &WriteError{Offset: offset, Err: err}
			}
		}
		if err := t.writeOne(ch, chunk); err != nil {
			return &WriteError{Offset: offset, Err: err}
		}
		offset += len(chunk)
	}
	return nil
}

// writeOne issues one chunk write bounded by WriteTimeout. A write that
// times out is abandoned and the backend call keeps running in its
// goroutine, so the characteristic must not be written again.
func (t Transport) writeOne(ch Characteristic, chunk []byte) error {
	done := make(chan error, 1)
	go func() {
		done <- ch.Write(chunk)
	}()

	timer := time.NewTimer(t.WriteTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("%w after %s: %w", ErrChunkTimeout, t.WriteTimeout, context.DeadlineExceeded)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
