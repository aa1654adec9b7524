// Package printer composes receipts and sends them to the connected
// printer. It is the surface the CLI and the HTTP agent drive.
package printer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/chaz8081/struk/internal/ble"
	"github.com/chaz8081/struk/internal/layout"
	"github.com/chaz8081/struk/internal/receipt"
)

// Format selects how a receipt is rendered.
type Format string

const (
	// FormatPlain pads and centers text itself.
	FormatPlain Format = "plain"
	// FormatTagged emits <C>/<R> tags for drivers that align on their own.
	FormatTagged Format = "tagged"
)

// Printer is the connection the service prints through. *ble.Manager
// satisfies it.
type Printer interface {
	Connect(ctx context.Context, dev ble.Device) error
	Disconnect(ctx context.Context) error
	Write(ctx context.Context, data []byte) error
	Device() (ble.Device, bool)
	State() ble.State
}

// Options configures a Service.
type Options struct {
	Shop    receipt.Shop
	Width   int    // columns; 0 means layout.DefaultWidth
	Charset string // utf-8 (default), cp437, cp850 or cp1252
	Format  Format // default FormatPlain
}

// Job describes a finished print.
type Job struct {
	ID    string        `json:"job_id"`
	Bytes int           `json:"bytes"`
	Total receipt.Money `json:"total"`
}

// Status is a snapshot of the printer connection.
type Status struct {
	State        ble.State   `json:"state"`
	IsConnecting bool        `json:"is_connecting"`
	Device       *ble.Device `json:"device"`
}

// Service prints receipts.
type Service struct {
	printer Printer
	shop    receipt.Shop
	layout  layout.Layout
	encoder *encoding.Encoder // nil sends UTF-8 as is
	format  Format
}

// NewService validates opts and returns a Service.
func NewService(p Printer, opts Options) (*Service, error) {
	enc, err := encoderFor(opts.Charset)
	if err != nil {
		return nil, err
	}
	switch opts.Format {
	case "":
		opts.Format = FormatPlain
	case FormatPlain, FormatTagged:
	default:
		return nil, fmt.Errorf("printer: unknown format %q", opts.Format)
	}
	return &Service{
		printer: p,
		shop:    opts.Shop,
		layout:  layout.New(opts.Width),
		encoder: enc,
		format:  opts.Format,
	}, nil
}

// Charsets lists the supported printer code pages.
var Charsets = map[string]*charmap.Charmap{
	"cp437":  charmap.CodePage437,
	"cp850":  charmap.CodePage850,
	"cp1252": charmap.Windows1252,
}

func encoderFor(name string) (*encoding.Encoder, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "utf-8" || name == "utf8" {
		return nil, nil
	}
	cm, ok := Charsets[name]
	if !ok {
		return nil, fmt.Errorf("printer: unsupported charset %q", name)
	}
	// Characters the code page lacks print as a substitute instead of
	// aborting the receipt.
	return encoding.ReplaceUnsupported(cm.NewEncoder()), nil
}

// Encode converts text to the printer's charset.
func (s *Service) Encode(text string) ([]byte, error) {
	if s.encoder == nil {
		return []byte(text), nil
	}
	b, err := s.encoder.Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("printer: encode: %w", err)
	}
	return b, nil
}

// Render returns the receipt text for tx in the configured format along
// with the recomputed total.
func (s *Service) Render(tx receipt.TransactionView) (string, receipt.Money) {
	if s.format == FormatTagged {
		return receipt.ComposeTagged(tx, s.shop, s.layout), tx.ItemsTotal()
	}
	r := receipt.Compose(tx, s.shop, s.layout)
	return r.String(), r.Total
}

// Preview returns the plain receipt text for tx without printing.
func (s *Service) Preview(tx receipt.TransactionView) string {
	return receipt.Compose(tx, s.shop, s.layout).String()
}

// PrintReceipt renders tx and prints it. A failure part way through is
// returned as is (see ble.WriteError); it is never retried because the
// printed part would be duplicated.
func (s *Service) PrintReceipt(ctx context.Context, tx receipt.TransactionView) (Job, error) {
	text, total := s.Render(tx)
	job, err := s.print(ctx, text, slog.String("transaction", tx.ID), slog.Int64("total", int64(total)))
	job.Total = total
	return job, err
}

// PrintText prints raw text, appending a newline if missing.
func (s *Service) PrintText(ctx context.Context, text string) (Job, error) {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return s.print(ctx, text)
}

func (s *Service) print(ctx context.Context, text string, attrs ...any) (Job, error) {
	job := Job{ID: uuid.NewString()}
	log := slog.With(append([]any{"job", job.ID}, attrs...)...)

	data, err := s.Encode(text)
	if err != nil {
		return job, err
	}
	job.Bytes = len(data)

	start := time.Now()
	if err := s.printer.Write(ctx, data); err != nil {
		log.Error("[PRINT] failed", "bytes", len(data), "error", err)
		return job, err
	}
	log.Info("[PRINT] printed", "bytes", len(data), "took", time.Since(start).Round(time.Millisecond))
	return job, nil
}

// Connect connects to dev.
func (s *Service) Connect(ctx context.Context, dev ble.Device) error {
	return s.printer.Connect(ctx, dev)
}

// Disconnect drops the connection and forgets the saved printer.
func (s *Service) Disconnect(ctx context.Context) error {
	return s.printer.Disconnect(ctx)
}

// Status reports the connection state.
func (s *Service) Status() Status {
	st := Status{State: s.printer.State()}
	st.IsConnecting = st.State == ble.StateConnecting
	if dev, ok := s.printer.Device(); ok {
		st.Device = &dev
	}
	return st
}
