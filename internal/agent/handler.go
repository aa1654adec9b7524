// Package agent serves a local HTTP API so the browser front-end can print
// through a printer connected to this machine.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chaz8081/struk/internal/ble"
	"github.com/chaz8081/struk/internal/printer"
	"github.com/chaz8081/struk/internal/receipt"
)

// maxBodyBytes caps request bodies; a large transaction is a few KB.
const maxBodyBytes = 1 << 20

// PrintService is the printing surface the handlers drive.
// *printer.Service satisfies it.
type PrintService interface {
	PrintReceipt(ctx context.Context, tx receipt.TransactionView) (printer.Job, error)
	Preview(tx receipt.TransactionView) string
	Connect(ctx context.Context, dev ble.Device) error
	Disconnect(ctx context.Context) error
	Status() printer.Status
}

// Scanner lists nearby or paired printers.
type Scanner func(ctx context.Context) ([]ble.Device, error)

type Handler struct {
	svc    PrintService
	scan   Scanner
	events http.Handler
}

// NewHandler returns the API handlers. scan and events may be nil; the
// matching routes then report 501 and 404.
func NewHandler(svc PrintService, scan Scanner, events http.Handler) *Handler {
	return &Handler{svc: svc, scan: scan, events: events}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/printer", func(r chi.Router) {
		r.Get("/", h.status)
		r.Delete("/", h.disconnect)
		r.Get("/devices", h.devices)
		r.Post("/connect", h.connect)
		if h.events != nil {
			r.Handle("/events", h.events)
		}
	})
	r.Route("/receipts", func(r chi.Router) {
		r.Post("/", h.print)
		r.Post("/preview", h.preview)
	})
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

func (h *Handler) devices(w http.ResponseWriter, r *http.Request) {
	if h.scan == nil {
		writeError(w, http.StatusNotImplemented, "scan_unavailable", ble.ErrDiscoveryUnsupported)
		return
	}
	devices, err := h.scan(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if devices == nil {
		devices = []ble.Device{}
	}
	writeJSON(w, http.StatusOK, devicesResponse{Devices: devices})
}

type connectRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("address is required"))
		return
	}

	if err := h.svc.Connect(r.Context(), ble.Device{Name: req.Name, Address: req.Address}); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Status())
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Disconnect(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) readTransaction(w http.ResponseWriter, r *http.Request) (receipt.TransactionView, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, "bad_request", err)
		return receipt.TransactionView{}, false
	}
	tx, err := receipt.ParseTransaction(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return receipt.TransactionView{}, false
	}
	return tx, true
}

func (h *Handler) print(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.readTransaction(w, r)
	if !ok {
		return
	}

	job, err := h.svc.PrintReceipt(r.Context(), tx)
	if err != nil {
		slog.Warn("[AGENT] print failed", "job", job.ID, "transaction", tx.ID, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.readTransaction(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, h.svc.Preview(tx)); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
