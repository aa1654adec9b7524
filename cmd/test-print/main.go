// Command test-print is a manual test for the printer transport.
// It connects to one printer, prints a sample receipt and a ruler line,
// then disconnects. The saved-printer file is not touched.
//
// Usage:
//
//	go run ./cmd/test-print --address AA:BB:CC:DD:EE:FF [--transport ble|serial] [--width 32]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chaz8081/struk/internal/ble"
	"github.com/chaz8081/struk/internal/printer"
	"github.com/chaz8081/struk/internal/receipt"
	"github.com/chaz8081/struk/internal/spp"
	"github.com/chaz8081/struk/internal/store"
)

func main() {
	address := flag.String("address", "", "printer address (BLE) or serial port path")
	transport := flag.String("transport", "ble", "transport: ble or serial")
	width := flag.Int("width", 32, "paper width in columns")
	delay := flag.Duration("delay", ble.DefaultChunkDelay, "pause between chunks")
	flag.Parse()

	if *address == "" || *width <= 0 {
		fmt.Println("Error: --address and a positive --width are required")
		os.Exit(2)
	}

	var adapter ble.Adapter = ble.NewTinyGoAdapter()
	if *transport == "serial" {
		adapter = spp.NewAdapter(spp.DefaultBaudRate)
	}

	tmp, err := os.MkdirTemp("", "struk-test-print")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer os.RemoveAll(tmp)

	opts := ble.DefaultManagerOptions()
	opts.Transport.Delay = *delay
	m := ble.NewManager(adapter, store.NewFileStore(filepath.Join(tmp, "printer.yaml")), opts)
	defer m.Close()

	svc, err := printer.NewService(m, printer.Options{
		Shop:  receipt.Shop{Name: "TEST PRINT", Contacts: []string{"struk"}},
		Width: *width,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fmt.Printf("Connecting to %s over %s...\n", *address, *transport)
	if err := svc.Connect(ctx, ble.Device{Address: *address}); err != nil {
		fmt.Printf("Error: %s (%v)\n", printer.Message(err), err)
		return
	}

	change := receipt.Money(2500)
	tx := receipt.TransactionView{
		ID:          "TEST-1",
		CreatedAt:   time.Now(),
		Status:      "completed",
		PaymentType: "cash",
		Items: []receipt.Item{
			{Name: "Semen Gresik 40kg", Quantity: 2, UnitPrice: 62500},
			{Name: "Paku Beton 7cm (per kilogram, campur ukuran)", Quantity: 1, UnitPrice: 22500},
		},
		Change: &change,
	}

	start := time.Now()
	job, err := svc.PrintReceipt(ctx, tx)
	if err != nil {
		fmt.Printf("Error: %s (%v)\n", printer.Message(err), err)
		return
	}
	if _, err := svc.PrintText(ctx, strings.Repeat("1234567890", *width/10+1)[:*width]); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("\nDone! %d bytes in %s\n", job.Bytes, time.Since(start).Round(time.Millisecond))
}
