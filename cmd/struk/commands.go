package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/struk/internal/agent"
	"github.com/chaz8081/struk/internal/ble"
	"github.com/chaz8081/struk/internal/config"
)

func runInit(_ context.Context, _ *config.Config, _ []string) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func runScan(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	paired := fs.Bool("paired", false, "list printers paired with BlueZ instead of scanning")
	_ = fs.Parse(args)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	devices, err := a.scan(ctx, *paired)
	if err != nil {
		return err
	}
	fmt.Println(renderDevices(devices))
	return nil
}

func runConnect(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	address := fs.String("address", "", "connect to this address without scanning")
	name := fs.String("name", "", "printer name to save with --address")
	test := fs.Bool("test", false, "print a test line after connecting")
	_ = fs.Parse(args)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	dev := ble.Device{Name: *name, Address: *address}
	if dev.Address == "" {
		if dev, err = a.choose(ctx, huhPicker); err != nil {
			return err
		}
	}

	if err := a.service.Connect(ctx, dev); err != nil {
		return err
	}
	fmt.Printf("Connected to %s (%s)\n", dev.Name, dev.Address)

	if *test {
		if _, err := a.service.PrintText(ctx, "struk test print OK"); err != nil {
			return err
		}
	}
	return nil
}

func runForget(ctx context.Context, cfg *config.Config, _ []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.service.Disconnect(ctx); err != nil {
		return err
	}
	fmt.Println("Saved printer forgotten.")
	return nil
}

func runPrint(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("print", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: struk print <transaction.json|->")
	}

	tx, err := readTransaction(fs.Arg(0))
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ensureConnected(ctx); err != nil {
		return err
	}
	job, err := a.service.PrintReceipt(ctx, tx)
	if err != nil {
		return err
	}
	fmt.Printf("Printed transaction %s (total %s, %d bytes)\n", tx.ID, job.Total, job.Bytes)
	return nil
}

func runPreview(_ context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: struk preview <transaction.json|->")
	}

	tx, err := readTransaction(fs.Arg(0))
	if err != nil {
		return err
	}

	// No hardware is touched; newApp only builds the adapter.
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println(renderReceipt(a.service.Preview(tx)))
	return nil
}

func runAgent(ctx context.Context, cfg *config.Config, _ []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var saved *ble.Device
	if rec, ok, err := a.store.Load(ctx); err == nil && ok {
		saved = &ble.Device{Name: rec.Name, Address: rec.Address}
	}
	printBanner(cfg, saved)

	hub := agent.NewHub(a.manager, cfg.Agent.AllowedOrigins, func() ble.StateEvent {
		st := a.service.Status()
		ev := ble.StateEvent{State: st.State}
		if st.Device != nil {
			ev.Device = *st.Device
		}
		return ev
	})
	defer hub.Close()

	scan := func(ctx context.Context) ([]ble.Device, error) {
		return a.scan(ctx, false)
	}
	handler := agent.NewHandler(a.service, scan, hub)
	router := agent.NewRouter(handler, agent.RouterConfig{
		AllowedOrigins: cfg.Agent.AllowedOrigins,
		TokenSecret:    []byte(cfg.Agent.JWTSecret),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return agent.Serve(ctx, cfg.Agent.Listen, router)
	})
	g.Go(func() error {
		// Failure is not fatal; the front-end can connect later.
		if saved != nil && !a.manager.AutoReconnect(ctx) {
			slog.Warn("[AGENT] saved printer not reachable", "address", saved.Address)
		}
		return nil
	})
	return g.Wait()
}
