// Command struk prints receipts on Bluetooth thermal printers.
//
// Usage:
//
//	struk [--config path] <command> [flags]
//
// Commands:
//
//	init      write the default config file
//	scan      list nearby (or paired) printers
//	connect   choose a printer and remember it
//	forget    disconnect and forget the saved printer
//	print     print a transaction JSON file (- for stdin)
//	preview   show the receipt for a transaction without printing
//	agent     serve the local HTTP print API
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/chaz8081/struk/internal/ble"
	"github.com/chaz8081/struk/internal/config"
	"github.com/chaz8081/struk/internal/printer"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, cfg *config.Config, args []string) error
}

var commands = []command{
	{"init", "write the default config file", runInit},
	{"scan", "list nearby (or paired) printers", runScan},
	{"connect", "choose a printer and remember it", runConnect},
	{"forget", "disconnect and forget the saved printer", runForget},
	{"print", "print a transaction JSON file (- for stdin)", runPrint},
	{"preview", "show the receipt for a transaction without printing", runPreview},
	{"agent", "serve the local HTTP print API", runAgent},
}

func main() {
	flag.Usage = usage
	configPath := flag.String("config", "", "path to config file (default: ~/.config/struk/config.yaml)")
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	// A missing .env is normal.
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("config: %v", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		fatal("config env: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	name := flag.Arg(0)
	for _, c := range commands {
		if c.name != name {
			continue
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		err := c.run(ctx, cfg, flag.Args()[1:])
		stop()
		if err != nil {
			if errors.Is(err, ble.ErrDiscoveryCancelled) {
				fmt.Fprintln(os.Stderr, "Cancelled.")
				os.Exit(1)
			}
			fatal("%s: %s", name, printer.Message(err))
		}
		return
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "Usage: struk [--config path] <command> [flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-9s %s\n", c.name, c.usage)
	}
	fmt.Fprintln(out)
	flag.PrintDefaults()
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "struk: "+format+"\n", args...)
	os.Exit(1)
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}
	return config.Default(), nil
}
