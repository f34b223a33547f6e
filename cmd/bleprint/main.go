// Command bleprint discovers, binds and prints to BLE thermal receipt printers.
//
// Usage:
//
//	bleprint [--config path] scan
//	bleprint connect <device-id>
//	bleprint disconnect
//	bleprint status
//	bleprint test
//	bleprint print <receipt.yaml>
//	bleprint init
//
// The bound printer is remembered between runs, so after a successful
// connect later commands reconnect to it automatically.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/viper"

	"github.com/chaz8081/bleprint/internal/ble"
	"github.com/chaz8081/bleprint/internal/config"
	"github.com/chaz8081/bleprint/internal/dispatch"
	"github.com/chaz8081/bleprint/internal/escpos"
	"github.com/chaz8081/bleprint/internal/receipt"
	"github.com/chaz8081/bleprint/internal/store"
)

func main() {
	bindEnv()

	configPath := flag.String("config", "", "path to config file (default: ~/.config/bleprint/config.yaml)")
	flag.Usage = usage
	flag.Parse()

	cfg, err := loadConfig(resolveConfigPath(*configPath))
	if err != nil {
		fatal("config: %v", err)
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		fatal("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	if args[0] == "init" {
		path, err := config.WriteDefault()
		if err != nil {
			fatal("%v", err)
		}
		if path == "" {
			fmt.Println("Config already exists at", config.DefaultConfigPath())
			return
		}
		fmt.Println("Wrote default config to", path)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, closeStore, err := openStore(cfg)
	if err != nil {
		fatal("store: %v", err)
	}
	defer closeStore()
	records := store.NewPrinterStore(kv)

	mgr := ble.NewManager(ble.NewTinyGoAdapter(), records, ble.ManagerOptions{
		ScanTimeout: cfg.Scan.Timeout,
	})
	if err := mgr.Start(ctx); err != nil {
		// A failed silent reconnect is not fatal; commands report it below.
		slog.Warn("[BLE] start", "error", err)
	}
	defer mgr.Close()

	app := &app{cfg: cfg, mgr: mgr, records: records}
	app.dispatcher = dispatch.New(mgr, dispatch.Options{NoPrinter: promptSelectPrinter})

	if err := app.run(ctx, args[0], args[1:]); err != nil {
		mgr.Close()
		closeStore()
		fatal("%s: %v", args[0], err)
	}
}

type app struct {
	cfg        *config.Config
	mgr        *ble.Manager
	records    *store.PrinterStore
	dispatcher *dispatch.Dispatcher
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "scan":
		return a.scan(ctx)
	case "connect":
		if len(args) != 1 {
			return errors.New("usage: bleprint connect <device-id>")
		}
		return a.connect(ctx, args[0])
	case "disconnect":
		return a.disconnect()
	case "status":
		a.status()
		return nil
	case "test":
		return a.print(receipt.TestPage(escpos.NewEncoder()))
	case "print":
		if len(args) != 1 {
			return errors.New("usage: bleprint print <receipt.yaml>")
		}
		return a.printReceipt(args[0])
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) scan(ctx context.Context) error {
	if !a.mgr.Available() {
		return a.mgr.LastError()
	}
	fmt.Printf("Scanning for %s...\n", a.cfg.Scan.Timeout)
	for d := range a.mgr.StartScanning(ctx) {
		fmt.Printf("  %-20s  %-24s  %d dBm\n", d.ID, d.DisplayName(), d.RSSI)
	}
	<-a.mgr.ScanDone()

	if err := a.mgr.LastError(); errors.Is(err, ble.ErrScan) || errors.Is(err, ble.ErrPermissionDenied) {
		return err
	}
	n := len(a.mgr.Devices())
	if n == 0 {
		fmt.Println("No printers found. Make sure the printer is on and not paired elsewhere.")
		return nil
	}
	fmt.Printf("Found %d device(s). Bind one with: bleprint connect <device-id>\n", n)
	return nil
}

func (a *app) connect(ctx context.Context, id string) error {
	fmt.Printf("Connecting to %s...\n", id)
	if !a.mgr.SelectDevice(ctx, id) {
		return a.mgr.LastError()
	}
	st := a.mgr.State()
	fmt.Printf("Connected. Printing to service %s, characteristic %s\n", st.Target.ServiceID, st.Target.CharacteristicID)
	return nil
}

func (a *app) disconnect() error {
	id := a.mgr.State().DeviceID
	if id == "" {
		rec, ok, err := a.records.Load()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("No printer selected.")
			return nil
		}
		id = rec.DeviceID
	}
	if !a.mgr.DisconnectFromDevice(id) {
		return a.mgr.LastError()
	}
	fmt.Printf("Disconnected from %s and forgot it.\n", id)
	return nil
}

func (a *app) status() {
	st := a.mgr.Status()
	fmt.Println("=== bleprint ===")
	fmt.Printf("  Adapter:  %s\n", availability(st.Available))
	fmt.Printf("  State:    %s\n", st.State)
	if rec, ok, err := a.records.Load(); err == nil && ok {
		fmt.Printf("  Saved:    %s (%s / %s)\n", rec.DeviceID, rec.ServiceID, rec.CharacteristicID)
	} else {
		fmt.Println("  Saved:    none")
	}
	fmt.Printf("  Store:    %s (%s)\n", a.cfg.Store.Backend, a.cfg.Store.Path)
	if err := a.mgr.LastError(); err != nil {
		fmt.Printf("  Error:    %v\n", err)
	}
	fmt.Println("================")
}

func (a *app) printReceipt(path string) error {
	r, err := receipt.Load(path)
	if err != nil {
		return err
	}
	if r.Width == 0 {
		r.Width = a.cfg.Receipt.Width
	}
	if r.Currency == "" {
		r.Currency = a.cfg.Receipt.Currency
	}
	job, err := receipt.Render(escpos.NewEncoder(), r)
	if err != nil {
		return err
	}
	return a.print(job)
}

func (a *app) print(job []byte) error {
	if !a.dispatcher.PrintContent(job) {
		return a.dispatcher.LastError()
	}
	fmt.Printf("Sent %d bytes.\n", len(job))
	return nil
}

// promptSelectPrinter tells the user how to bind a printer.
func promptSelectPrinter() {
	fmt.Fprintln(os.Stderr, "No printer connected. Run 'bleprint scan' and then 'bleprint connect <device-id>'.")
}

// openStore opens the configured key-value backend for the printer record.
func openStore(cfg *config.Config) (store.KV, func() error, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0700); err != nil {
			return nil, nil, err
		}
		db, err := store.OpenSQLiteKV(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	default:
		return store.NewFileKV(cfg.Store.Path), func() error { return nil }, nil
	}
}

// bindEnv enables the environment overrides BLEPRINT_CONFIG and
// BLEPRINT_LOG_LEVEL.
func bindEnv() {
	viper.SetEnvPrefix("bleprint")
	viper.AutomaticEnv()
}

// resolveConfigPath prefers the --config flag, then BLEPRINT_CONFIG. An empty
// result means "default path, or built-in defaults".
func resolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return viper.GetString("config")
}

// applyEnv overrides config fields set in the environment.
func applyEnv(cfg *config.Config) {
	if lvl := viper.GetString("log_level"); lvl != "" {
		cfg.LogLevel = lvl
	}
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

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: bleprint [--config path] <command> [args]

Commands:
  scan                 list nearby printers for %s
  connect <device-id>  bind a printer (connect, probe, remember)
  disconnect           unbind and forget the printer
  status               show adapter and printer state
  test                 print a test page
  print <file>         print a YAML receipt
  init                 write a default config file

Flags:
`, config.Default().Scan.Timeout)
	flag.PrintDefaults()
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "bleprint: "+format+"\n", args...)
	os.Exit(1)
}
