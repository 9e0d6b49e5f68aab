// ABOUTME: Entry point for the fitportal member portal
// ABOUTME: Config bootstrap, account seeding, health checks, and the interactive shell

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/fitportal/internal/config"
	"github.com/2389/fitportal/internal/portal"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  __ _ _                   _        _
 / _(_) |_ _ __   ___  _ _| |_ __ _| |
| |_| | __| '_ \ / _ \| '__| __/ _' | |
|  _| | |_| |_) | (_) | |  | || (_| | |
|_| |_|\__| .__/ \___/|_|   \__\__,_|_|
          |_|
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: fitportal <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  shell    Start the interactive portal")
		fmt.Println("  init     Write a starter config file")
		fmt.Println("  seed     Create the bootstrap accounts from config")
		fmt.Println("  health   Check a running portal's readiness endpoint")
		fmt.Println("  version  Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "shell":
		err = runShell(ctx)
	case "init":
		err = runInit()
	case "seed":
		err = runSeed(ctx)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	path := config.Path()
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, path, fmt.Errorf("no config at %s (run: fitportal init)", path)
		}
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func runShell(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	// The shell owns stdout, so logs go to stderr.
	logger := setupLogger(cfg.Logging, os.Stderr)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", path)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", describeDatabase(cfg.Database))
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:     http://%s%s\n", cfg.Metrics.Addr, cfg.Metrics.Path)
	}
	fmt.Println()

	app, err := portal.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating portal: %w", err)
	}
	defer app.Close()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("starting portal: %w", err)
	}

	var wg sync.WaitGroup
	httpCtx, stopHTTP := context.WithCancel(ctx)
	defer func() {
		stopHTTP()
		wg.Wait()
	}()
	if cfg.Metrics.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.RunHTTP(httpCtx); err != nil {
				logger.Error("http server stopped", "error", err)
			}
		}()
	}

	return portal.NewShell(app, os.Stdin, os.Stdout).Run(ctx)
}

func runInit() error {
	path := config.Path()
	if err := config.WriteStarter(path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("config already exists at %s", path)
		}
		return err
	}
	color.New(color.FgGreen).Print("✓ ")
	fmt.Printf("Wrote %s\n", path)
	fmt.Println("Edit bootstrap.accounts before running: fitportal seed")
	return nil
}

func runSeed(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging, os.Stderr)

	app, err := portal.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating portal: %w", err)
	}
	defer app.Close()

	created, err := app.Seed(ctx)
	if err != nil {
		return fmt.Errorf("seeding accounts: %w", err)
	}
	if created {
		color.New(color.FgGreen).Print("✓ ")
		fmt.Printf("Seeded %d account(s)\n", len(cfg.Bootstrap.Accounts))
	} else {
		fmt.Println("Accounts already seeded, nothing to do")
	}
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Metrics.Enabled {
		return fmt.Errorf("metrics.enabled is false, the portal serves no health endpoint")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s/health/ready", cfg.Metrics.Addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("portal unhealthy (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

func describeDatabase(db config.DatabaseConfig) string {
	switch db.Driver {
	case config.DriverPostgres:
		return "postgres"
	case config.DriverMemory:
		return "in-memory"
	}
	return "sqlite " + db.Path
}

func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = &colorHandler{out: &lockedWriter{w: w}, level: level}
	}
	return slog.New(handler)
}

// lockedWriter serializes writes shared by derived handlers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// colorHandler provides colorized log output.
type colorHandler struct {
	out    *lockedWriter
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
		buf.WriteString(a.Value.Resolve().String())
		return true
	})

	buf.WriteString("\n")
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		newAttrs = append(newAttrs, slog.Attr{Key: prefix + a.Key, Value: a.Value})
	}
	return &colorHandler{out: h.out, level: h.level, attrs: newAttrs, groups: h.groups}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{out: h.out, level: h.level, attrs: h.attrs, groups: newGroups}
}
