// cmd/phishfuse/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"phishfuse/internal/platform/config"
	"phishfuse/internal/platform/logx"
)

var (
	// Rellenables con -ldflags en build
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	exitOK    = 0
	exitRun   = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// 1. Config por capas (defaults, archivo, .env, entorno, flags)
	cfg, rest, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		config.PrintHelp(os.Stdout)
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: configuration load failed: %v\n", err)
		fmt.Fprintln(os.Stderr, "Try: phishfuse -h for help")
		return exitUsage
	}
	if cfg.PrintVersion {
		config.PrintVersion(os.Stdout, version, commit, date)
		return exitOK
	}
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "Error: command is required")
		fmt.Fprintln(os.Stderr, "Usage: phishfuse <ingest|classify|poll|fuse|run|report|show|serve> [options]")
		return exitUsage
	}
	command, cmdArgs := rest[0], rest[1:]
	if !knownCommand(command) {
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", command)
		return exitUsage
	}

	// 2. Logger compartido
	logger := logx.NewWithLevel(logx.ParseLevel(cfg.LogLevel))
	logger.Info("PhishFuse starting",
		"version", version,
		"command", command,
		"store", cfg.Store.Driver,
	)

	// 3. Contexto y señales para un cierre limpio
	ctx, cancel := rootContextWithSignals()
	defer cancel()

	// 4. Store y dependencias
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Err(err, "phase", "setup")
		return exitRun
	}
	defer a.Close()

	// 5. Comando
	start := time.Now()
	if err := a.dispatch(ctx, command, cmdArgs); err != nil {
		var uerr usageError
		if errors.As(err, &uerr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitUsage
		}
		logger.Err(err, "phase", command, "elapsed_ms", time.Since(start).Milliseconds())
		return exitRun
	}

	logger.Info("PhishFuse finished", "command", command, "elapsed_ms", time.Since(start).Milliseconds())
	return exitOK
}

// rootContextWithSignals cancela el contexto con SIGINT o SIGTERM. Los
// estados del poller se persisten antes de cada paso, así una corrida
// interrumpida se retoma con el mismo comando.
func rootContextWithSignals() (context.Context, context.CancelFunc) {
	base, baseCancel := context.WithCancel(context.Background())

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-ch:
			baseCancel()
		case <-base.Done():
		}
	}()

	cleanupCancel := func() {
		signal.Stop(ch)
		baseCancel()
	}

	return base, cleanupCancel
}
