// Command repcrec runs a replicated, two-phase-locked concurrency
// control simulation against an instruction script.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/apsdehal/RepCRec/internal/config"
	"github.com/apsdehal/RepCRec/internal/logging"
	"github.com/apsdehal/RepCRec/pkg/engine"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Parse(args)
	if err != nil {
		return fmt.Errorf("repcrec: %w", err)
	}

	out, outFile, err := logging.Open(cfg.Output)
	if err != nil {
		return fmt.Errorf("repcrec: opening output: %w", err)
	}
	if outFile != nil {
		defer outFile.Close()
	}

	logger := logging.New(out)
	logger.Info().Str("config", cfg.String()).Msg("starting")

	eng := engine.New(engine.Options{
		Sites:     cfg.Sites,
		Variables: cfg.Variables,
		Output:    out,
		Logger:    logger,
	})

	src, err := readScript(cfg)
	if err != nil {
		return fmt.Errorf("repcrec: %w", err)
	}

	if err := eng.RunScript(src); err != nil {
		return fmt.Errorf("repcrec: %w", err)
	}
	logger.Info().Msg("run complete")

	if !cfg.Serve {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("shutting down HTTP dump servers")
		cancel()
	}()

	logger.Info().Msg("serving per-site dumps over HTTP until interrupted")
	if err := eng.ServeHTTP(ctx); err != nil {
		return fmt.Errorf("repcrec: %w", err)
	}
	return nil
}

func readScript(cfg *config.Config) ([]byte, error) {
	if cfg.Stdin {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(cfg.ScriptPath)
}
