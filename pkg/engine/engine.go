// Package engine wires the site manager, transaction manager, and
// instruction driver into the single facade a caller needs: construct
// an Engine, feed it a script, read back the trace it produced.
package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/apsdehal/RepCRec/internal/driver"
	"github.com/apsdehal/RepCRec/internal/logging"
	"github.com/apsdehal/RepCRec/internal/script"
	"github.com/apsdehal/RepCRec/internal/sitehttp"
	"github.com/apsdehal/RepCRec/internal/sitemgr"
	"github.com/apsdehal/RepCRec/internal/txnmgr"
)

// Options configures a new Engine.
type Options struct {
	Sites     int
	Variables int
	Output    io.Writer
	Logger    zerolog.Logger
}

// Engine is the top-level facade over one run of the replicated
// concurrency-control simulation.
type Engine struct {
	sites  *sitemgr.Manager
	txns   *txnmgr.Manager
	driver *driver.Driver
	log    zerolog.Logger
}

// New builds an Engine with opts.Sites sites and opts.Variables
// variables. A nil Output defaults to discarding dump output. opts.Logger
// is used as given, so a zero Logger emits no events; NewDefault supplies
// a console logger over os.Stdout.
func New(opts Options) *Engine {
	out := opts.Output
	if out == nil {
		out = io.Discard
	}

	sites := sitemgr.New(opts.Sites, opts.Variables)
	txns := txnmgr.New(sites, opts.Logger)
	d := driver.New(sites, txns, opts.Logger, out)

	return &Engine{sites: sites, txns: txns, driver: d, log: opts.Logger}
}

// NewDefault builds an Engine with the standard 10-site, 20-variable
// topology, logging to stdout via internal/logging.
func NewDefault(output io.Writer) *Engine {
	return New(Options{Sites: 10, Variables: 20, Output: output, Logger: logging.New(nil)})
}

// RunScript decodes src (newline- or semicolon-separated instructions,
// per spec.md §6's grammar) and runs it to completion.
func (e *Engine) RunScript(src []byte) error {
	lines := script.SplitStatements(src)
	instructions, err := script.DecodeAll(lines)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return e.driver.Run(instructions)
}

// ServeHTTP launches the optional per-site dump servers and blocks until
// ctx is canceled.
func (e *Engine) ServeHTTP(ctx context.Context) error {
	return sitehttp.Serve(ctx, e.sites, e.log)
}

// Sites exposes the underlying site manager, for callers (tests, the
// HTTP layer) that need direct read access to topology state.
func (e *Engine) Sites() *sitemgr.Manager {
	return e.sites
}

// Transactions exposes the underlying transaction manager.
func (e *Engine) Transactions() *txnmgr.Manager {
	return e.txns
}
