// Package driver runs a decoded instruction script against a site
// manager and a transaction manager: one tick per instruction, preludes
// before each dispatch, and the routing table of spec.md §2.
package driver

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/apsdehal/RepCRec/internal/script"
	"github.com/apsdehal/RepCRec/internal/sitemgr"
	"github.com/apsdehal/RepCRec/internal/txnmgr"
)

// Driver owns the site manager and transaction manager and dispatches a
// decoded instruction stream against them.
type Driver struct {
	sites *sitemgr.Manager
	txns  *txnmgr.Manager
	log   zerolog.Logger
	out   io.Writer
}

// New creates a driver wired to sites and txns, writing dump output to
// out.
func New(sites *sitemgr.Manager, txns *txnmgr.Manager, logger zerolog.Logger, out io.Writer) *Driver {
	return &Driver{sites: sites, txns: txns, log: logger, out: out}
}

// Run dispatches every instruction in order, running the transaction
// manager's preludes before each one, per spec.md §4.7's tick discipline,
// and once more after the last one so its consequences (for example a
// deadlock it closes) are resolved before Run returns.
func (d *Driver) Run(instructions []script.Instruction) error {
	for _, instr := range instructions {
		d.txns.Tick()
		d.txns.RunPreludes()
		if err := d.dispatch(instr); err != nil {
			return err
		}
	}
	d.txns.RunPreludes()
	return nil
}

func (d *Driver) dispatch(instr script.Instruction) error {
	switch instr.Op {
	case script.Begin:
		d.txns.Begin(instr.Txn)
	case script.BeginRO:
		d.txns.BeginReadOnly(instr.Txn)
	case script.Read:
		d.txns.Read(instr.Txn, instr.Variable)
	case script.Write:
		d.txns.Write(instr.Txn, instr.Variable, instr.Value)
	case script.End:
		d.txns.End(instr.Txn)
	case script.Fail:
		holders, err := d.sites.Fail(instr.SiteIndex)
		if err != nil {
			return fmt.Errorf("driver: fail: %w", err)
		}
		for _, h := range holders {
			d.txns.MarkAborted(h.Name)
		}
		d.log.Info().Str("event", "fail").Int("site", instr.SiteIndex).Msg("site failed")
	case script.Recover:
		if err := d.sites.Recover(instr.SiteIndex); err != nil {
			return fmt.Errorf("driver: recover: %w", err)
		}
		d.log.Info().Str("event", "recover").Int("site", instr.SiteIndex).Msg("site recovering")
	case script.Dump:
		if instr.HasSite {
			return d.dumpSite(instr.SiteIndex)
		}
		d.dump(instr.Variable)
	default:
		return fmt.Errorf("driver: unhandled instruction %v", instr.Op)
	}
	return nil
}

func (d *Driver) dumpSite(index int) error {
	sd, err := d.sites.DumpSite(index)
	if err != nil {
		return fmt.Errorf("driver: dump: %w", err)
	}
	d.printSiteDump(sd)
	return nil
}

func (d *Driver) dump(variableName string) {
	if variableName != "" {
		for _, entry := range d.sites.DumpVariable(variableName) {
			if entry.NotAvailable {
				fmt.Fprintf(d.out, "site %d: %s = %d (not available for reading)\n", entry.SiteID, variableName, entry.Value)
			} else {
				fmt.Fprintf(d.out, "site %d: %s = %d\n", entry.SiteID, variableName, entry.Value)
			}
		}
		return
	}

	for _, sd := range d.sites.DumpAll() {
		d.printSiteDump(sd)
	}
}

func (d *Driver) printSiteDump(sd sitemgr.SiteDump) {
	fmt.Fprintf(d.out, "site %d (%s):", sd.SiteID, sd.Status)
	for _, v := range sd.Vars {
		if v.NotAvailable {
			fmt.Fprintf(d.out, " %s=%d(unavailable)", v.Name, v.Value)
		} else {
			fmt.Fprintf(d.out, " %s=%d", v.Name, v.Value)
		}
	}
	fmt.Fprintln(d.out)
}
