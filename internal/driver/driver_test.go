package driver

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/apsdehal/RepCRec/internal/script"
	"github.com/apsdehal/RepCRec/internal/sitemgr"
	"github.com/apsdehal/RepCRec/internal/txn"
	"github.com/apsdehal/RepCRec/internal/txnmgr"
)

func newTestDriver(t *testing.T, out io.Writer) (*sitemgr.Manager, *txnmgr.Manager, *Driver) {
	t.Helper()
	sites := sitemgr.New(10, 20)
	logger := zerolog.New(io.Discard)
	tm := txnmgr.New(sites, logger)
	return sites, tm, New(sites, tm, logger, out)
}

func mustDecode(t *testing.T, lines []string) []script.Instruction {
	t.Helper()
	instructions, err := script.DecodeAll(lines)
	if err != nil {
		t.Fatalf("DecodeAll returned error: %v", err)
	}
	return instructions
}

func TestRunAppliesWriteAcrossCommit(t *testing.T) {
	sites, tm, d := newTestDriver(t, io.Discard)
	instructions := mustDecode(t, []string{
		"begin(T1)",
		"W(T1,x1,55)",
		"end(T1)",
	})
	if err := d.Run(instructions); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if tm.Transaction("T1").Status != txn.Committed {
		t.Errorf("T1.Status = %v, want Committed", tm.Transaction("T1").Status)
	}
	if v, ok := sites.CurrentValue("x1"); !ok || v != 55 {
		t.Errorf("CurrentValue(x1) = (%d, %t), want (55, true)", v, ok)
	}
}

func TestRunFailCascadesToMarkAborted(t *testing.T) {
	_, tm, d := newTestDriver(t, io.Discard)
	instructions := mustDecode(t, []string{
		"begin(T1)",
		"W(T1,x1,10)",
		"fail(2)",
	})
	if err := d.Run(instructions); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if tm.Transaction("T1").Status != txn.Aborted {
		t.Errorf("T1.Status = %v, want Aborted after its only write-lock site fails", tm.Transaction("T1").Status)
	}
}

func TestRunFailOnInvalidSiteReturnsError(t *testing.T) {
	_, _, d := newTestDriver(t, io.Discard)
	instructions := mustDecode(t, []string{"fail(99)"})
	if err := d.Run(instructions); err == nil {
		t.Error("expected Run to surface the invalid site index")
	}
}

func TestDumpSingleVariableReportsEverySite(t *testing.T) {
	_, _, d := newTestDriver(t, io.Discard)
	var buf bytes.Buffer
	d.out = &buf

	instructions := mustDecode(t, []string{"dump(x2)"})
	if err := d.Run(instructions); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	out := buf.String()
	if strings.Count(out, "x2 = ") != 10 {
		t.Errorf("expected a line per replica of x2, got:\n%s", out)
	}
}

func TestDumpSingleSiteReportsOnlyThatSite(t *testing.T) {
	_, _, d := newTestDriver(t, io.Discard)
	var buf bytes.Buffer
	d.out = &buf

	instructions := mustDecode(t, []string{"dump(3)"})
	if err := d.Run(instructions); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	out := buf.String()
	if strings.Count(out, "site ") != 1 {
		t.Errorf("expected exactly one site line, got:\n%s", out)
	}
	if !strings.Contains(out, "site 3 ") {
		t.Errorf("expected the dumped site to be 3, got:\n%s", out)
	}
}

func TestDumpAllListsEveryUpSite(t *testing.T) {
	_, _, d := newTestDriver(t, io.Discard)
	var buf bytes.Buffer
	d.out = &buf

	instructions := mustDecode(t, []string{"dump()"})
	if err := d.Run(instructions); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	out := buf.String()
	if strings.Count(out, "site ") != 10 {
		t.Errorf("expected one line per site, got:\n%s", out)
	}
}
