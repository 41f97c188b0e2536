package sitehttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/apsdehal/RepCRec/internal/sitemgr"
)

func TestPortIsOffsetBySiteID(t *testing.T) {
	if got := port(1); got != BasePort+20 {
		t.Errorf("port(1) = %d, want %d", got, BasePort+20)
	}
	if got := port(5); got != BasePort+100 {
		t.Errorf("port(5) = %d, want %d", got, BasePort+100)
	}
}

func TestHandlerServesJSONDump(t *testing.T) {
	sites := sitemgr.New(10, 20)
	logger := zerolog.New(io.Discard)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	handler(sites, 1, logger)(rec, req)

	if rec.Code != 200 {
		t.Fatalf("handler returned status %d, want 200", rec.Code)
	}

	var resp dumpResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if resp.SiteID != 1 {
		t.Errorf("resp.SiteID = %d, want 1", resp.SiteID)
	}
	if resp.Status != "UP" {
		t.Errorf("resp.Status = %q, want UP", resp.Status)
	}
	if len(resp.Vars) == 0 {
		t.Error("expected at least one resident variable in the dump")
	}
}

func TestHandlerReportsErrorForInvalidSite(t *testing.T) {
	sites := sitemgr.New(10, 20)
	logger := zerolog.New(io.Discard)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	handler(sites, 99, logger)(rec, req)

	if rec.Code != 500 {
		t.Errorf("handler returned status %d, want 500 for an invalid site", rec.Code)
	}
}

func TestServeShutsDownOnContextCancel(t *testing.T) {
	sites := sitemgr.New(1, 2)
	logger := zerolog.New(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, sites, logger) }()

	// Give the listener goroutines a moment to start, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}
