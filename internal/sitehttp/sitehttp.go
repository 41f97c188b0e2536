// Package sitehttp optionally exposes each site's variable dump over
// HTTP, strictly as an observability convenience: it never participates
// in the engine's own correctness surface.
package sitehttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/apsdehal/RepCRec/internal/sitemgr"
)

// BasePort is the first port used for per-site dump servers; site i
// listens on BasePort + 20*i.
const BasePort = 9000

// dumpResponse is the JSON body served for one site.
type dumpResponse struct {
	SiteID int            `json:"site_id"`
	Status string         `json:"status"`
	Vars   []variableDump `json:"variables"`
}

type variableDump struct {
	Name         string `json:"name"`
	Value        int    `json:"value"`
	NotAvailable bool   `json:"not_available"`
}

func port(siteID int) int {
	return BasePort + 20*siteID
}

// Serve launches one HTTP listener per site (1..sites.NumSites()), each
// serving GET / with a JSON dump of that site's current state. It blocks
// until ctx is canceled, then drains every listener, returning the first
// non-shutdown error encountered (if any).
func Serve(ctx context.Context, sites *sitemgr.Manager, logger zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	servers := make([]*http.Server, 0, sites.NumSites())

	for i := 1; i <= sites.NumSites(); i++ {
		siteID := i
		mux := http.NewServeMux()
		mux.HandleFunc("/", handler(sites, siteID, logger))
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port(siteID)),
			Handler: mux,
		}
		servers = append(servers, srv)

		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("sitehttp: site %d: %w", siteID, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, srv := range servers {
			_ = srv.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}

func handler(sites *sitemgr.Manager, siteID int, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		start := time.Now()

		dump, err := sites.DumpSite(siteID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			logger.Error().Str("request_id", reqID).Int("site", siteID).Err(err).Msg("dump request failed")
			return
		}

		resp := dumpResponse{SiteID: dump.SiteID, Status: dump.Status.String()}
		for _, v := range dump.Vars {
			resp.Vars = append(resp.Vars, variableDump{Name: v.Name, Value: v.Value, NotAvailable: v.NotAvailable})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error().Str("request_id", reqID).Int("site", siteID).Err(err).Msg("dump response encode failed")
			return
		}

		logger.Info().Str("request_id", reqID).Int("site", siteID).
			Str("method", r.Method).Dur("elapsed", time.Since(start)).Msg("dump served")
	}
}
