// Package api provides the HTTP REST API server for dsewatch.
//
// It exposes the market snapshot, per-symbol fundamentals, historical
// series, a unified stock view, and market news.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/rkabir/dsewatch/internal/config"
	"github.com/rkabir/dsewatch/internal/scrape"
	"github.com/rkabir/dsewatch/pkg/models"
	"github.com/rkabir/dsewatch/pkg/utils"
)

// Server is the HTTP API server.
type Server struct {
	router chi.Router
	cfg    *config.Config
	dse    *scrape.DSE
	news   *scrape.News
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config) *Server {
	dse := scrape.NewDSEWithOptions(scrape.Options{
		BaseURL:    cfg.DSE.BaseURL,
		MaxRetries: cfg.DSE.MaxRetries,
		BaseDelay:  time.Duration(cfg.DSE.RetryBaseDelayMS) * time.Millisecond,
	})

	srv := &Server{
		cfg:  cfg,
		dse:  dse,
		news: scrape.NewNews(),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Each parameterized endpoint is method-agnostic: query string
		// on GET, JSON body on POST.
		r.Get("/market", s.handleMarket)
		r.Post("/market", s.handleMarket)

		r.Get("/fundamentals/{symbol}", s.handleFundamentals)
		r.Get("/fundamentals", s.handleFundamentals)
		r.Post("/fundamentals", s.handleFundamentals)

		r.Get("/history/{symbol}", s.handleHistory)
		r.Get("/history", s.handleHistory)
		r.Post("/history", s.handleHistory)

		r.Get("/stock/{symbol}", s.handleStock)
		r.Get("/stock", s.handleStock)
		r.Post("/stock", s.handleStock)

		r.Get("/news", s.handleNews)
	})

	return r
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"market_status": utils.MarketStatus(),
		"time_bdt":      utils.FormatDateTimeBDT(utils.NowBDT()),
	})
}

// handleMarket serves the live snapshot, optionally filtered to one
// trading code.
func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	params := requestParams(r)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	snap, err := s.dse.MarketSnapshot(ctx)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	marketOpen := utils.IsMarketOpen()
	stocks := scrape.ComputeStocks(snap.Stocks, marketOpen)

	resp := map[string]any{
		"marketOpen":          marketOpen,
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
		"sourceTimestampText": snap.SourceTimestamp,
	}

	if code := strings.ToUpper(strings.TrimSpace(params["code"])); code != "" {
		stock, err := lookupStock(stocks, code)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		resp["data"] = stock
	} else {
		resp["data"] = stocks
		resp["count"] = len(stocks)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFundamentals(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r, requestParams(r))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	fund, err := s.dse.Fundamentals(ctx, symbol)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":      fund,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	params := requestParams(r)
	symbol := symbolParam(r, params)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	tf := models.ParseTimeframe(params["timeframe"])
	anchor, err := anchorFromParams(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	series, err := s.dse.HistoricalSeries(ctx, symbol, tf, anchor)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":    symbol,
		"timeframe": tf,
		"data":      series.Points,
		"count":     len(series.Points),
		"source":    series.Source,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStock serves the unified per-symbol view: live quote plus
// fundamentals, with the historical series included on request.
func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	params := requestParams(r)
	symbol := symbolParam(r, params)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	snap, err := s.dse.MarketSnapshot(ctx)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	marketOpen := utils.IsMarketOpen()
	stocks := scrape.ComputeStocks(snap.Stocks, marketOpen)
	stock, err := lookupStock(stocks, symbol)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	includeHistory, _ := strconv.ParseBool(params["include_history"])
	tf := models.ParseTimeframe(params["timeframe"])

	var (
		fund    *models.StockFundamentals
		history *scrape.Series
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Fundamentals are best-effort on the unified view: a company page
		// outage should not take down the quote.
		f, err := s.dse.Fundamentals(gctx, symbol)
		if err != nil {
			log.Printf("api: fundamentals for %s unavailable: %v", symbol, err)
			return nil
		}
		fund = f
		return nil
	})
	if includeHistory {
		g.Go(func() error {
			h, err := s.dse.HistoricalSeries(gctx, symbol, tf, scrape.SeriesAnchor{
				CurrentPrice: stock.LTP,
				HighPrice:    stock.High,
				LowPrice:     stock.Low,
				Volume:       stock.Volume,
			})
			if err != nil {
				return err
			}
			history = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	data := map[string]any{
		"symbol":       stock.Symbol,
		"name":         stock.Name,
		"sector":       stock.Sector,
		"category":     stock.Category,
		"market":       stock,
		"fundamentals": fund,
	}
	if history != nil {
		data["history"] = map[string]any{
			"timeframe": tf,
			"data":      history.Points,
			"count":     len(history.Points),
			"source":    history.Source,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"data":       data,
		"marketOpen": marketOpen,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	articles, err := s.news.MarketNews(ctx, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":      articles,
		"count":     len(articles),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ============================================================
// Helpers
// ============================================================

// requestParams merges query-string parameters with a JSON body (when the
// request is a POST carrying one), so every endpoint accepts either form.
func requestParams(r *http.Request) map[string]string {
	params := make(map[string]string)
	for key, vals := range r.URL.Query() {
		if len(vals) > 0 {
			params[key] = vals[0]
		}
	}

	if r.Method == http.MethodPost && r.Body != nil {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			for key, val := range body {
				switch v := val.(type) {
				case string:
					params[key] = v
				case float64:
					params[key] = strconv.FormatFloat(v, 'f', -1, 64)
				case bool:
					params[key] = strconv.FormatBool(v)
				}
			}
		}
	}

	return params
}

// symbolParam resolves the trading code from the path or the already-parsed
// parameter map. The request body can only be decoded once, so callers pass
// the same map they read every other parameter from.
func symbolParam(r *http.Request, params map[string]string) string {
	if sym := chi.URLParam(r, "symbol"); sym != "" {
		return strings.ToUpper(strings.TrimSpace(sym))
	}
	return strings.ToUpper(strings.TrimSpace(params["symbol"]))
}

// anchorFromParams parses the numeric anchors for history synthesis.
// A present-but-unparseable value is a validation error, never silently
// coerced to zero.
func anchorFromParams(params map[string]string) (scrape.SeriesAnchor, error) {
	var anchor scrape.SeriesAnchor

	parse := func(name string, dst *float64) error {
		v, ok := params[name]
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", name, v)
		}
		*dst = f
		return nil
	}

	if err := parse("currentPrice", &anchor.CurrentPrice); err != nil {
		return anchor, err
	}
	if err := parse("highPrice", &anchor.HighPrice); err != nil {
		return anchor, err
	}
	if err := parse("lowPrice", &anchor.LowPrice); err != nil {
		return anchor, err
	}
	if v, ok := params["volume"]; ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return anchor, fmt.Errorf("invalid volume: %q", v)
		}
		anchor.Volume = n
	}
	return anchor, nil
}

// lookupStock resolves a trading code against the derived snapshot.
func lookupStock(stocks []models.Stock, symbol string) (models.Stock, error) {
	for _, st := range stocks {
		if st.Symbol == symbol {
			return st, nil
		}
	}
	return models.Stock{}, fmt.Errorf("%s: %w", symbol, scrape.ErrSymbolNotFound)
}

// statusForError maps pipeline errors to HTTP statuses: unknown symbols
// are 404s, everything else from upstream is a 500. Raw error text is
// wrapped in the {error} envelope, never a stack trace.
func statusForError(err error) int {
	if errors.Is(err, scrape.ErrSymbolNotFound) {
		return http.StatusNotFound
	}
	var httpErr *scrape.ErrHTTP
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
