package server

import (
	"net/http"

	"github.com/jktan/assetfolio/internal/common"
	"github.com/jktan/assetfolio/internal/interfaces"
	"github.com/jktan/assetfolio/internal/models"
	"github.com/jktan/assetfolio/internal/services/performance"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"environment":   s.app.Config.Environment,
		"base_currency": s.app.Config.BaseCurrency,
		"benchmark":     s.app.Config.Benchmark.Ticker,
		"logging_level": s.app.Config.Logging.Level,
	})
}

func (s *Server) handleBenchmarkCatalog(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"default": s.app.Config.Benchmark.Ticker,
		"catalog": s.app.Config.Benchmark.Catalog,
	})
}

// positionOptions builds the filter from query parameters. Dividends are
// included unless explicitly disabled.
func positionOptions(r *http.Request) interfaces.PositionOptions {
	return interfaces.PositionOptions{
		Tickers:          queryList(r, "tickers"),
		Brokers:          queryList(r, "brokers"),
		IncludeDividends: queryBool(r, "dividends", true),
	}
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.app.PortfolioService.Positions(r.Context(), positionOptions(r))
	if err != nil {
		s.logger.Error().Err(err).Msg("Position assembly failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	summary := summarize(positions, s.app.Config.BaseCurrency)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"summary":   summary,
	})
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	positions, err := s.app.PortfolioService.Positions(ctx, positionOptions(r))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	benchmark := r.URL.Query().Get("benchmark")
	if benchmark == "" {
		benchmark = s.app.Config.Benchmark.Ticker
	}

	portfolioXIRR := s.app.PerformanceService.PortfolioXIRR(ctx, positions)
	benchmarkXIRR, err := s.app.PerformanceService.BenchmarkXIRR(ctx, positions, benchmark)
	if err != nil {
		s.logger.Warn().Err(err).Str("benchmark", benchmark).Msg("Benchmark comparison unavailable")
		benchmarkXIRR = nil
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"xirr":           portfolioXIRR,
		"benchmark":      benchmark,
		"benchmark_xirr": benchmarkXIRR,
		"summary":        summarize(positions, s.app.Config.BaseCurrency),
	})
}

func (s *Server) handleDividendSummary(w http.ResponseWriter, r *http.Request) {
	positions, err := s.app.PortfolioService.Positions(r.Context(), positionOptions(r))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"by_year":       s.app.PerformanceService.DividendYearSummary(positions),
		"base_currency": s.app.Config.BaseCurrency,
	})
}

func (s *Server) handleInvestmentSeries(w http.ResponseWriter, r *http.Request) {
	positions, err := s.app.PortfolioService.Positions(r.Context(), positionOptions(r))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, s.app.PerformanceService.InvestmentSeries(positions))
}

func (s *Server) handleValueSeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	positions, err := s.app.PortfolioService.Positions(ctx, positionOptions(r))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	points, err := s.app.PerformanceService.ValueSeries(ctx, positions, seriesOptions(r))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, points)
}

func (s *Server) handleBenchmarkSeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	positions, err := s.app.PortfolioService.Positions(ctx, positionOptions(r))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	benchmark := r.URL.Query().Get("benchmark")
	if benchmark == "" {
		benchmark = s.app.Config.Benchmark.Ticker
	}

	points, err := s.app.PerformanceService.BenchmarkSeries(ctx, positions, benchmark, seriesOptions(r))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, points)
}

// handleChart renders the portfolio-vs-benchmark comparison as a PNG.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	positions, err := s.app.PortfolioService.Positions(ctx, positionOptions(r))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	benchmark := r.URL.Query().Get("benchmark")
	if benchmark == "" {
		benchmark = s.app.Config.Benchmark.Ticker
	}

	opts := seriesOptions(r)
	value, err := s.app.PerformanceService.ValueSeries(ctx, positions, opts)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	benchSeries, err := s.app.PerformanceService.BenchmarkSeries(ctx, positions, benchmark, opts)
	if err != nil {
		s.logger.Warn().Err(err).Str("benchmark", benchmark).Msg("Benchmark series unavailable for chart")
		benchSeries = nil
	}

	label := s.app.Config.Benchmark.Catalog[benchmark]
	if label == "" {
		label = benchmark
	}

	png, err := performance.RenderComparisonChart(value, benchSeries,
		s.app.PerformanceService.InvestmentSeries(positions), label, s.app.Config.BaseCurrency)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func seriesOptions(r *http.Request) interfaces.SeriesOptions {
	return interfaces.SeriesOptions{Frequency: r.URL.Query().Get("frequency")}
}

// portfolioSummary aggregates base-currency totals across positions.
type portfolioSummary struct {
	BaseCurrency    string  `json:"base_currency"`
	MarketValue     float64 `json:"market_value"`
	TotalInvestment float64 `json:"total_investment"`
	Exposure        float64 `json:"exposure"`
	RealizedPNL     float64 `json:"realized_pnl"`
	UnrealizedPNL   float64 `json:"unrealized_pnl"`
	TotalPNL        float64 `json:"total_pnl"`
	Dividends       float64 `json:"dividends"`
	FXDegraded      bool    `json:"fx_degraded,omitempty"`
}

func summarize(positions []*models.Position, baseCurrency string) portfolioSummary {
	summary := portfolioSummary{BaseCurrency: baseCurrency}
	for _, pos := range positions {
		summary.MarketValue += pos.MarketValueBase()
		summary.TotalInvestment += pos.TotalInvestmentBase()
		summary.Exposure += pos.ExposureBase()
		summary.RealizedPNL += pos.RealizedPNLBase()
		summary.UnrealizedPNL += pos.UnrealizedPNLBase()
		summary.TotalPNL += pos.TotalPNLBase()
		summary.Dividends += pos.DividendsNetBase
		if pos.FXDegraded {
			summary.FXDegraded = true
		}
	}
	return summary
}
