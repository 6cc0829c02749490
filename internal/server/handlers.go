package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aristath/mcfolio/internal/domain"
	"github.com/aristath/mcfolio/internal/modules/frontier"
	"github.com/aristath/mcfolio/internal/modules/simulation"
)

// Request defaults, applied when the field is omitted.
const (
	defaultSimulations         = 500
	defaultYears               = 10
	defaultFrontierSimulations = 100
	defaultTopN                = 5
)

// SimulateRequest is the body of POST /api/simulate.
type SimulateRequest struct {
	Portfolio   string  `json:"portfolio"`
	Simulations int     `json:"simulations"`
	Years       float64 `json:"years"`
	Frequency   string  `json:"frequency"`
	Rebalancing bool    `json:"rebalancing"`
	Seed        *uint64 `json:"seed,omitempty"`
	KeepPaths   bool    `json:"keep_paths"`
	WriteReport bool    `json:"write_report"`
}

// SimulateResponse is the body of a successful POST /api/simulate.
type SimulateResponse struct {
	Result    *simulation.Result `json:"result"`
	ReportDir string             `json:"report_dir,omitempty"`
}

// FrontierRequest is the body of POST /api/frontier.
type FrontierRequest struct {
	Portfolio   string               `json:"portfolio"`
	Grid        *frontier.WeightGrid `json:"grid,omitempty"`
	Simulations int                  `json:"num_sims"`
	Years       float64              `json:"years"`
	Frequency   string               `json:"frequency"`
	Rebalancing bool                 `json:"rebalancing"`
	Seed        *uint64              `json:"seed,omitempty"`
	TopN        int                  `json:"top_n"`
	WriteReport bool                 `json:"write_report"`
}

// frontierRun is a retained search result, queryable by run ID until evicted.
type frontierRun struct {
	portfolio string
	result    *frontier.Result
}

// FrontierResponse is the body of a successful POST /api/frontier.
type FrontierResponse struct {
	RunID        string               `json:"run_id"`
	Evaluated    int                  `json:"evaluated"`
	Skipped      int                  `json:"skipped"`
	ElapsedMs    int64                `json:"elapsed_ms"`
	TopBySharpe  []frontier.Candidate `json:"top_by_sharpe"`
	TopBySortino []frontier.Candidate `json:"top_by_sortino"`
	TopByCVaR    []frontier.Candidate `json:"top_by_cvar"`
	ReportDir    string               `json:"report_dir,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"service": "mcfolio",
	}

	if s.historyDB != nil {
		if err := s.historyDB.HealthCheck(r.Context()); err != nil {
			response["status"] = "degraded"
			response["database"] = err.Error()
		}
	}
	if s.client != nil {
		response["api_requests_remaining"] = s.client.GetRemainingRequests()
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleListPortfolios lists the configured portfolio definitions.
func (s *Server) handleListPortfolios(w http.ResponseWriter, _ *http.Request) {
	type portfolioSummary struct {
		Name        string    `json:"name"`
		Instruments []string  `json:"instruments"`
		Weights     []float64 `json:"weights,omitempty"`
	}

	summaries := make([]portfolioSummary, 0, len(s.definitions))
	for _, def := range s.definitions {
		symbols := make([]string, len(def.Instruments))
		for i, inst := range def.Instruments {
			symbols[i] = inst.Symbol
		}
		summaries = append(summaries, portfolioSummary{
			Name:        def.Name,
			Instruments: symbols,
			Weights:     def.Weights,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"portfolios": summaries})
}

// handleSimulate runs a Monte Carlo ensemble for a configured portfolio.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	p, ok := s.buildPortfolio(w, req.Portfolio)
	if !ok {
		return
	}

	if req.Simulations == 0 {
		req.Simulations = defaultSimulations
	}
	if req.Years == 0 {
		req.Years = defaultYears
	}
	frequency, err := parseFrequency(req.Frequency)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	// The report's path chart needs retained paths.
	keepPaths := req.KeepPaths || req.WriteReport

	result, err := s.service.RunSimulation(r.Context(), p, simulation.RunConfig{
		Simulations: req.Simulations,
		Years:       req.Years,
		Frequency:   frequency,
		Rebalancing: req.Rebalancing,
		Seed:        req.Seed,
		KeepPaths:   keepPaths,
	})
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	resp := SimulateResponse{Result: result}
	if req.WriteReport && s.reports != nil {
		dir, err := s.reports.WriteSimulation(p, result)
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to write simulation report")
		} else {
			resp.ReportDir = dir
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleFrontier runs a brute-force efficient frontier search.
func (s *Server) handleFrontier(w http.ResponseWriter, r *http.Request) {
	var req FrontierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	p, ok := s.buildPortfolio(w, req.Portfolio)
	if !ok {
		return
	}

	grid := frontier.DefaultGrid()
	if req.Grid != nil {
		grid = *req.Grid
	}
	if req.Simulations == 0 {
		req.Simulations = defaultFrontierSimulations
	}
	if req.Years == 0 {
		req.Years = defaultYears
	}
	if req.TopN == 0 {
		req.TopN = defaultTopN
	}
	frequency, err := parseFrequency(req.Frequency)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.service.BuildEfficientFrontier(r.Context(), p, frontier.Config{
		Grid:        grid,
		Simulations: req.Simulations,
		Years:       req.Years,
		Frequency:   frequency,
		Rebalancing: req.Rebalancing,
		Seed:        req.Seed,
		TopN:        req.TopN,
	})
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	runID := s.retainFrontier(req.Portfolio, result)

	resp := FrontierResponse{
		RunID:        runID,
		Evaluated:    result.Evaluated,
		Skipped:      result.Skipped,
		ElapsedMs:    result.Elapsed.Milliseconds(),
		TopBySharpe:  result.TopBySharpe(req.TopN),
		TopBySortino: result.TopBySortino(req.TopN),
		TopByCVaR:    result.TopByCVaR(req.TopN),
	}
	if req.WriteReport && s.reports != nil {
		dir, err := s.reports.WriteFrontier(p, result, req.TopN)
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to write frontier report")
		} else {
			resp.ReportDir = dir
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// retainFrontier stores a search result for later /top queries, evicting the
// oldest retained run past the cap. Returns the assigned run ID.
func (s *Server) retainFrontier(portfolioName string, result *frontier.Result) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.frontiers[id] = &frontierRun{portfolio: portfolioName, result: result}
	s.order = append(s.order, id)
	for len(s.order) > maxRetainedFrontiers {
		delete(s.frontiers, s.order[0])
		s.order = s.order[1:]
	}
	return id
}

// handleFrontierTop serves rankings of a retained frontier run:
// GET /api/frontier/{id}/top?metric=sharpe|sortino|cvar&n=5
func (s *Server) handleFrontierTop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	run, ok := s.frontiers[id]
	s.mu.Unlock()
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("unknown or expired frontier run %q", id))
		return
	}

	n := defaultTopN
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid n %q", raw))
			return
		}
		n = parsed
	}

	metric := r.URL.Query().Get("metric")
	var top []frontier.Candidate
	switch metric {
	case "", "sharpe":
		metric = "sharpe"
		top = run.result.TopBySharpe(n)
	case "sortino":
		top = run.result.TopBySortino(n)
	case "cvar":
		top = run.result.TopByCVaR(n)
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown metric %q (sharpe, sortino or cvar)", metric))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":     id,
		"portfolio":  run.portfolio,
		"metric":     metric,
		"candidates": top,
	})
}

// buildPortfolio resolves a named definition into a portfolio, writing the
// error response itself on failure.
func (s *Server) buildPortfolio(w http.ResponseWriter, name string) (*domain.Portfolio, bool) {
	if name == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("portfolio name is required"))
		return nil, false
	}

	def, ok := s.definitions[name]
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("unknown portfolio %q", name))
		return nil, false
	}

	p, err := s.service.Build(def)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return nil, false
	}
	return p, true
}

func parseFrequency(raw string) (simulation.Frequency, error) {
	if raw == "" {
		return simulation.FrequencyMonthly, nil
	}
	return simulation.ParseFrequency(raw)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var cfgErr domain.ErrConfiguration
	if errors.As(err, &cfgErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
