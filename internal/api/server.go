// Package api serves opportunities, stateless calculations and metrics over
// HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rewired-gh/arbscout/internal/arbitrage"
	"github.com/rewired-gh/arbscout/internal/kelly"
	"github.com/rewired-gh/arbscout/internal/logger"
	"github.com/rewired-gh/arbscout/internal/models"
	"github.com/rewired-gh/arbscout/internal/oddsfeed"
)

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 4 << 20

// Snapshot is the monitor state the API reads.
type Snapshot interface {
	Latest() []models.Opportunity
	Quotes() []models.Quote
}

type Options struct {
	Engine          *arbitrage.Engine
	Snapshot        Snapshot
	Metrics         http.Handler
	TotalStake      float64
	EnhancedOptions arbitrage.EnhancedOptions
	AllowedOrigins  []string
	Now             func() time.Time
}

type handler struct {
	engine     *arbitrage.Engine
	snapshot   Snapshot
	totalStake float64
	enhanced   arbitrage.EnhancedOptions
	now        func() time.Time
}

// NewRouter builds the HTTP routes.
func NewRouter(opts Options) http.Handler {
	h := &handler{
		engine:     opts.Engine,
		snapshot:   opts.Snapshot,
		totalStake: opts.TotalStake,
		enhanced:   opts.EnhancedOptions,
		now:        opts.Now,
	}
	if h.engine == nil {
		h.engine = arbitrage.New()
	}
	if h.now == nil {
		h.now = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/opportunities", h.opportunities)
		r.Get("/opportunities/enhanced", h.enhancedOpportunities)
		r.Post("/arbitrage", h.calculateArbitrage)
		r.Post("/kelly", h.calculateKelly)
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	return r
}

// NewServer wraps handler in an http.Server with the given timeouts.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Slog().Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	open := 0
	if h.snapshot != nil {
		open = len(h.snapshot.Latest())
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "healthy",
		"timestamp":          h.now().UTC(),
		"open_opportunities": open,
	})
}

// opportunities lists the latest refresh.
// Query params: guaranteed_only, market, limit
func (h *handler) opportunities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	guaranteedOnly, err := parseBoolParam(q.Get("guaranteed_only"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid guaranteed_only")
		return
	}
	limit, err := parseIntParam(q.Get("limit"), 0)
	if err != nil || limit < 0 {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	market := strings.ToUpper(q.Get("market"))
	if market != "" && market != string(models.MarketType1X2) && market != string(models.MarketTypeOverUnder) {
		respondError(w, http.StatusBadRequest, "unknown market")
		return
	}

	opps := []models.Opportunity{}
	if h.snapshot != nil {
		for _, o := range h.snapshot.Latest() {
			if guaranteedOnly && !o.IsGuaranteed() {
				continue
			}
			if market != "" && string(o.Market) != market {
				continue
			}
			opps = append(opps, o)
		}
	}
	if limit > 0 && len(opps) > limit {
		opps = opps[:limit]
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"opportunities": opps,
		"count":         len(opps),
	})
}

// enhancedOpportunities runs the enhanced evaluator over the latest quote
// snapshot.
// Query params: min_profit, max_risk
func (h *handler) enhancedOpportunities(w http.ResponseWriter, r *http.Request) {
	opts := h.enhanced
	q := r.URL.Query()

	var err error
	if opts.MinProfitPercentage, err = parseFloatParam(q.Get("min_profit"), opts.MinProfitPercentage); err != nil {
		respondError(w, http.StatusBadRequest, "invalid min_profit")
		return
	}
	if opts.MaxRiskLevel, err = parseFloatParam(q.Get("max_risk"), opts.MaxRiskLevel); err != nil ||
		opts.MaxRiskLevel < 0 || opts.MaxRiskLevel > 1 {
		respondError(w, http.StatusBadRequest, "invalid max_risk")
		return
	}

	var quotes []models.Quote
	if h.snapshot != nil {
		quotes = h.snapshot.Quotes()
	}
	opps := h.engine.ComputeEnhanced(quotes, h.totalStake, opts)
	if opps == nil {
		opps = []models.EnhancedOpportunity{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"opportunities": opps,
		"count":         len(opps),
	})
}

type arbitrageRequest struct {
	TotalStake float64              `json:"total_stake"`
	Enhanced   bool                 `json:"enhanced"`
	Quotes     []oddsfeed.WireQuote `json:"quotes"`
}

func (h *handler) calculateArbitrage(w http.ResponseWriter, r *http.Request) {
	var req arbitrageRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TotalStake < 0 {
		respondError(w, http.StatusBadRequest, "total_stake must not be negative")
		return
	}
	if req.TotalStake == 0 {
		req.TotalStake = h.totalStake
	}

	quotes, dropped := oddsfeed.ConvertAll(req.Quotes)

	if req.Enhanced {
		opps := h.engine.ComputeEnhanced(quotes, req.TotalStake, h.enhanced)
		if opps == nil {
			opps = []models.EnhancedOpportunity{}
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"opportunities": opps,
			"count":         len(opps),
			"dropped":       dropped,
		})
		return
	}

	report := h.engine.Analyze(quotes, req.TotalStake)
	opps := report.Opportunities
	if opps == nil {
		opps = []models.Opportunity{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"opportunities": opps,
		"count":         len(opps),
		"dropped":       dropped + report.Dropped,
		"failed_groups": report.FailedGroups,
	})
}

func (h *handler) calculateKelly(w http.ResponseWriter, r *http.Request) {
	var in kelly.Input
	if err := decodeBody(w, r, &in); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := kelly.Calculate(in)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func parseBoolParam(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

func parseIntParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func parseFloatParam(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
