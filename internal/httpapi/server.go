// Package httpapi exposes the gateway's HTTP surface: balance aggregation,
// batch token metadata, the escrow list, health and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"escrow-gateway/internal/balance"
	"escrow-gateway/internal/domain"
	"escrow-gateway/internal/escrow"
	"escrow-gateway/internal/metadata"
	"escrow-gateway/internal/observability"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// Server is the gateway HTTP server.
type Server struct {
	aggregator *balance.Aggregator
	resolver   *metadata.Resolver
	escrows    *escrow.Service
	logger     *log.Logger
	httpServer *http.Server
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, aggregator *balance.Aggregator, resolver *metadata.Resolver, escrows *escrow.Service, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stdout, "[httpapi] ", log.LstdFlags|log.Lshortfile)
	}

	s := &Server{
		aggregator: aggregator,
		resolver:   resolver,
		escrows:    escrows,
		logger:     logger,
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/balances", s.instrument("/balances", s.handleBalances))
	mux.HandleFunc("/token-details", s.instrument("/token-details", s.handleTokenDetails))
	mux.HandleFunc("/escrows", s.instrument("/escrows", s.handleEscrows))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	return mux
}

// ListenAndServe runs the server until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	s.logger.Printf("Starting HTTP server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r)
		observability.RecordHTTPRequest(route, rec.code, time.Since(start).Seconds())
	}
}

type balancesRequest struct {
	Address string `json:"address"`
}

type balancesResponse struct {
	Balances []domain.TokenHolding `json:"balances"`
}

type tokenDetailsRequest struct {
	Addresses []string `json:"addresses"`
}

type tokenDetailsResponse struct {
	Success bool                `json:"success"`
	Tokens  []*domain.TokenMeta `json:"tokens"`
}

type escrowsResponse struct {
	Escrows []domain.EscrowRecord `json:"escrows"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req balancesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil || req.Address == "" {
		writeError(w, http.StatusBadRequest, "Missing wallet address", "")
		return
	}
	if !validWalletAddress(req.Address) {
		writeError(w, http.StatusBadRequest, "Invalid wallet address", "")
		return
	}

	holdings, err := s.aggregator.Aggregate(r.Context(), req.Address)
	if err != nil {
		s.logger.Printf("aggregate %s: %v", req.Address, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch balances", "")
		return
	}

	writeJSON(w, http.StatusOK, balancesResponse{Balances: holdings})
}

func (s *Server) handleTokenDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req tokenDetailsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil || len(req.Addresses) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid addresses array", "")
		return
	}
	for _, addr := range req.Addresses {
		if !validTokenAddress(addr) {
			writeError(w, http.StatusBadRequest, "Invalid addresses array", "invalid address: "+addr)
			return
		}
	}

	tokens := s.resolver.ResolveBatch(r.Context(), req.Addresses)
	writeJSON(w, http.StatusOK, tokenDetailsResponse{Success: true, Tokens: tokens})
}

func (s *Server) handleEscrows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	writeJSON(w, http.StatusOK, escrowsResponse{Escrows: s.escrows.Records()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message, details string) {
	writeJSON(w, code, errorResponse{Error: message, Details: details})
}
