// Package api serves the keeper's status REST API, Prometheus metrics and a WebSocket feed of
// order lifecycle updates.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/nextprice-keeper/pkg/keeper"
)

const defaultExecutionLimit = 100

// KeeperView is the read side of the keeper.
type KeeperView interface {
	Status() keeper.Status
	Orders() []keeper.OrderView
	Order(account common.Address) (keeper.OrderView, bool)
}

// ExecutionLog is the read side of the execution journal.
type ExecutionLog interface {
	Executions(account common.Address, limit int) ([]keeper.Execution, error)
	RecentExecutions(limit int) ([]keeper.Execution, error)
}

// Server handles REST API and WebSocket connections
type Server struct {
	keeper  KeeperView
	journal ExecutionLog
	metrics http.Handler // optional

	router *mux.Router
	hub    *Hub
	logger *zap.SugaredLogger
}

func NewServer(k KeeperView, journal ExecutionLog, metrics http.Handler, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		keeper:  k,
		journal: journal,
		metrics: metrics,
		router:  mux.NewRouter(),
		hub:     NewHub(logger),
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/status", s.handleGetStatus).Methods("GET")
	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders/{account}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/executions", s.handleGetRecentExecutions).Methods("GET")
	api.HandleFunc("/accounts/{account}/executions", s.handleGetExecutions).Methods("GET")

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods("GET")
	}

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped router.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Hub returns the WebSocket hub; Run must be called for clients to connect.
func (s *Server) Hub() *Hub { return s.hub }

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("api_server_starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, HealthResponse{Status: "ok", LastBlock: s.keeper.Status().LastBlock})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.keeper.Status())
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.keeper.Orders()
	respondJSON(w, OrdersResponse{Count: len(orders), Orders: orders})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	addr, ok := accountVar(w, r)
	if !ok {
		return
	}
	order, found := s.keeper.Order(addr)
	if !found {
		respondError(w, http.StatusNotFound, "order not found", addr.Hex())
		return
	}
	respondJSON(w, order)
}

func (s *Server) handleGetExecutions(w http.ResponseWriter, r *http.Request) {
	addr, ok := accountVar(w, r)
	if !ok {
		return
	}
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	execs, err := s.journal.Executions(addr, limit)
	if err != nil {
		s.logger.Warnw("journal_read_failed", "account", addr.Hex(), "err", err)
		respondError(w, http.StatusInternalServerError, "journal read failed", err.Error())
		return
	}
	if execs == nil {
		execs = []keeper.Execution{}
	}
	respondJSON(w, ExecutionsResponse{Account: addr.Hex(), Executions: execs})
}

func (s *Server) handleGetRecentExecutions(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	execs, err := s.journal.RecentExecutions(limit)
	if err != nil {
		s.logger.Warnw("journal_read_failed", "err", err)
		respondError(w, http.StatusInternalServerError, "journal read failed", err.Error())
		return
	}
	if execs == nil {
		execs = []keeper.Execution{}
	}
	respondJSON(w, ExecutionsResponse{Executions: execs})
}

// ==============================
// Broadcast Methods (called from the keeper loop)
// ==============================

func (s *Server) PublishOrderUpdate(u keeper.OrderUpdate) {
	s.hub.BroadcastToChannel(ChannelOrders, u)
}

func (s *Server) PublishExecution(exec keeper.Execution) {
	s.hub.BroadcastToChannel(ChannelExecutions, exec)
}

// ==============================
// Helper Functions
// ==============================

func accountVar(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	account := mux.Vars(r)["account"]
	if !common.IsHexAddress(account) {
		respondError(w, http.StatusBadRequest, "invalid address", account)
		return common.Address{}, false
	}
	return common.HexToAddress(account), true
}

func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultExecutionLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		respondError(w, http.StatusBadRequest, "invalid limit", raw)
		return 0, false
	}
	return limit, true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
