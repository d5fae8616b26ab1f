package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"treasuryd/engine"
	"treasuryd/storage"
)

// AdminStore captures the configuration and history operations the admin API
// exposes.
type AdminStore interface {
	GetTenant(tenantID string) (*engine.TenantConfig, error)
	SetTreasury(tenantID string, treasury common.Address) (*engine.TenantConfig, error)
	SetDefaultToken(tenantID string, token engine.Token) (*engine.TenantConfig, error)
	SetRolePayout(tenantID, roleID string, amount *big.Int, token engine.Token) (*engine.TenantConfig, error)
	RemoveRolePayout(tenantID, roleID string) (*engine.TenantConfig, error)
	SetEnabled(tenantID string, enabled bool) (*engine.TenantConfig, error)
	SetNotificationChannel(tenantID, channel string) (*engine.TenantConfig, error)
	List(tenantID string) ([]engine.DisbursementRecord, error)
}

// Runner triggers disbursement runs on demand.
type Runner interface {
	Run(ctx context.Context, tenantID string, trigger engine.Trigger) (engine.DisbursementResult, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Store             AdminStore
	Runner            Runner
	Logger            *slog.Logger
	BearerToken       string
	RequestsPerMinute float64
}

// Server exposes the authenticated admin HTTP API.
type Server struct {
	store  AdminStore
	runner Runner
	logger *slog.Logger
	router http.Handler
}

// New constructs a configured router with authentication and rate limiting.
func New(cfg Config) (*Server, error) {
	auth, err := NewAuthenticator(cfg.BearerToken)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		store:  cfg.Store,
		runner: cfg.Runner,
		logger: logger,
	}

	limiter := NewRateLimiter(cfg.RequestsPerMinute)
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Get("/healthz", srv.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/v1/tenants/{tenantID}", func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Use(limiter.Middleware)
		r.Get("/", srv.handleGetTenant)
		r.Get("/history", srv.handleHistory)
		r.Post("/runs", srv.handleRun)
		r.Put("/treasury", srv.handleSetTreasury)
		r.Put("/token", srv.handleSetToken)
		r.Put("/roles/{roleID}", srv.handleSetRole)
		r.Delete("/roles/{roleID}", srv.handleRemoveRole)
		r.Post("/enable", srv.handleEnable)
		r.Post("/disable", srv.handleDisable)
		r.Put("/notifications", srv.handleSetNotifications)
	})
	srv.router = otelhttp.NewHandler(r, "treasuryd.admin")
	return srv, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.GetTenant(tenantParam(r))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(tenantParam(r))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantParam(r)
	result, err := s.runner.Run(r.Context(), tenantID, engine.TriggerManual)
	if err != nil {
		if errors.Is(err, engine.ErrRunInFlight) {
			writeError(w, http.StatusConflict, "a disbursement run is already in flight for this tenant")
			return
		}
		s.logger.Error("manual run failed", "tenant", tenantID, "error", err)
		writeError(w, http.StatusBadGateway, "disbursement run could not be completed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type treasuryRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleSetTreasury(w http.ResponseWriter, r *http.Request) {
	var req treasuryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !common.IsHexAddress(strings.TrimSpace(req.Address)) {
		writeError(w, http.StatusBadRequest, "address must be a valid hex account address")
		return
	}
	cfg, err := s.store.SetTreasury(tenantParam(r), common.HexToAddress(req.Address))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleSetToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	token, err := engine.ParseToken(req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := s.store.SetDefaultToken(tenantParam(r), token)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type rolePayoutRequest struct {
	Amount string `json:"amount"`
	Token  string `json:"token"`
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var req rolePayoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(req.Amount), 10)
	if !ok || amount.Sign() < 0 {
		writeError(w, http.StatusBadRequest, "amount must be a non-negative integer in smallest units")
		return
	}
	token := engine.NativeToken
	if strings.TrimSpace(req.Token) != "" {
		parsed, err := engine.ParseToken(req.Token)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		token = parsed
	}
	cfg, err := s.store.SetRolePayout(tenantParam(r), chi.URLParam(r, "roleID"), amount, token)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.RemoveRolePayout(tenantParam(r), chi.URLParam(r, "roleID"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.SetEnabled(tenantParam(r), true)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.SetEnabled(tenantParam(r), false)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type notificationsRequest struct {
	Channel string `json:"channel"`
}

func (s *Server) handleSetNotifications(w http.ResponseWriter, r *http.Request) {
	var req notificationsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cfg, err := s.store.SetNotificationChannel(tenantParam(r), req.Channel)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrTreasuryRequired),
		errors.Is(err, storage.ErrTenantRequired),
		errors.Is(err, storage.ErrRoleRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("store operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func tenantParam(r *http.Request) string {
	return chi.URLParam(r, "tenantID")
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
