package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sokoniapp/sokoni/internal/config"
	"github.com/sokoniapp/sokoni/internal/handlers"
	"github.com/sokoniapp/sokoni/internal/observability"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.MetricsContext)
	r.Use(h.SecurityHeaders)

	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.Handle("/metrics", observability.MetricsHandler()).Methods("GET").Name("metrics")
	r.HandleFunc("/webhooks/gateway", h.GatewayWebhook).Methods("POST").Name("webhooks.gateway")
	r.HandleFunc("/payments/callback", h.PaymentCallback).Methods("GET").Name("payments.callback")

	// Buyer checkout API
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/checkout", h.StartCheckout).Methods("POST").Name("checkout.start")
	api.HandleFunc("/checkout/{sessionID}", h.CheckoutStatus).Methods("GET").Name("checkout.status")
	api.HandleFunc("/checkout/{sessionID}", h.CancelCheckout).Methods("DELETE").Name("checkout.cancel")
	api.HandleFunc("/checkout/{sessionID}/details", h.SubmitDetails).Methods("POST").Name("checkout.details")
	api.HandleFunc("/checkout/{sessionID}/methods", h.ListMethods).Methods("GET").Name("checkout.methods")
	api.HandleFunc("/checkout/{sessionID}/method", h.SelectMethod).Methods("POST").Name("checkout.method")
	api.HandleFunc("/checkout/{sessionID}/hosted", h.BeginHostedPayment).Methods("POST").Name("checkout.hosted")
	api.HandleFunc("/checkout/{sessionID}/proof", h.SubmitProof).Methods("POST").Name("checkout.proof")
	api.HandleFunc("/orders/{orderID}/status", h.OrderStatus).Methods("GET").Name("orders.status")

	// Seller admin API - requires a bearer token
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(h.RequireAdmin)
	admin.HandleFunc("/orders/{orderID}", h.AdminInspectOrder).Methods("GET").Name("admin.orders.inspect")
	admin.HandleFunc("/orders/{orderID}/approve", h.AdminApproveOrder).Methods("POST").Name("admin.orders.approve")
	admin.HandleFunc("/orders/{orderID}/reject", h.AdminRejectOrder).Methods("POST").Name("admin.orders.reject")
	admin.HandleFunc("/orders/{orderID}/reopen", h.AdminReopenOrder).Methods("POST").Name("admin.orders.reopen")
	admin.HandleFunc("/orders/{orderID}/ship", h.AdminShipOrder).Methods("POST").Name("admin.orders.ship")
	admin.HandleFunc("/orders/{orderID}/deliver", h.AdminDeliverOrder).Methods("POST").Name("admin.orders.deliver")
	admin.HandleFunc("/stores/{storeID}/gateway", h.AdminUpdateGatewayCredentials).Methods("PUT").Name("admin.stores.gateway")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	return r
}
