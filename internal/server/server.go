package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/replypilot/replypilot/internal/account"
)

// Inbound is the conversation surface the SMS webhook drives.
type Inbound interface {
	HandleInbound(ctx context.Context, phone, body, messageSid string) (string, error)
}

// StatusLog applies delivery-status callbacks.
type StatusLog interface {
	Record(ctx context.Context, sid, phone, direction, status, body string) error
	UpdateStatus(ctx context.Context, sid, status string) error
}

// BillingProcessor applies verified billing events.
type BillingProcessor interface {
	Process(ctx context.Context, payload []byte) error
}

// AccountAdmin is the account surface behind the admin API.
type AccountAdmin interface {
	ListAll(ctx context.Context) ([]*account.Account, error)
	GetByID(ctx context.Context, id string) (*account.Account, error)
	SetMonitoringPaused(ctx context.Context, id string, paused bool) error
}

// Pinger reports storage health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Config carries the webhook and admin secrets.
type Config struct {
	BillingWebhookSecret string
	AdminAPIKeyHash      string
	APIKeySecret         string
}

// Server is the webhook and admin HTTP surface.
type Server struct {
	router   *mux.Router
	inbound  Inbound
	statuses StatusLog
	billing  BillingProcessor
	accounts AccountAdmin
	db       Pinger
	cfg      Config
}

func New(cfg Config, inbound Inbound, statuses StatusLog, billing BillingProcessor, accounts AccountAdmin, db Pinger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		inbound:  inbound,
		statuses: statuses,
		billing:  billing,
		accounts: accounts,
		db:       db,
		cfg:      cfg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.Health).Methods(http.MethodGet)

	s.router.HandleFunc("/webhooks/sms", s.InboundSMS).Methods(http.MethodPost)
	s.router.HandleFunc("/webhooks/sms/status", s.SMSStatus).Methods(http.MethodPost)
	s.router.HandleFunc("/webhooks/billing", s.BillingWebhook).Methods(http.MethodPost)

	admin := s.router.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAPIKey)
	admin.HandleFunc("/accounts", s.ListAccounts).Methods(http.MethodGet)
	admin.HandleFunc("/accounts/{id}", s.GetAccount).Methods(http.MethodGet)
	admin.HandleFunc("/accounts/{id}/pause", s.PauseAccount).Methods(http.MethodPost)
	admin.HandleFunc("/accounts/{id}/resume", s.ResumeAccount).Methods(http.MethodPost)
}

// Handler wraps the router with tracing.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "replypilot-server")
}

// ListenAndServe runs the HTTP server until ctx is canceled, then
// drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
