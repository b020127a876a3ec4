package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nftmarket/native/fees"
	"nftmarket/native/marketplace"
	"nftmarket/native/sandbox"
	"nftmarket/observability"
	marketotel "nftmarket/observability/otel"
	"nftmarket/services/marketd/archive"
	"nftmarket/services/marketd/sequencer"
)

const maxBodyBytes = 1 << 20

// Executor serialises access to the engine.
type Executor interface {
	Do(ctx context.Context, fn func() error) error
}

// FeeSource reports settled volume and fees per payment token.
type FeeSource interface {
	FeeTotals() map[common.Address]fees.Totals
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Sandbox   *sandbox.Sandbox
	Executor  Executor
	Archive   *archive.Archive
	Hub       *Hub
	Fees      FeeSource
	Auth      AuthConfig
	RateLimit RateLimit
	Logger    *slog.Logger
}

// Server exposes the marketplace over HTTP.
type Server struct {
	sandbox *sandbox.Sandbox
	engine  *marketplace.Engine
	exec    Executor
	archive *archive.Archive
	hub     *Hub
	fees    FeeSource
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger

	router http.Handler
}

// New constructs the server and its router.
func New(cfg Config) (*Server, error) {
	if cfg.Sandbox == nil || cfg.Sandbox.Engine == nil {
		return nil, errors.New("server: sandbox required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("server: executor required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub(0, cfg.Logger)
	}
	cfg.Auth.Reserved = append(cfg.Auth.Reserved, cfg.Sandbox.Engine.Address())
	srv := &Server{
		sandbox: cfg.Sandbox,
		engine:  cfg.Sandbox.Engine,
		exec:    cfg.Executor,
		archive: cfg.Archive,
		hub:     cfg.Hub,
		fees:    cfg.Fees,
		auth:    NewAuthenticator(cfg.Auth, cfg.Logger),
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  cfg.Logger,
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.limiter.Middleware)

		api.Get("/tokens", s.handlePayableTokens)
		api.Get("/assets/{contract}/{assetId}", s.handleAssetState)
		api.Get("/listings/{contract}/{assetId}", s.handleGetListing)
		api.Get("/offers/{contract}/{assetId}", s.handleGetOffers)
		api.Get("/auctions/{contract}/{assetId}", s.handleGetAuction)
		api.Get("/events", s.handleEvents)
		api.Handle("/events/stream", s.hub)
		api.Get("/fees", s.handleFees)
		api.Get("/sandbox/balances/{token}/{account}", s.handleBalance)
		api.Get("/sandbox/tokens/{token}", s.handleTokenInfo)

		api.Group(func(protected chi.Router) {
			protected.Use(s.auth.Middleware)
			protected.Post("/tokens", s.handleAddPayableToken)

			protected.Post("/listings", s.handleListNFT)
			protected.Delete("/listings/{contract}/{assetId}", s.handleCancelListing)
			protected.Post("/listings/{contract}/{assetId}/buy", s.handleBuyNFT)

			protected.Post("/offers", s.handleOfferNFT)
			protected.Delete("/offers/{contract}/{assetId}", s.handleCancelOffer)
			protected.Post("/offers/{contract}/{assetId}/accept", s.handleAcceptOffer)

			protected.Post("/auctions", s.handleCreateAuction)
			protected.Delete("/auctions/{contract}/{assetId}", s.handleCancelAuction)
			protected.Post("/auctions/{contract}/{assetId}/bids", s.handleBid)
			protected.Post("/auctions/{contract}/{assetId}/result", s.handleResultAuction)

			protected.Post("/sandbox/approvals/assets", s.handleApproveAsset)
			protected.Post("/sandbox/approvals/tokens", s.handleApproveToken)
		})
	})

	return otelhttp.NewHandler(r, "marketd")
}

// observe records per-route request metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.ModuleMetrics().Observe("marketd", r.Method+" "+route, status, time.Since(start))
	})
}

// execute applies a mutating engine call through the executor inside a span
// and records the outcome.
func (s *Server) execute(ctx context.Context, op string, caller string, fn func() error) error {
	ctx, span := marketotel.StartOperation(ctx, op, caller)
	start := time.Now()
	err := s.exec.Do(ctx, fn)
	outcome := "success"
	if err != nil {
		outcome = marketplace.KindOf(err).String()
		s.logger.Warn("operation rejected",
			slog.String("op", op),
			slog.String("kind", outcome),
			slog.String("caller", caller),
			slog.Any("error", err))
	}
	marketotel.EndOperation(span, outcome, err)
	observability.Marketplace().ObserveOperation(op, outcome, time.Since(start))
	return err
}

// read runs a query through the executor so it observes a consistent state.
func (s *Server) read(ctx context.Context, fn func() error) error {
	return s.exec.Do(ctx, fn)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]interface{}{"status": "ok"}
	if s.archive != nil {
		seq, head := s.archive.Head()
		body["archiveSeq"] = seq
		body["archiveHead"] = head
	}
	writeJSON(w, http.StatusOK, body)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}

// statusFor maps an engine rejection to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sequencer.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	switch marketplace.KindOf(err) {
	case marketplace.KindAuthorization:
		return http.StatusForbidden
	case marketplace.KindState:
		return http.StatusConflict
	case marketplace.KindPayment:
		return http.StatusPaymentRequired
	case marketplace.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		writeError(w, http.StatusBadRequest, "request", reqErr.Error())
		return
	}
	writeError(w, statusFor(err), marketplace.KindOf(err).String(), err.Error())
}
