package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ggonzalez94/wallet-agent/internal/execution/signer"
	"github.com/ggonzalez94/wallet-agent/internal/guard"
	"github.com/ggonzalez94/wallet-agent/internal/orchestrator"
	"github.com/ggonzalez94/wallet-agent/internal/providers"
	"github.com/ggonzalez94/wallet-agent/internal/providers/relay"
)

type Orchestrator interface {
	Execute(ctx context.Context, req orchestrator.IntentRequest) orchestrator.Response
	ExecuteQuote(ctx context.Context, raw json.RawMessage, uid string) orchestrator.Response
}

type Deps struct {
	Relay        *relay.Client
	Orchestrator Orchestrator
	Drivers      []providers.DEXAggregator
	Guard        *guard.Guard
	// Account, when set, lets /api/swap/quote execute with execute=true.
	Account signer.Signer
	Logger  *zap.Logger
}

type Server struct {
	relay        *relay.Client
	orchestrator Orchestrator
	drivers      []providers.DEXAggregator
	guard        *guard.Guard
	account      signer.Signer
	logger       *zap.Logger
	engine       *gin.Engine
}

func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		relay:        deps.Relay,
		orchestrator: deps.Orchestrator,
		drivers:      deps.Drivers,
		guard:        deps.Guard,
		account:      deps.Account,
		logger:       logger.Named("server"),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), correlationID(), requestLogger(s.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})

	api := r.Group("/api")
	{
		rl := api.Group("/relay")
		rl.POST("/execute-quote", s.executeQuote)
		rl.POST("/quote-and-execute", s.quoteAndExecute)
		rl.GET("/chains", s.chains)
		rl.GET("/execution-status", s.executionStatus)
		rl.GET("/requests", s.requests)
		rl.GET("/token-price", s.tokenPrice)
		rl.POST("/currencies", s.passThrough(s.relay.Currencies))
		rl.POST("/quote", s.passThrough(func(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
			return s.relay.Quote(ctx, body)
		}))
		rl.POST("/multi-input-quote", s.passThrough(s.relay.MultiInputQuote))
		rl.POST("/index-transaction", s.passThrough(s.relay.IndexTransaction))
		rl.POST("/index-single-transaction", s.passThrough(s.relay.IndexSingleTransaction))

		api.POST("/swap/quote", s.swapQuote)
		api.POST("/balance/check", s.balanceCheck)
	}
	return r
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
