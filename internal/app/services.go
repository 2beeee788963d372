package app

import (
	"go.uber.org/zap"

	"github.com/ggonzalez94/wallet-agent/internal/cache"
	"github.com/ggonzalez94/wallet-agent/internal/chain"
	"github.com/ggonzalez94/wallet-agent/internal/config"
	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/execution"
	"github.com/ggonzalez94/wallet-agent/internal/execution/signer"
	"github.com/ggonzalez94/wallet-agent/internal/guard"
	"github.com/ggonzalez94/wallet-agent/internal/httpx"
	"github.com/ggonzalez94/wallet-agent/internal/logging"
	"github.com/ggonzalez94/wallet-agent/internal/model"
	"github.com/ggonzalez94/wallet-agent/internal/orchestrator"
	"github.com/ggonzalez94/wallet-agent/internal/preview"
	"github.com/ggonzalez94/wallet-agent/internal/providers"
	"github.com/ggonzalez94/wallet-agent/internal/providers/relay"
	"github.com/ggonzalez94/wallet-agent/internal/providers/zerox"
	"github.com/ggonzalez94/wallet-agent/internal/registry"
	"github.com/ggonzalez94/wallet-agent/internal/server"
)

// services builds each dependency on first use so read-only commands never
// open the execution store, dial RPC or load a key.
type services struct {
	settings config.Settings
	logger   *zap.Logger
	http     *httpx.Client
	limiter  *guard.SpendingLimiter

	cache  *cache.Store
	relay  *relay.Client
	chain  *chain.Client
	store  *execution.Store
	zeroX  *zerox.Client
	orch   *orchestrator.Orchestrator
	driver []providers.DEXAggregator

	account       signer.Signer
	accountErr    error
	accountLoaded bool
}

func newServices(settings config.Settings) (*services, error) {
	logger, err := logging.New(logging.Config{Level: settings.LogLevel, Format: settings.LogFormat})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "configure logging", err)
	}
	return &services{
		settings: settings,
		logger:   logger,
		http:     httpx.New(settings.Timeout, settings.Retries),
		limiter:  guard.NewSpendingLimiter(settings.DailyLimitWei),
	}, nil
}

func (s *services) close() {
	if s.chain != nil {
		s.chain.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
	_ = s.logger.Sync()
}

func (s *services) relayClient() (*relay.Client, error) {
	if s.relay != nil {
		return s.relay, nil
	}
	base := s.settings.RelayBaseURL
	if base == "" {
		base = registry.RelayBaseURL(s.settings.Testnet)
	}
	client := relay.New(s.http, base, s.logger)
	if s.settings.CacheEnabled {
		store, err := cache.Open(s.settings.CachePath, s.settings.CacheLockPath)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "open cache", err)
		}
		s.cache = store
		client = client.WithCache(store, s.settings.CacheTTL)
	}
	s.relay = client
	return client, nil
}

func (s *services) chainClient() (*chain.Client, error) {
	if s.chain != nil {
		return s.chain, nil
	}
	client, err := chain.New(chain.Config{RPCURLs: s.settings.RPCURLs}, s.logger)
	if err != nil {
		return nil, err
	}
	s.chain = client
	return client, nil
}

func (s *services) executionStore() (*execution.Store, error) {
	if s.store != nil {
		return s.store, nil
	}
	store, err := execution.OpenStore(s.settings.ExecutionStorePath, s.settings.ExecutionLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open execution store", err)
	}
	s.store = store
	return store, nil
}

// signer loads the local key once. Commands that only read never call it.
func (s *services) signer() (signer.Signer, error) {
	if !s.accountLoaded {
		s.accountLoaded = true
		local, err := signer.Load(s.settings.KeySource)
		if err != nil {
			s.accountErr = clierr.Wrap(clierr.CodeSigner, "load signing key", err)
		} else {
			s.account = local
		}
	}
	return s.account, s.accountErr
}

func (s *services) guard() (*guard.Guard, error) {
	c, err := s.chainClient()
	if err != nil {
		return nil, err
	}
	return guard.New(c, s.logger), nil
}

func (s *services) previews() (*preview.Builder, error) {
	c, err := s.chainClient()
	if err != nil {
		return nil, err
	}
	return preview.NewBuilder(c, s.limiter, s.logger), nil
}

func (s *services) zeroXClient() *zerox.Client {
	if s.zeroX == nil {
		s.zeroX = zerox.New(s.http, s.settings.ZeroXBaseURL, s.settings.ZeroXAPIKey)
	}
	return s.zeroX
}

func (s *services) swapDrivers() ([]providers.DEXAggregator, error) {
	if s.driver != nil {
		return s.driver, nil
	}
	c, err := s.chainClient()
	if err != nil {
		return nil, err
	}
	opts := zerox.DefaultOptions()
	opts.Receipt = s.receiptOptions()
	opts.PollInterval = s.settings.PollInterval
	opts.PollMaxAttempts = uint(s.settings.PollMaxAttempts)
	api := s.zeroXClient()
	s.driver = []providers.DEXAggregator{
		zerox.NewSwapDriver(api, c, opts, s.logger),
		zerox.NewGaslessDriver(api, c, opts, s.logger),
	}
	return s.driver, nil
}

func (s *services) receiptOptions() chain.ReceiptOptions {
	return chain.ReceiptOptions{Interval: s.settings.ReceiptInterval, MaxAttempts: uint(s.settings.ReceiptMaxAttempts)}
}

// orchestrator wires relay, chain, store and signer. A missing key is not an
// error here: the orchestrator reports it per request.
func (s *services) orchestrator() (*orchestrator.Orchestrator, error) {
	if s.orch != nil {
		return s.orch, nil
	}
	rl, err := s.relayClient()
	if err != nil {
		return nil, err
	}
	c, err := s.chainClient()
	if err != nil {
		return nil, err
	}
	store, err := s.executionStore()
	if err != nil {
		return nil, err
	}
	account, _ := s.signer()

	opts := orchestrator.DefaultOptions()
	opts.Execute.PollInterval = s.settings.PollInterval
	opts.Execute.PollMaxAttempts = uint(s.settings.PollMaxAttempts)
	opts.Execute.RelayAPIBase = rl.BaseURL()
	opts.Execute.Receipt = s.receiptOptions()
	s.orch = orchestrator.New(orchestrator.Deps{
		Relay:    rl,
		Executor: execution.NewExecutor(c, s.http, store, s.logger),
		Chain:    c,
		HTTP:     s.http,
		Limiter:  s.limiter,
		Account:  account,
		Logger:   s.logger,
	}, opts)
	return s.orch, nil
}

func (s *services) server() (*server.Server, error) {
	orch, err := s.orchestrator()
	if err != nil {
		return nil, err
	}
	drivers, err := s.swapDrivers()
	if err != nil {
		return nil, err
	}
	g, err := s.guard()
	if err != nil {
		return nil, err
	}
	account, _ := s.signer()
	return server.New(server.Deps{
		Relay:        s.relay,
		Orchestrator: orch,
		Drivers:      drivers,
		Guard:        g,
		Account:      account,
		Logger:       s.logger,
	}), nil
}

// providerInfos lists every quote source without touching the network or keys.
func (s *services) providerInfos() []model.ProviderInfo {
	infos := []model.ProviderInfo{relay.New(s.http, s.settings.RelayBaseURL, s.logger).Info()}
	api := s.zeroXClient()
	infos = append(infos,
		zerox.NewSwapDriver(api, nil, zerox.DefaultOptions(), s.logger).Info(),
		zerox.NewGaslessDriver(api, nil, zerox.DefaultOptions(), s.logger).Info(),
	)
	return infos
}
