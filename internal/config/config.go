package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath  string
	EnvFile     string
	JSON        bool
	Plain       bool
	Select      string
	ResultsOnly bool
	Timeout     string
	Retries     int
	NoCache     bool
	Testnet     bool
	LogLevel    string
	// EnableCommands is a comma separated allowlist of command paths.
	EnableCommands string
	KeySource      string
}

type Settings struct {
	OutputMode    string
	SelectFields  []string
	ResultsOnly   bool
	Timeout       time.Duration
	Retries       int
	CacheEnabled  bool
	CacheTTL      time.Duration
	CachePath     string
	CacheLockPath string

	ExecutionStorePath string
	ExecutionLockPath  string

	ZeroXAPIKey  string
	ZeroXBaseURL string
	RelayBaseURL string
	Testnet      bool
	RPCURLs      map[int64]string

	PollInterval       time.Duration
	PollMaxAttempts    int
	ReceiptInterval    time.Duration
	ReceiptMaxAttempts int
	DailyLimitWei      *big.Int

	LogLevel   string
	LogFormat  string
	ListenAddr string

	EnableCommands []string
	KeySource      string
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Testnet *bool  `yaml:"testnet"`
	Cache   struct {
		Enabled  *bool  `yaml:"enabled"`
		TTL      string `yaml:"ttl"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"cache"`
	Execution struct {
		StorePath          string `yaml:"store_path"`
		StoreLockPath      string `yaml:"store_lock_path"`
		PollInterval       string `yaml:"poll_interval"`
		PollMaxAttempts    *int   `yaml:"poll_max_attempts"`
		ReceiptInterval    string `yaml:"receipt_interval"`
		ReceiptMaxAttempts *int   `yaml:"receipt_max_attempts"`
		DailyLimitWei      string `yaml:"daily_spending_limit_wei"`
	} `yaml:"execution"`
	RPC       map[string]string `yaml:"rpc"`
	Providers struct {
		ZeroX struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
			BaseURL   string `yaml:"base_url"`
		} `yaml:"zerox"`
		Relay struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"relay"`
	} `yaml:"providers"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := loadDotEnv(flags.EnvFile); err != nil {
		return Settings{}, err
	}
	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 15 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.PollMaxAttempts <= 0 {
		settings.PollMaxAttempts = 30
	}
	if settings.ReceiptMaxAttempts <= 0 {
		settings.ReceiptMaxAttempts = 200
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	cacheDir := filepath.Dir(cachePath)
	return Settings{
		OutputMode:         "json",
		Timeout:            15 * time.Second,
		Retries:            2,
		CacheEnabled:       true,
		CacheTTL:           time.Minute,
		CachePath:          cachePath,
		CacheLockPath:      lockPath,
		ExecutionStorePath: filepath.Join(cacheDir, "executions.db"),
		ExecutionLockPath:  filepath.Join(cacheDir, "executions.lock"),
		ZeroXBaseURL:       "https://api.0x.org",
		RPCURLs:            map[int64]string{},
		PollInterval:       5 * time.Second,
		PollMaxAttempts:    30,
		ReceiptInterval:    2 * time.Second,
		ReceiptMaxAttempts: 200,
		DailyLimitWei:      new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil),
		LogLevel:           "info",
		LogFormat:          "json",
		ListenAddr:         ":3000",
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "wagent", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "wagent")
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

// loadDotEnv populates unset variables from a .env file. An explicit path must exist.
func loadDotEnv(path string) error {
	if strings.TrimSpace(path) != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Testnet != nil {
		settings.Testnet = *cfg.Testnet
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.TTL != "" {
		d, err := time.ParseDuration(cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("config cache.ttl: %w", err)
		}
		settings.CacheTTL = d
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Execution.StorePath != "" {
		settings.ExecutionStorePath = cfg.Execution.StorePath
	}
	if cfg.Execution.StoreLockPath != "" {
		settings.ExecutionLockPath = cfg.Execution.StoreLockPath
	}
	if cfg.Execution.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Execution.PollInterval)
		if err != nil {
			return fmt.Errorf("config execution.poll_interval: %w", err)
		}
		settings.PollInterval = d
	}
	if cfg.Execution.PollMaxAttempts != nil {
		settings.PollMaxAttempts = *cfg.Execution.PollMaxAttempts
	}
	if cfg.Execution.ReceiptInterval != "" {
		d, err := time.ParseDuration(cfg.Execution.ReceiptInterval)
		if err != nil {
			return fmt.Errorf("config execution.receipt_interval: %w", err)
		}
		settings.ReceiptInterval = d
	}
	if cfg.Execution.ReceiptMaxAttempts != nil {
		settings.ReceiptMaxAttempts = *cfg.Execution.ReceiptMaxAttempts
	}
	if cfg.Execution.DailyLimitWei != "" {
		v, err := parseWei(cfg.Execution.DailyLimitWei)
		if err != nil {
			return fmt.Errorf("config execution.daily_spending_limit_wei: %w", err)
		}
		settings.DailyLimitWei = v
	}
	for key, url := range cfg.RPC {
		chainID, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil {
			return fmt.Errorf("config rpc key %q must be a chain id", key)
		}
		settings.RPCURLs[chainID] = strings.TrimSpace(url)
	}
	if cfg.Providers.ZeroX.APIKey != "" {
		settings.ZeroXAPIKey = cfg.Providers.ZeroX.APIKey
	}
	if cfg.Providers.ZeroX.APIKeyEnv != "" {
		settings.ZeroXAPIKey = os.Getenv(cfg.Providers.ZeroX.APIKeyEnv)
	}
	if cfg.Providers.ZeroX.BaseURL != "" {
		settings.ZeroXBaseURL = cfg.Providers.ZeroX.BaseURL
	}
	if cfg.Providers.Relay.BaseURL != "" {
		settings.RelayBaseURL = cfg.Providers.Relay.BaseURL
	}
	if cfg.Log.Level != "" {
		settings.LogLevel = strings.ToLower(cfg.Log.Level)
	}
	if cfg.Log.Format != "" {
		settings.LogFormat = strings.ToLower(cfg.Log.Format)
	}
	if cfg.Server.Listen != "" {
		settings.ListenAddr = cfg.Server.Listen
	}

	return nil
}

func applyEnv(settings *Settings) error {
	if v := os.Getenv("WAGENT_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("WAGENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("WAGENT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("WAGENT_TESTNET"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.Testnet = b
		}
	}
	if v := os.Getenv("WAGENT_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("WAGENT_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("WAGENT_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("WAGENT_EXECUTIONS_PATH"); v != "" {
		settings.ExecutionStorePath = v
	}
	if v := os.Getenv("WAGENT_EXECUTIONS_LOCK_PATH"); v != "" {
		settings.ExecutionLockPath = v
	}
	if v := os.Getenv("WAGENT_ZEROX_API_KEY"); v != "" {
		settings.ZeroXAPIKey = v
	}
	if v := os.Getenv("WAGENT_ZEROX_BASE_URL"); v != "" {
		settings.ZeroXBaseURL = v
	}
	if v := os.Getenv("WAGENT_RELAY_BASE_URL"); v != "" {
		settings.RelayBaseURL = v
	}
	if v := os.Getenv("WAGENT_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.PollInterval = d
		}
	}
	if v := os.Getenv("WAGENT_POLL_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.PollMaxAttempts = n
		}
	}
	if v := os.Getenv("WAGENT_DAILY_LIMIT_WEI"); v != "" {
		limit, err := parseWei(v)
		if err != nil {
			return fmt.Errorf("WAGENT_DAILY_LIMIT_WEI: %w", err)
		}
		settings.DailyLimitWei = limit
	}
	if v := os.Getenv("WAGENT_LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("WAGENT_LOG_FORMAT"); v != "" {
		settings.LogFormat = strings.ToLower(v)
	}
	if v := os.Getenv("WAGENT_LISTEN"); v != "" {
		settings.ListenAddr = v
	}
	if v := os.Getenv("WAGENT_KEY_SOURCE"); v != "" {
		settings.KeySource = strings.ToLower(v)
	}
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if flags.Testnet {
		settings.Testnet = true
	}
	if flags.LogLevel != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}
	if flags.KeySource != "" {
		settings.KeySource = strings.ToLower(flags.KeySource)
	}
	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}

func parseWei(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid wei amount %q", raw)
	}
	return v, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
