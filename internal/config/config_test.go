package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("output: plain\nretries: 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("WAGENT_OUTPUT", "json")
	flags := GlobalFlags{ConfigPath: configPath, Plain: true, Retries: 5}
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.Retries != 5 {
		t.Fatalf("expected retries from flags, got %d", settings.Retries)
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	_, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"), JSON: true, Plain: true})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}

func TestLoadExecutionAndRPCSettingsFromFile(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	body := `
execution:
  poll_interval: 2s
  poll_max_attempts: 7
  daily_spending_limit_wei: "500"
rpc:
  "11155111": https://sepolia.example
providers:
  zerox:
    api_key_env: TEST_ZEROX_KEY
`
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TEST_ZEROX_KEY", "secret")

	settings, err := Load(GlobalFlags{ConfigPath: configPath, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.PollInterval != 2*time.Second || settings.PollMaxAttempts != 7 {
		t.Fatalf("unexpected poll settings %s/%d", settings.PollInterval, settings.PollMaxAttempts)
	}
	if settings.DailyLimitWei.String() != "500" {
		t.Fatalf("unexpected daily limit %s", settings.DailyLimitWei)
	}
	if settings.RPCURLs[11155111] != "https://sepolia.example" {
		t.Fatalf("unexpected rpc map %#v", settings.RPCURLs)
	}
	if settings.ZeroXAPIKey != "secret" {
		t.Fatalf("expected api key from env indirection, got %q", settings.ZeroXAPIKey)
	}
	if settings.Retries != 2 {
		t.Fatalf("expected default retries, got %d", settings.Retries)
	}
}

func TestLoadEnvFileFillsUnsetVariables(t *testing.T) {
	tmp := t.TempDir()
	envPath := filepath.Join(tmp, "test.env")
	if err := os.WriteFile(envPath, []byte("WAGENT_ZEROX_API_KEY=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("WAGENT_ZEROX_API_KEY", "")
	os.Unsetenv("WAGENT_ZEROX_API_KEY")

	settings, err := Load(GlobalFlags{ConfigPath: filepath.Join(tmp, "none.yaml"), EnvFile: envPath, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.ZeroXAPIKey != "from-dotenv" {
		t.Fatalf("expected api key from env file, got %q", settings.ZeroXAPIKey)
	}
	os.Unsetenv("WAGENT_ZEROX_API_KEY")
}

func TestLoadRejectsBadDailyLimit(t *testing.T) {
	t.Setenv("WAGENT_DAILY_LIMIT_WEI", "-5")
	if _, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "none.yaml"), Retries: -1}); err == nil {
		t.Fatal("expected error for negative daily limit")
	}
}
