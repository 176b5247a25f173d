package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

// unsetEnv clears key for the test and restores the original value afterwards.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func setupDir(t *testing.T, yamlContent string) string {
	t.Helper()
	unsetEnv(t, "WEATHER_API_KEY", "ENV_NAME", "CACHE_BACKEND", "MEMCACHED_ADDRS",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "LOG_FILE", "PORT")
	dir := t.TempDir()
	writeEnvFile(t, dir, yamlContent)
	t.Chdir(dir)
	return dir
}

func TestLoad_FailsWhenNoAPIKey(t *testing.T) {
	setupDir(t, minimalEnvYAML)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error when no WEATHER_API_KEY and no secrets file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "WEATHER_API_KEY") {
		t.Errorf("Load() error = %v, want message containing WEATHER_API_KEY", err)
	}
}

func TestLoad_SucceedsWithSecretsFile(t *testing.T) {
	dir := setupDir(t, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: key-from-secrets-file\nredis_password: hunter2\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-secrets-file" {
		t.Errorf("WeatherAPIKey = %q, want key from secrets file", cfg.WeatherAPIKey)
	}
	if cfg.RedisPassword != "hunter2" {
		t.Errorf("RedisPassword = %q, want hunter2", cfg.RedisPassword)
	}
}

func TestLoad_SucceedsWithDotEnv(t *testing.T) {
	dir := setupDir(t, minimalEnvYAML)
	env := "WEATHER_API_KEY=key-from-dotenv\nCACHE_BACKEND=redis\nREDIS_ADDR=redis.internal:6380\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-dotenv" {
		t.Errorf("WeatherAPIKey = %q, want key-from-dotenv", cfg.WeatherAPIKey)
	}
	if cfg.CacheBackend != "redis" {
		t.Errorf("CacheBackend = %q, want redis", cfg.CacheBackend)
	}
	if cfg.RedisAddr != "redis.internal:6380" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
}

func TestLoad_EnvWinsOverDotEnvAndSecrets(t *testing.T) {
	dir := setupDir(t, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: from-secrets\n")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("WEATHER_API_KEY=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("WEATHER_API_KEY", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "from-env" {
		t.Errorf("WeatherAPIKey = %q, want from-env", cfg.WeatherAPIKey)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	setupDir(t, minimalEnvYAML)
	t.Setenv("ENV_NAME", "nonexistent")
	t.Setenv("WEATHER_API_KEY", "test-key")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("error = %v, want config file not found", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setupDir(t, "server:\n  port: \"9090\"\n")
	t.Setenv("WEATHER_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.WeatherAPIURL != "https://api.weatherapi.com/v1" {
		t.Errorf("WeatherAPIURL = %q", cfg.WeatherAPIURL)
	}
	if cfg.CacheBackend != "in_memory" {
		t.Errorf("CacheBackend = %q, want in_memory", cfg.CacheBackend)
	}
	if cfg.DefaultCity != "Kolkata" {
		t.Errorf("DefaultCity = %q, want Kolkata", cfg.DefaultCity)
	}
	if !slices.Equal(cfg.Roster, DefaultRoster) {
		t.Errorf("Roster = %v, want %v", cfg.Roster, DefaultRoster)
	}
	if len(cfg.Roster) != 9 {
		t.Errorf("len(Roster) = %d, want 9", len(cfg.Roster))
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"BatchSize", cfg.BatchSize, 5},
		{"BatchDelay", cfg.BatchDelay, 2 * time.Second},
		{"ForecastDays", cfg.ForecastDays, 7},
		{"SuggestionLimit", cfg.SuggestionLimit, 7},
		{"SuggestDebounce", cfg.SuggestDebounce, 300 * time.Millisecond},
		{"AutoRefresh", cfg.AutoRefresh, 10 * time.Minute},
		{"MaxLocatorLength", cfg.MaxLocatorLength, 100},
		{"RateLimitRPS", cfg.RateLimitRPS, 100},
		{"DegradedErrorPct", cfg.DegradedErrorPct, 5},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_DashboardSection(t *testing.T) {
	yaml := minimalEnvYAML + `
dashboard:
  default_city: "Pune"
  roster: ["Pune", " Goa ", "", "pune", "Surat"]
  batch_size: 2
  batch_delay: "0s"
  forecast_days: 3
  suggest_debounce: "150ms"
  auto_refresh: "5m"
  roster_schedule: "0 6 * * *"
`
	setupDir(t, yaml)
	t.Setenv("WEATHER_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DefaultCity != "Pune" {
		t.Errorf("DefaultCity = %q", cfg.DefaultCity)
	}
	if want := []string{"Pune", "Goa", "Surat"}; !slices.Equal(cfg.Roster, want) {
		t.Errorf("Roster = %v, want %v", cfg.Roster, want)
	}
	if cfg.BatchSize != 2 || cfg.ForecastDays != 3 {
		t.Errorf("BatchSize=%d ForecastDays=%d", cfg.BatchSize, cfg.ForecastDays)
	}
	if cfg.BatchDelay != 0 {
		t.Errorf("BatchDelay = %v, want 0 (explicit zero allowed)", cfg.BatchDelay)
	}
	if cfg.SuggestDebounce != 150*time.Millisecond || cfg.AutoRefresh != 5*time.Minute {
		t.Errorf("SuggestDebounce=%v AutoRefresh=%v", cfg.SuggestDebounce, cfg.AutoRefresh)
	}
	if cfg.RosterSchedule != "0 6 * * *" {
		t.Errorf("RosterSchedule = %q", cfg.RosterSchedule)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	yaml := strings.Replace(minimalEnvYAML, `timeout: "5s"`, `timeout: "not-a-duration"`, 1)
	setupDir(t, yaml)
	t.Setenv("WEATHER_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want default 10s", cfg.RequestTimeout)
	}
}

func TestLoad_RequestTimeoutRaisedAboveUpstream(t *testing.T) {
	yaml := strings.Replace(minimalEnvYAML, `timeout: "5s"`, `timeout: "1s"`, 1)
	setupDir(t, yaml)
	t.Setenv("WEATHER_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != 3*time.Second {
		t.Errorf("RequestTimeout = %v, want WeatherAPITimeout+1s = 3s", cfg.RequestTimeout)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "zero upstream timeout",
			yaml:    strings.Replace(minimalEnvYAML, `timeout: "2s"`, `timeout: "0s"`, 1),
			wantErr: "WEATHER_API_TIMEOUT",
		},
		{
			name:    "unknown cache backend",
			yaml:    minimalEnvYAML,
			env:     map[string]string{"CACHE_BACKEND": "dynamo"},
			wantErr: "cache.backend",
		},
		{
			name:    "negative batch delay",
			yaml:    minimalEnvYAML + "\ndashboard:\n  batch_delay: \"-1s\"\n",
			wantErr: "batch_delay",
		},
		{
			name:    "bad redis db",
			yaml:    minimalEnvYAML,
			env:     map[string]string{"REDIS_DB": "one"},
			wantErr: "REDIS_DB",
		},
		{
			name:    "invalid yaml",
			yaml:    "server: [unclosed\n",
			wantErr: "parse config file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupDir(t, tt.yaml)
			t.Setenv("WEATHER_API_KEY", "test-key")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatalf("Load() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidSecretsYAML(t *testing.T) {
	dir := setupDir(t, minimalEnvYAML)
	writeSecretsFile(t, dir, "weather_api_key: [broken\n")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "parse secrets file") {
		t.Fatalf("Load() error = %v, want parse secrets file", err)
	}
}

func TestLoad_ProjectDevConfig(t *testing.T) {
	root := findProjectRoot(t)
	unsetEnv(t, "ENV_NAME", "CACHE_BACKEND", "LOG_FILE")
	t.Setenv("WEATHER_API_KEY", "test-key")
	t.Chdir(root)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with config/dev.yaml error = %v", err)
	}
	if len(cfg.Roster) == 0 {
		t.Error("dev config produced an empty roster")
	}
}

const minimalEnvYAML = `
server:
  port: "8080"
weather_api:
  url: "https://api.example.com"
  timeout: "2s"
request:
  timeout: "5s"
cache:
  backend: "in_memory"
reliability:
  rate_limit_rps: 5
  rate_limit_burst: 10
shutdown:
  timeout: "10s"
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	secretsDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secretsDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
