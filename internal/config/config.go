// Package config handles reading and writing .nftbatch/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level structure for .nftbatch/config.yaml.
type Config struct {
	Version     int               `yaml:"version"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Wallet      WalletConfig      `yaml:"wallet"`
	Browser     BrowserConfig     `yaml:"browser"`
	Captcha     CaptchaConfig     `yaml:"captcha"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Status      StatusConfig      `yaml:"status"`
	Cleanup     CleanupConfig     `yaml:"cleanup"`
}

// MarketplaceConfig points at the marketplace web app.
type MarketplaceConfig struct {
	URL string `yaml:"url"`
}

// WalletConfig selects the wallet extension loaded into the browser.
type WalletConfig struct {
	Name         string `yaml:"name"`          // "metamask" | "coinbase"
	ExtensionDir string `yaml:"extension_dir"` // unpacked extension
	ExtensionID  string `yaml:"extension_id"`
}

// BrowserConfig controls the browser launched for each session.
type BrowserConfig struct {
	Name        string `yaml:"name"` // "chrome"
	ExecPath    string `yaml:"exec_path"`
	Headless    bool   `yaml:"headless"`
	UserDataDir string `yaml:"user_data_dir"`
	Profile     string `yaml:"profile"`
}

// CaptchaConfig selects how upload CAPTCHAs are solved.
type CaptchaConfig struct {
	Solver         string `yaml:"solver"` // "manual" | "2captcha" | "none"
	APIURL         string `yaml:"api_url"`
	PollSeconds    int    `yaml:"poll_seconds"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// CredentialsConfig locates the credential files.
type CredentialsConfig struct {
	Dir string `yaml:"dir"`
}

// ExecutionConfig controls the batch loop.
type ExecutionConfig struct {
	SessionWindowHours      int `yaml:"session_window_hours"`
	HousekeepingEvery       int `yaml:"housekeeping_every"`
	PauseMinSeconds         int `yaml:"pause_min_seconds"`
	PauseMaxSeconds         int `yaml:"pause_max_seconds"`
	MaxLoginAttempts        int `yaml:"max_login_attempts"` // 0 = retry until interrupted
	LoginRetryDelaySeconds  int `yaml:"login_retry_delay_seconds"`
	CircuitBreakerThreshold int `yaml:"circuit_breaker_threshold"` // 0 = disabled
	StageTimeoutSeconds     int `yaml:"stage_timeout_seconds"`
	MaxSessionRecoveries    int `yaml:"max_session_recoveries"`
}

// StatusConfig controls the local status endpoint.
type StatusConfig struct {
	Port int `yaml:"port"` // 0 = disabled
}

// CleanupConfig controls pruning of old run directories.
type CleanupConfig struct {
	MaxAgeDays int `yaml:"max_age_days"`
	KeepRecent int `yaml:"keep_recent"`
}

const configDir = ".nftbatch"
const configFile = "config.yaml"

// Dir returns the state directory inside the project root.
func Dir(root string) string {
	return filepath.Join(root, configDir)
}

// ReadConfig reads .nftbatch/config.yaml from the given project directory.
// Fields missing from the file keep their defaults.
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, configDir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// WriteConfig writes cfg to .nftbatch/config.yaml in the given project directory.
// Creates the .nftbatch/ directory if it does not exist.
func WriteConfig(dir string, cfg *Config) error {
	dirPath := filepath.Join(dir, configDir)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	path := filepath.Join(dirPath, configFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Marketplace: MarketplaceConfig{
			URL: "https://opensea.io",
		},
		Wallet: WalletConfig{
			Name: "metamask",
		},
		Browser: BrowserConfig{
			Name: "chrome",
		},
		Captcha: CaptchaConfig{
			Solver:         "manual",
			APIURL:         "https://2captcha.com",
			PollSeconds:    5,
			TimeoutSeconds: 180,
		},
		Credentials: CredentialsConfig{
			Dir: "assets",
		},
		Execution: ExecutionConfig{
			SessionWindowHours:      12,
			HousekeepingEvery:       10,
			PauseMinSeconds:         2,
			PauseMaxSeconds:         5,
			MaxLoginAttempts:        0,
			LoginRetryDelaySeconds:  5,
			CircuitBreakerThreshold: 5,
			StageTimeoutSeconds:     300,
			MaxSessionRecoveries:    2,
		},
		Cleanup: CleanupConfig{
			MaxAgeDays: 30,
			KeepRecent: 10,
		},
	}
}

// Validate reports the first setting the run cannot work with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Wallet.Name) {
	case "metamask", "coinbase":
	default:
		return fmt.Errorf("wallet.name %q: want metamask or coinbase", c.Wallet.Name)
	}
	switch strings.ToLower(c.Browser.Name) {
	case "chrome", "chromium":
	case "firefox":
		return fmt.Errorf("browser.name firefox is not supported; use chrome")
	default:
		return fmt.Errorf("browser.name %q: want chrome", c.Browser.Name)
	}
	switch strings.ToLower(c.Captcha.Solver) {
	case "manual", "2captcha", "none":
	case "yolov5":
		return fmt.Errorf("captcha.solver yolov5 is not supported; use manual, 2captcha or none")
	default:
		return fmt.Errorf("captcha.solver %q: want manual, 2captcha or none", c.Captcha.Solver)
	}

	e := c.Execution
	if e.SessionWindowHours <= 0 {
		return fmt.Errorf("execution.session_window_hours must be positive")
	}
	if e.HousekeepingEvery <= 0 {
		return fmt.Errorf("execution.housekeeping_every must be positive")
	}
	if e.PauseMinSeconds < 0 || e.PauseMaxSeconds < e.PauseMinSeconds {
		return fmt.Errorf("execution pause bounds %d..%d are invalid", e.PauseMinSeconds, e.PauseMaxSeconds)
	}
	if e.MaxLoginAttempts < 0 || e.CircuitBreakerThreshold < 0 || e.MaxSessionRecoveries < 0 {
		return fmt.Errorf("execution limits must not be negative")
	}
	if c.Status.Port < 0 || c.Status.Port > 65535 {
		return fmt.Errorf("status.port %d is out of range", c.Status.Port)
	}
	return nil
}

// Window is the session rotation window.
func (e ExecutionConfig) Window() time.Duration {
	return time.Duration(e.SessionWindowHours) * time.Hour
}

// StageTimeout bounds one stage call; 0 means no limit.
func (e ExecutionConfig) StageTimeout() time.Duration {
	return time.Duration(e.StageTimeoutSeconds) * time.Second
}

// LoginRetryDelay is the pause between login attempts.
func (e ExecutionConfig) LoginRetryDelay() time.Duration {
	return time.Duration(e.LoginRetryDelaySeconds) * time.Second
}
