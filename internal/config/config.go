package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
)

// Config holds all application configuration.
type Config struct {
	Chain struct {
		RPCURL string  `yaml:"rpc_url"`
		WSURL  string  `yaml:"ws_url"`
		RPCRPS float64 `yaml:"rpc_rps"`
	} `yaml:"chain"`
	Rates struct {
		PythURL     string        `yaml:"pyth_url"`
		PythFeedID  string        `yaml:"pyth_feed_id"`
		ExchangeURL string        `yaml:"exchange_url"`
		ExchangeKey string        `yaml:"exchange_key"`
		TTL         time.Duration `yaml:"ttl"`
	} `yaml:"rates"`
	Currency struct {
		Native    string `yaml:"native"`
		Primary   string `yaml:"primary"`
		Secondary string `yaml:"secondary"`
	} `yaml:"currency"`
	Classifier struct {
		APIKey  string        `yaml:"api_key"`
		Model   string        `yaml:"model"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"classifier"`
	Monitor struct {
		DedupWindow          time.Duration `yaml:"dedup_window"`
		ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
		MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
		InboundBuffer        int           `yaml:"inbound_buffer"`
		Wallets              []string      `yaml:"wallets"`
	} `yaml:"monitor"`
	Confirm struct {
		MaxAttempts int           `yaml:"max_attempts"`
		Delay       time.Duration `yaml:"delay"`
	} `yaml:"confirm"`
	Schedule struct {
		ReconcileCron string `yaml:"reconcile_cron"`
	} `yaml:"schedule"`
	Fanout struct {
		SubscriberBuffer int `yaml:"subscriber_buffer"`
	} `yaml:"fanout"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Server struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"server"`
	Telegram struct {
		BotToken     string   `yaml:"bot_token"`
		ChatID       string   `yaml:"chat_id"`
		RelayWallets []string `yaml:"relay_wallets"`
	} `yaml:"telegram"`
	Proxy string `yaml:"proxy"`
}

// LoadEnv loads .env from the working directory and next to the executable.
// Missing files are ignored; variables already set win.
func LoadEnv() {
	candidates := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), ".env"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			logger.Warn("load %s: %v", path, err)
			continue
		}
		logger.Debug("loaded environment from %s", path)
	}
}

// Load reads config from a YAML file, then applies environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"SOLANA_RPC_URL":     &c.Chain.RPCURL,
		"SOLANA_WS_URL":      &c.Chain.WSURL,
		"PYTH_URL":           &c.Rates.PythURL,
		"PYTH_FEED_ID":       &c.Rates.PythFeedID,
		"EXCHANGE_RATE_URL":  &c.Rates.ExchangeURL,
		"EXCHANGE_RATE_KEY":  &c.Rates.ExchangeKey,
		"GEMINI_API_KEY":     &c.Classifier.APIKey,
		"GEMINI_MODEL":       &c.Classifier.Model,
		"CRON_RECONCILE":     &c.Schedule.ReconcileCron,
		"SQLITE_PATH":        &c.Database.SQLitePath,
		"LISTEN_ADDR":        &c.Server.ListenAddr,
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Telegram.ChatID,
		"HTTPS_PROXY":        &c.Proxy,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"RATE_TTL":             &c.Rates.TTL,
		"CLASSIFIER_TIMEOUT":   &c.Classifier.Timeout,
		"DEDUP_WINDOW":         &c.Monitor.DedupWindow,
		"RECONNECT_BASE_DELAY": &c.Monitor.ReconnectBaseDelay,
		"CONFIRM_DELAY":        &c.Confirm.Delay,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"MAX_RECONNECT_ATTEMPTS": &c.Monitor.MaxReconnectAttempts,
		"CONFIRM_MAX_ATTEMPTS":   &c.Confirm.MaxAttempts,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("MONITOR_WALLETS"); v != "" {
		c.Monitor.Wallets = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) applyDefaults() {
	if c.Chain.RPCURL == "" {
		c.Chain.RPCURL = "https://api.devnet.solana.com"
	}
	if c.Chain.WSURL == "" {
		c.Chain.WSURL = "wss://api.devnet.solana.com"
	}
	if c.Chain.RPCRPS == 0 {
		c.Chain.RPCRPS = 10
	}
	if c.Rates.PythURL == "" {
		c.Rates.PythURL = "https://hermes.pyth.network"
	}
	if c.Rates.PythFeedID == "" {
		c.Rates.PythFeedID = "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"
	}
	if c.Rates.ExchangeURL == "" {
		c.Rates.ExchangeURL = "https://v6.exchangerate-api.com/v6"
	}
	if c.Rates.TTL == 0 {
		c.Rates.TTL = time.Minute
	}
	if c.Currency.Native == "" {
		c.Currency.Native = "SOL"
	}
	if c.Currency.Primary == "" {
		c.Currency.Primary = "USD"
	}
	if c.Currency.Secondary == "" {
		c.Currency.Secondary = "NGN"
	}
	if c.Classifier.Model == "" {
		c.Classifier.Model = "gemini-2.5-flash"
	}
	if c.Classifier.Timeout == 0 {
		c.Classifier.Timeout = 5 * time.Second
	}
	if c.Monitor.DedupWindow == 0 {
		c.Monitor.DedupWindow = 30 * time.Second
	}
	if c.Monitor.ReconnectBaseDelay == 0 {
		c.Monitor.ReconnectBaseDelay = 2 * time.Second
	}
	if c.Monitor.MaxReconnectAttempts == 0 {
		c.Monitor.MaxReconnectAttempts = 5
	}
	if c.Monitor.InboundBuffer == 0 {
		c.Monitor.InboundBuffer = 64
	}
	if c.Confirm.MaxAttempts == 0 {
		c.Confirm.MaxAttempts = 10
	}
	if c.Confirm.Delay == 0 {
		c.Confirm.Delay = 2 * time.Second
	}
	if c.Schedule.ReconcileCron == "" {
		c.Schedule.ReconcileCron = "0 0 0 * * *"
	}
	if c.Fanout.SubscriberBuffer == 0 {
		c.Fanout.SubscriberBuffer = 64
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/wallet_sentinel.db"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
}

// Validate checks that required fields are set and values are usable.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" || c.Chain.WSURL == "" {
		return fmt.Errorf("chain.rpc_url and chain.ws_url are required")
	}
	if c.Chain.RPCRPS <= 0 {
		return fmt.Errorf("chain.rpc_rps must be positive")
	}
	if c.Currency.Primary == c.Currency.Secondary {
		return fmt.Errorf("currency.primary and currency.secondary must differ")
	}
	if c.Monitor.DedupWindow <= 0 {
		return fmt.Errorf("monitor.dedup_window must be positive")
	}
	if c.Monitor.MaxReconnectAttempts < 1 {
		return fmt.Errorf("monitor.max_reconnect_attempts must be at least 1")
	}
	if c.Confirm.MaxAttempts < 1 {
		return fmt.Errorf("confirm.max_attempts must be at least 1")
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Schedule.ReconcileCron); err != nil {
		return fmt.Errorf("schedule.reconcile_cron: %w", err)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// Currencies returns the configured currency triple.
func (c *Config) Currencies() model.Currencies {
	return model.Currencies{
		Native:    c.Currency.Native,
		Primary:   c.Currency.Primary,
		Secondary: c.Currency.Secondary,
	}
}

// TelegramEnabled reports whether the operator channel is configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
