package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"voltalpha/internal/backtest"
	"voltalpha/internal/domain"
	"voltalpha/internal/engine"
	"voltalpha/internal/pricedata"
	"voltalpha/internal/strategy"
)

// DefaultPath is used when VOLTALPHA_CONFIG is not set.
const DefaultPath = "config/voltalpha.yaml"

const dateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the voltalpha tools.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Logging  Logging  `yaml:"logging"`
	Backtest Backtest `yaml:"backtest"`
	Batch    Batch    `yaml:"batch"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir       string `yaml:"data_dir"`
	SQLitePath    string `yaml:"sqlite_path"`
	TrajectoryDir string `yaml:"trajectory_dir"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url"`
	DataURL         string `yaml:"data_url"`
	Feed            string `yaml:"feed"`
	Adjustment      string `yaml:"adjustment"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Backtest describes a single run.
type Backtest struct {
	Symbol    string `yaml:"symbol"`
	Market    string `yaml:"market"`
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`

	// Algorithm is a variant name ("standard", "ath-only", ...) combined
	// with SDN or Trigger and ProfitSharing, or a full identifier such as
	// "sd-8,50".
	Algorithm     string  `yaml:"algorithm"`
	SDN           float64 `yaml:"sd_n"`
	Trigger       float64 `yaml:"trigger"`
	ProfitSharing float64 `yaml:"profit_sharing"`
	FillMode      string  `yaml:"fill_mode"`
	GatedUnwind   string  `yaml:"gated_unwind"`

	InitialShares   int64 `yaml:"initial_shares"`
	AllowMargin     bool  `yaml:"allow_margin"`
	Normalize       bool  `yaml:"normalize"`
	CreditDividends bool  `yaml:"credit_dividends"`

	Withdrawal Withdrawal `yaml:"withdrawal"`
	Rates      Rates      `yaml:"rates"`
}

// Withdrawal configures periodic withdrawals.
type Withdrawal struct {
	RatePct       float64 `yaml:"rate_pct"`
	FrequencyDays int     `yaml:"frequency_days"`
	SimpleMode    bool    `yaml:"simple_mode"`
	// CPISymbol names a stored series whose close is a price index.
	CPISymbol string `yaml:"cpi_symbol"`
}

// Rates configures interest on the bank balance. Constant rates are annual
// fractions; a symbol names a stored series whose close is an annual
// percentage yield and takes precedence over the constant.
type Rates struct {
	RiskFreeAnnual float64 `yaml:"risk_free_annual"`
	BorrowAnnual   float64 `yaml:"borrow_annual"`
	RiskFreeSymbol string  `yaml:"risk_free_symbol"`
	BorrowSymbol   string  `yaml:"borrow_symbol"`
}

// Batch controls parallel runs across symbols and algorithms.
type Batch struct {
	Symbols    []string `yaml:"symbols"`
	Algorithms []string `yaml:"algorithms"`
	MaxWorkers int      `yaml:"max_workers"`
}

// Default returns the configuration used for any field a file leaves out.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/voltalpha.db",
		},
		Alpaca: Alpaca{
			BaseURL:         "https://paper-api.alpaca.markets",
			Feed:            "sip",
			Adjustment:      "split",
			RateLimitPerMin: 200,
		},
		Logging: Logging{Level: "info", Format: "text"},
		Backtest: Backtest{
			Market:        string(domain.MarketUS),
			StartDate:     "2020-01-01",
			Algorithm:     "standard",
			SDN:           8,
			ProfitSharing: strategy.DefaultProfitSharing,
			FillMode:      "gap",
			GatedUnwind:   "ath",
			InitialShares: 1000,
			AllowMargin:   true,
			Withdrawal:    Withdrawal{FrequencyDays: 30},
		},
		Batch: Batch{MaxWorkers: 4},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the configuration file path from VOLTALPHA_CONFIG, or
// DefaultPath.
func Path() string {
	if v := os.Getenv("VOLTALPHA_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads a .env file from the working directory if there is one, then
// parses the YAML file at path over Default() and applies environment
// variable overrides.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	// Standard Alpaca SDK names win over the ALPACA_* ones.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("APCA_API_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
}

// ---------------------------------------------------------------------------
// Validation and conversion
// ---------------------------------------------------------------------------

// Validate checks the backtest and batch sections. Every failure is a
// *domain.ConfigError.
func (c *Config) Validate() error {
	if _, err := c.Params(); err != nil {
		return err
	}
	if _, err := c.Market(); err != nil {
		return err
	}
	if _, _, err := c.Range(time.Now()); err != nil {
		return err
	}
	if err := c.EngineOptions().Validate(); err != nil {
		return err
	}
	for _, id := range c.Batch.Algorithms {
		if strings.EqualFold(id, "all") {
			continue
		}
		if _, err := c.AlgorithmParams(id); err != nil {
			return err
		}
	}
	if c.Batch.MaxWorkers < 0 {
		return &domain.ConfigError{Field: "batch.max_workers", Reason: fmt.Sprintf("%d must be >= 0", c.Batch.MaxWorkers)}
	}
	return nil
}

// Market returns the configured market.
func (c *Config) Market() (domain.Market, error) {
	switch m := domain.Market(strings.ToLower(c.Backtest.Market)); m {
	case domain.MarketUS, domain.MarketCN:
		return m, nil
	case "":
		return domain.MarketUS, nil
	}
	return "", &domain.ConfigError{Field: "backtest.market", Reason: fmt.Sprintf("unknown market %q", c.Backtest.Market)}
}

// Range parses the backtest dates. An empty end date means now.
func (c *Config) Range(now time.Time) (start, end time.Time, err error) {
	start, err = time.Parse(dateLayout, c.Backtest.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, &domain.ConfigError{Field: "backtest.start_date", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", c.Backtest.StartDate)}
	}
	end = now.UTC()
	if c.Backtest.EndDate != "" {
		end, err = time.Parse(dateLayout, c.Backtest.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, &domain.ConfigError{Field: "backtest.end_date", Reason: fmt.Sprintf("%q is not YYYY-MM-DD", c.Backtest.EndDate)}
		}
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, &domain.ConfigError{Field: "backtest.end_date", Reason: "must be after start_date"}
	}
	return start, end, nil
}

// Params builds the algorithm parameters of the backtest section.
func (c *Config) Params() (strategy.Params, error) {
	return c.AlgorithmParams(c.Backtest.Algorithm)
}

// AlgorithmParams resolves id against the backtest section. A bare variant
// name takes its trigger and profit sharing from the section; a full
// identifier carries its own. Fill mode and gated unwind always come from
// the section.
func (c *Config) AlgorithmParams(id string) (strategy.Params, error) {
	bt := c.Backtest
	if id == "" {
		id = "standard"
	}

	var p strategy.Params
	if v, err := strategy.ParseVariant(id); err == nil {
		p = strategy.Params{Variant: v, ProfitSharing: bt.ProfitSharing}
		switch {
		case bt.Trigger != 0:
			p.Trigger = bt.Trigger
		case bt.SDN > 0 && !math.IsInf(bt.SDN, 0):
			p.Trigger = strategy.TriggerFromSDN(bt.SDN)
		default:
			return strategy.Params{}, &domain.ConfigError{Field: "backtest.sd_n", Reason: fmt.Sprintf("%v must be > 0 when trigger is unset", bt.SDN)}
		}
	} else {
		p, err = strategy.ParseAlgorithmID(id)
		if err != nil {
			return strategy.Params{}, err
		}
	}

	var err error
	if p.FillMode, err = strategy.ParseFillMode(bt.FillMode); err != nil {
		return strategy.Params{}, err
	}
	if p.GatedUnwind, err = strategy.ParseGatedUnwind(bt.GatedUnwind); err != nil {
		return strategy.Params{}, err
	}
	if err := p.Validate(); err != nil {
		return strategy.Params{}, err
	}
	return p, nil
}

// EngineOptions converts the backtest section to engine options with
// constant rates. Series-backed rates and CPI are attached by the caller.
func (c *Config) EngineOptions() engine.Options {
	bt := c.Backtest
	opts := engine.Options{
		InitialShares:   bt.InitialShares,
		AllowMargin:     bt.AllowMargin,
		CreditDividends: bt.CreditDividends,
		Normalize:       bt.Normalize,
		Withdrawal: engine.WithdrawalConfig{
			RatePct:       bt.Withdrawal.RatePct,
			FrequencyDays: bt.Withdrawal.FrequencyDays,
			SimpleMode:    bt.Withdrawal.SimpleMode,
		},
	}
	if bt.Rates.RiskFreeAnnual != 0 {
		opts.RiskFreeRate = engine.ConstantSeries(bt.Rates.RiskFreeAnnual)
	}
	if bt.Rates.BorrowAnnual != 0 {
		opts.BorrowRate = engine.ConstantSeries(bt.Rates.BorrowAnnual)
	}
	return opts
}

// Series names the stored rate and CPI series attached to every run.
func (c *Config) Series() backtest.SeriesSymbols {
	return backtest.SeriesSymbols{
		RiskFree: c.Backtest.Rates.RiskFreeSymbol,
		Borrow:   c.Backtest.Rates.BorrowSymbol,
		CPI:      c.Backtest.Withdrawal.CPISymbol,
	}
}

// HasAlpacaCredentials reports whether both API key and secret are set.
func (c *Config) HasAlpacaCredentials() bool {
	return c.Alpaca.APIKey != "" && c.Alpaca.APISecret != ""
}

// AlpacaOptions converts the alpaca section for pricedata.NewAlpacaProvider.
func (c *Config) AlpacaOptions() pricedata.AlpacaOptions {
	return pricedata.AlpacaOptions{
		APIKey:          c.Alpaca.APIKey,
		APISecret:       c.Alpaca.APISecret,
		DataURL:         c.Alpaca.DataURL,
		Feed:            c.Alpaca.Feed,
		Adjustment:      c.Alpaca.Adjustment,
		RateLimitPerMin: c.Alpaca.RateLimitPerMin,
	}
}
